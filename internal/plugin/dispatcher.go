package plugin

import (
	"context"
	"errors"
	"log"

	"github.com/ayusman/kalimat/internal/emitter"
)

// Dispatcher runs every subscribed plugin for each transcript event.
type Dispatcher struct {
	manager  *Manager
	executor *Executor
}

// NewDispatcher creates a Dispatcher over the plugins known to manager.
func NewDispatcher(manager *Manager, executor *Executor) *Dispatcher {
	return &Dispatcher{manager: manager, executor: executor}
}

// Emit runs the plugins subscribed to ev.Type one after another. Failures
// do not stop the remaining plugins; they are joined into the returned error.
func (d *Dispatcher) Emit(ev emitter.Event) error {
	var errs []error
	for _, p := range d.manager.Subscribers(ev.Type) {
		req := &Request{
			Event:      ev.Type,
			Word:       ev.Word,
			Confidence: ev.Confidence,
			Sentence:   ev.Sentence,
			Session:    ev.Session,
			Config:     p.Manifest.Config,
		}
		if _, err := d.executor.Execute(context.Background(), p, req); err != nil {
			errs = append(errs, err)
			continue
		}
		log.Printf("Plugin %s handled %s event", p.Manifest.Name, ev.Type)
	}
	return errors.Join(errs...)
}
