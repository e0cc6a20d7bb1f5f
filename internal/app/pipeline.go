package app

import (
	"log"

	"github.com/ayusman/kalimat/internal/emitter"
)

// eventBuffer is how many transcript events may wait for delivery before
// new ones are dropped.
const eventBuffer = 64

// AddSink registers another event consumer. Sinks added after events were
// published only see later events.
func (a *App) AddSink(s emitter.Sink) {
	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	a.sinks = append(a.sinks, s)
}

// publish stamps ev and queues it for delivery. It never blocks the caller.
func (a *App) publish(ev emitter.Event) {
	ev.Session = a.session
	ev.Timestamp = a.now()
	if ev.Sentence == "" {
		ev.Sentence = a.engine.Sentence()
	}

	a.eventsMu.Lock()
	defer a.eventsMu.Unlock()
	if a.closed {
		return
	}

	select {
	case a.events <- ev:
	default:
		log.Printf("Event queue full, dropping %s event", ev.Type)
	}
}

// dispatch delivers queued events to every sink in order until Close.
func (a *App) dispatch() {
	defer a.dispatched.Done()

	for ev := range a.events {
		a.eventsMu.Lock()
		sinks := append([]emitter.Sink(nil), a.sinks...)
		a.eventsMu.Unlock()

		for _, s := range sinks {
			if err := s.Emit(ev); err != nil {
				log.Printf("Failed to deliver %s event: %v", ev.Type, err)
			}
		}
	}
}

func (a *App) countConfirmed(ev emitter.Event) error {
	if ev.Type != emitter.EventConfirmed {
		return nil
	}
	return a.sessions.AddConfirmed(ev.Session)
}
