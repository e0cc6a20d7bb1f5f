// Package tray provides a system tray menu for kalimat.
package tray

import (
	"sync"

	"github.com/getlantern/systray"

	"github.com/ayusman/kalimat/internal/emitter"
)

// Tray represents the system tray application.
type Tray struct {
	onMirror func(enabled bool)
	onClear  func()
	onOpen   func()
	onQuit   func()
	mirror   bool
	lastWord string
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuMirror   *systray.MenuItem
	menuLastWord *systray.MenuItem
}

// New creates a new Tray showing the given initial mirror state.
func New(mirror bool) *Tray {
	return &Tray{
		mirror: mirror,
	}
}

// OnMirror sets the callback called when mirroring is toggled.
func (t *Tray) OnMirror(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onMirror = fn
}

// OnClear sets the callback called when the clear sentence item is clicked.
func (t *Tray) OnClear(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onClear = fn
}

// OnOpen sets the callback called when the open in browser item is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback called when the quit item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until Quit is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Kalimat")
	systray.SetTooltip("Kalimat gesture transcriber")

	t.mu.Lock()
	t.menuMirror = systray.AddMenuItem(mirrorTitle(t.mirror), "Flip the camera image horizontally")
	systray.AddSeparator()

	t.menuLastWord = systray.AddMenuItem(lastWordTitle(t.lastWord), "Last confirmed word")
	t.menuLastWord.Disable()
	t.mu.Unlock()

	menuClear := systray.AddMenuItem("Clear Sentence", "Remove all confirmed words")
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser...", "Open the web interface")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Kalimat")

	// Handle menu item clicks in a separate goroutine
	go func() {
		for {
			select {
			case <-t.menuMirror.ClickedCh:
				t.handleMirror()
			case <-menuClear.ClickedCh:
				t.handleClear()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				systray.Quit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// handleMirror flips the mirror state and reports it.
func (t *Tray) handleMirror() {
	t.mu.Lock()
	t.mirror = !t.mirror
	enabled := t.mirror
	if t.menuMirror != nil {
		t.menuMirror.SetTitle(mirrorTitle(enabled))
	}
	callback := t.onMirror
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
	}
}

func (t *Tray) handleClear() {
	t.mu.RLock()
	callback := t.onClear
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleOpen() {
	t.mu.RLock()
	callback := t.onOpen
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.mu.RLock()
	callback := t.onQuit
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

// SetMirror updates the mirror state shown in the menu without calling OnMirror.
func (t *Tray) SetMirror(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mirror = enabled
	if t.menuMirror != nil {
		t.menuMirror.SetTitle(mirrorTitle(enabled))
	}
}

// SetLastWord updates the last confirmed word shown in the menu.
func (t *Tray) SetLastWord(word string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lastWord = word
	if t.menuLastWord != nil {
		t.menuLastWord.SetTitle(lastWordTitle(word))
	}
}

// Emit keeps the menu in sync with transcript events.
func (t *Tray) Emit(ev emitter.Event) error {
	switch ev.Type {
	case emitter.EventConfirmed:
		t.SetLastWord(ev.Word)
	case emitter.EventCleared:
		t.SetLastWord("")
	}
	return nil
}

// Mirror returns the mirror state shown in the menu.
func (t *Tray) Mirror() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.mirror
}

// LastWord returns the last confirmed word shown in the menu.
func (t *Tray) LastWord() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lastWord
}

func mirrorTitle(enabled bool) string {
	if enabled {
		return "● Mirror"
	}
	return "○ Mirror"
}

func lastWordTitle(word string) string {
	if word == "" {
		return "Last: none"
	}
	return "Last: " + word
}
