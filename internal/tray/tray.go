// Package tray provides an optional system tray menu for the tracking server.
package tray

import (
	"fmt"
	"sync"

	"github.com/getlantern/systray"
)

// Tray is the system tray menu. It toggles the smoothing default applied to
// new sessions and shows how many clients are connected.
type Tray struct {
	onToggle func(enabled bool)
	onOpen   func()
	onQuit   func()
	smooth   bool
	sessions int
	mu       sync.RWMutex

	// Menu items stored for later updates
	menuToggle   *systray.MenuItem
	menuSessions *systray.MenuItem
}

// New creates a Tray showing smoothing as enabled or not.
func New(smoothing bool) *Tray {
	return &Tray{
		smooth: smoothing,
	}
}

// OnToggle sets the callback run when smoothing is toggled.
func (t *Tray) OnToggle(fn func(enabled bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onToggle = fn
}

// OnOpen sets the callback run when "Open in Browser" is clicked.
func (t *Tray) OnOpen(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onOpen = fn
}

// OnQuit sets the callback run when "Quit" is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the tray. It blocks until Quit is called and must run on the
// main goroutine on macOS.
func (t *Tray) Run() {
	systray.Run(t.onReady, func() {})
}

// Quit stops a running tray.
func (t *Tray) Quit() {
	systray.Quit()
}

func (t *Tray) onReady() {
	systray.SetTitle("Mudra")
	systray.SetTooltip("Mudra fingertip tracking")

	t.mu.Lock()
	t.menuToggle = systray.AddMenuItem(toggleTitle(t.smooth), "Smoothing for new sessions")
	systray.AddSeparator()
	t.menuSessions = systray.AddMenuItem(sessionsTitle(t.sessions), "Connected clients")
	t.menuSessions.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuOpen := systray.AddMenuItem("Open in Browser", "Open the tracking page")
	menuQuit := systray.AddMenuItem("Quit", "Quit Mudra")

	go func() {
		for {
			select {
			case <-t.menuToggle.ClickedCh:
				t.handleToggle()
			case <-menuOpen.ClickedCh:
				t.handleOpen()
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) handleToggle() {
	t.mu.Lock()
	t.smooth = !t.smooth
	enabled := t.smooth
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
	callback := t.onToggle
	t.mu.Unlock()

	// Call the callback outside the lock to prevent deadlocks
	if callback != nil {
		callback(enabled)
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

	systray.Quit()
}

// SetSessionCount updates the connected clients line.
func (t *Tray) SetSessionCount(n int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.sessions = n
	if t.menuSessions != nil {
		t.menuSessions.SetTitle(sessionsTitle(n))
	}
}

// SetSmoothing shows enabled as the current smoothing state without running
// the toggle callback.
func (t *Tray) SetSmoothing(enabled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.smooth = enabled
	if t.menuToggle != nil {
		t.menuToggle.SetTitle(toggleTitle(enabled))
	}
}

// Smoothing returns the current toggle state.
func (t *Tray) Smoothing() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.smooth
}

func toggleTitle(enabled bool) string {
	if enabled {
		return "● Smoothing on"
	}
	return "○ Smoothing off"
}

func sessionsTitle(n int) string {
	if n == 1 {
		return "1 client connected"
	}
	return fmt.Sprintf("%d clients connected", n)
}
