// Package hotkey binds global keyboard shortcuts to recording actions.
package hotkey

import (
	"fmt"
	"log/slog"
	"sync"

	hook "github.com/robotn/gohook"
)

// Bindings maps key names (gohook syntax, e.g. "f9") to actions. Callbacks
// run on the hook event goroutine and must not block; post to a channel and
// return.
type Bindings struct {
	StartKey string
	StopKey  string
	QuitKey  string

	OnStart func()
	OnStop  func()
	OnQuit  func()
}

// Manager owns the global keyboard hook lifecycle.
type Manager struct {
	mu      sync.Mutex
	running bool
	done    chan struct{}
}

// NewManager creates an idle Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start installs the global hook and begins dispatching events. It returns
// an error if the hook is already installed.
func (m *Manager) Start(b Bindings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("hotkey manager already running")
	}

	register := func(key string, action func()) {
		if key == "" || action == nil {
			return
		}
		hook.Register(hook.KeyDown, []string{key}, func(hook.Event) {
			action()
		})
	}
	register(b.StartKey, b.OnStart)
	register(b.StopKey, b.OnStop)
	register(b.QuitKey, b.OnQuit)

	events := hook.Start()
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-hook.Process(events)
	}()

	m.running = true
	m.done = done
	slog.Info("global hotkeys registered",
		"start", b.StartKey, "stop", b.StopKey, "quit", b.QuitKey)
	return nil
}

// Stop removes the hook and waits for the event loop to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	hook.End()
	<-m.done
	m.running = false
	m.done = nil
}
