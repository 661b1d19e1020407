// Package runtime delivers keystrokes to running agent instances and reads
// their terminal screens back. Three kinds exist: tmux windows, in-process
// PTYs with a virtual terminal, and SDK runners that accept whole messages.
package runtime

import (
	"context"
	"sync"
)

// Runtime delivers input to one agent instance.
type Runtime interface {
	// TypeKeys types literal text into the agent without submitting it.
	TypeKeys(ctx context.Context, text string) error

	// SendEnter presses Enter, submitting whatever has been typed.
	SendEnter(ctx context.Context) error
}

// BufferCapturer is implemented by runtimes that can snapshot the visible
// terminal screen. The buffer-fallback watchdog requires it.
type BufferCapturer interface {
	// WindowBuffer returns the rendered terminal screen as plain text.
	WindowBuffer(ctx context.Context) (string, error)
}

// Submitter is implemented by SDK runtimes that accept a whole message
// instead of keystrokes.
type Submitter interface {
	SubmitMessage(ctx context.Context, text string) error
}

// Key identifies one agent instance.
type Key struct {
	Project  string
	Instance string // instance ID, or agent type when no ID was assigned
}

// Registry maps instance keys to their runtimes. Safe for concurrent use.
type Registry struct {
	mu sync.RWMutex
	m  map[Key]Runtime
}

// NewRegistry creates an empty runtime registry.
func NewRegistry() *Registry {
	return &Registry{m: make(map[Key]Runtime)}
}

// Register binds a runtime to an instance key, replacing any prior binding.
func (r *Registry) Register(key Key, rt Runtime) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.m[key] = rt
}

// Unregister removes an instance binding.
func (r *Registry) Unregister(key Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.m, key)
}

// Lookup returns the runtime for an instance key.
func (r *Registry) Lookup(key Key) (Runtime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rt, ok := r.m[key]
	return rt, ok
}

// CloseAll disposes every runtime that supports closing. Used at shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key, rt := range r.m {
		if closer, ok := rt.(interface{ Close() error }); ok {
			_ = closer.Close()
		}
		delete(r.m, key)
	}
}
