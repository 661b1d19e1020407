package runtime

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
)

// Tmux drives an agent running inside a tmux window.
type Tmux struct {
	session string
	window  string
}

// NewTmux creates a runtime for the given tmux session and window.
func NewTmux(session, window string) *Tmux {
	return &Tmux{session: session, window: window}
}

func (t *Tmux) target() string {
	if t.window == "" {
		return t.session
	}
	return t.session + ":" + t.window
}

// TypeKeys types literal text into the window without submitting it.
func (t *Tmux) TypeKeys(ctx context.Context, text string) error {
	// -l sends the text literally so key names like "Enter" inside the
	// message are not interpreted.
	return t.run(ctx, "send-keys", "-t", t.target(), "-l", text)
}

// SendEnter presses Enter in the window.
func (t *Tmux) SendEnter(ctx context.Context) error {
	return t.run(ctx, "send-keys", "-t", t.target(), "Enter")
}

// WindowBuffer captures the visible pane content.
func (t *Tmux) WindowBuffer(ctx context.Context) (string, error) {
	cmd := exec.CommandContext(ctx, "tmux", "capture-pane", "-p", "-t", t.target())
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux capture-pane %s: %w", t.target(), err)
	}
	return out.String(), nil
}

func (t *Tmux) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, "tmux", args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("tmux %s: %w (%s)", args[0], err, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}
