package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/creack/pty"
	"github.com/tuzig/vt10x"
)

const (
	ptyCols = 80
	ptyRows = 24
)

// PTY runs an agent CLI on a pseudo-terminal and mirrors its output into a
// virtual terminal so the visible screen can be captured without tmux.
type PTY struct {
	mu   sync.Mutex
	file ptyFile
	term vt10x.Terminal
	done chan struct{}
	err  error
}

type ptyFile interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// StartPTY launches the command on a new pty sized to a standard terminal.
// The command's extraEnv is appended to its inherited environment.
func StartPTY(cmd *exec.Cmd, extraEnv []string) (*PTY, error) {
	if len(extraEnv) > 0 {
		cmd.Env = append(cmd.Environ(), extraEnv...)
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: ptyCols, Rows: ptyRows})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}

	p := &PTY{
		file: f,
		term: vt10x.New(vt10x.WithSize(ptyCols, ptyRows)),
		done: make(chan struct{}),
	}
	go p.readLoop()
	return p, nil
}

// readLoop feeds pty output into the virtual terminal until the process
// exits or the pty is closed.
func (p *PTY) readLoop() {
	defer close(p.done)
	buf := make([]byte, 4096)
	for {
		n, err := p.file.Read(buf)
		if n > 0 {
			p.mu.Lock()
			_, _ = p.term.Write(buf[:n])
			p.mu.Unlock()
		}
		if err != nil {
			p.mu.Lock()
			p.err = err
			p.mu.Unlock()
			return
		}
	}
}

// TypeKeys writes literal text to the pty without submitting it.
func (p *PTY) TypeKeys(_ context.Context, text string) error {
	if _, err := p.file.Write([]byte(text)); err != nil {
		return fmt.Errorf("pty write: %w", err)
	}
	return nil
}

// SendEnter presses Enter.
func (p *PTY) SendEnter(_ context.Context) error {
	if _, err := p.file.Write([]byte("\r")); err != nil {
		return fmt.Errorf("pty write enter: %w", err)
	}
	return nil
}

// WindowBuffer renders the virtual terminal screen as plain text, trailing
// blank lines removed.
func (p *PTY) WindowBuffer(_ context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	lines := make([]string, 0, ptyRows)
	for row := 0; row < ptyRows; row++ {
		var sb strings.Builder
		for col := 0; col < ptyCols; col++ {
			g := p.term.Cell(col, row)
			if g.Char == 0 {
				sb.WriteByte(' ')
			} else {
				sb.WriteRune(g.Char)
			}
		}
		lines = append(lines, strings.TrimRight(sb.String(), " "))
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return strings.Join(lines, "\n"), nil
}

// Close tears the pty down. The agent process receives EOF/SIGHUP.
func (p *PTY) Close() error {
	err := p.file.Close()
	select {
	case <-p.done:
	default:
		slog.Debug("pty closed while read loop active")
	}
	return err
}
