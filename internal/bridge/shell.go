package bridge

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/discode-ai/discode/internal/messaging"
)

const (
	shellTimeout   = 30 * time.Second
	shellOutputCap = 1 << 20 // 1 MiB
)

// cappedBuffer keeps the first limit bytes written and drops the rest.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (c *cappedBuffer) Write(p []byte) (int, error) {
	if room := c.limit - c.buf.Len(); room > 0 {
		if len(p) > room {
			c.buf.Write(p[:room])
		} else {
			c.buf.Write(p)
		}
	}
	return len(p), nil
}

// runShell executes a !-escaped command in the project directory and posts
// its output. The command never reaches the agent and never creates a
// pending turn.
func (r *Router) runShell(ctx context.Context, projectPath, channelID, command string) {
	ctx, cancel := context.WithTimeout(ctx, shellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = projectPath
	stdout := &cappedBuffer{limit: shellOutputCap}
	stderr := &cappedBuffer{limit: shellOutputCap}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()

	var text string
	if err == nil {
		out := bytes.TrimSpace(stdout.buf.Bytes())
		if len(out) == 0 {
			text = messaging.GlyphDone + " (no output)"
		} else {
			text = "```\n" + string(out) + "\n```"
		}
	} else {
		code := -1
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		}
		combined := bytes.TrimSpace(append(stdout.buf.Bytes(), stderr.buf.Bytes()...))
		if len(combined) == 0 {
			text = fmt.Sprintf("%s Exit code %d (no output)", messaging.GlyphWarning, code)
		} else {
			text = fmt.Sprintf("%s Exit code %d\n```\n%s\n```", messaging.GlyphWarning, code, combined)
		}
	}

	if err := r.client.SendToChannel(ctx, channelID, text); err != nil {
		slog.Warn("send shell output failed", "channel_id", channelID, "error", err)
	}
}
