package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/discode-ai/discode/internal/messaging"
)

// truncationMarker replaces dropped lines when the rolling activity text
// outgrows the platform's message limit.
const truncationMarker = "… (older activity truncated)"

type streamEntry struct {
	channelID string
	anchorID  string
	lines     []string
	dirty     bool
	lastEdit  time.Time
	timer     *time.Timer
}

// Updater maintains one edited-in-place activity message per instance.
// Appends are debounced and edits are rate-capped so platform APIs see a
// steady trickle instead of a burst per tool call.
type Updater struct {
	client      messaging.Client
	debounce    time.Duration
	minInterval time.Duration

	mu      sync.Mutex
	entries map[key]*streamEntry
}

// NewUpdater creates an updater. debounce coalesces bursts of appends;
// minInterval is the floor between consecutive edits of one message.
func NewUpdater(client messaging.Client, debounce, minInterval time.Duration) *Updater {
	return &Updater{
		client:      client,
		debounce:    debounce,
		minInterval: minInterval,
		entries:     make(map[key]*streamEntry),
	}
}

// CanStream reports whether in-place message editing is available. Both
// supported platforms edit messages, so this is a nil guard.
func (u *Updater) CanStream() bool { return u.client != nil }

// Start begins streaming into anchorID. Replaces any previous stream for
// the same instance.
func (u *Updater) Start(project, agentType, instanceID, channelID, anchorID string) {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	defer u.mu.Unlock()
	if old, ok := u.entries[k]; ok && old.timer != nil {
		old.timer.Stop()
	}
	u.entries[k] = &streamEntry{channelID: channelID, anchorID: anchorID}
}

// Has reports whether a stream is active for the instance.
func (u *Updater) Has(project, agentType, instanceID string) bool {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.entries[k]
	return ok
}

// AppendCumulative adds a line to the rolling activity text and schedules
// an edit. No-op when no stream is active.
func (u *Updater) AppendCumulative(project, agentType, instanceID, line string) {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[k]
	if !ok {
		return
	}
	e.lines = append(e.lines, line)
	e.dirty = true
	u.scheduleLocked(k, e)
}

// ReplaceLastLine rewrites the most recent line in place. The thinking
// ticker uses this to count seconds without growing the message.
func (u *Updater) ReplaceLastLine(project, agentType, instanceID, line string) {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	defer u.mu.Unlock()
	e, ok := u.entries[k]
	if !ok || len(e.lines) == 0 {
		return
	}
	e.lines[len(e.lines)-1] = line
	e.dirty = true
	u.scheduleLocked(k, e)
}

// Finalize prepends header above the accumulated activity, pushes one last
// immediate edit (the rate cap does not apply to the final state) and
// forgets the stream.
func (u *Updater) Finalize(ctx context.Context, project, agentType, instanceID, header string) {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	e, ok := u.entries[k]
	if !ok {
		u.mu.Unlock()
		return
	}
	delete(u.entries, k)
	if e.timer != nil {
		e.timer.Stop()
	}
	var parts []string
	if header != "" {
		parts = append(parts, header)
	}
	parts = append(parts, e.lines...)
	text := u.fitLocked(parts)
	channelID, anchorID := e.channelID, e.anchorID
	u.mu.Unlock()

	if text == "" {
		return
	}
	if err := u.client.UpdateMessage(ctx, channelID, anchorID, text); err != nil {
		slog.Warn("finalize stream edit failed", "channel_id", channelID, "error", err)
	}
}

// Discard drops the stream without a final edit. Errored turns use this so
// the anchor keeps its last streamed state.
func (u *Updater) Discard(project, agentType, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	u.mu.Lock()
	defer u.mu.Unlock()
	if e, ok := u.entries[k]; ok {
		if e.timer != nil {
			e.timer.Stop()
		}
		delete(u.entries, k)
	}
}

// scheduleLocked arms the flush timer if one is not already pending,
// waiting out whichever is longer: the debounce or the remaining edit
// cooldown. Caller holds u.mu.
func (u *Updater) scheduleLocked(k key, e *streamEntry) {
	if e.timer != nil {
		return
	}
	wait := u.debounce
	if !e.lastEdit.IsZero() {
		if cooldown := u.minInterval - time.Since(e.lastEdit); cooldown > wait {
			wait = cooldown
		}
	}
	e.timer = time.AfterFunc(wait, func() { u.flush(k) })
}

func (u *Updater) flush(k key) {
	u.mu.Lock()
	e, ok := u.entries[k]
	if !ok {
		u.mu.Unlock()
		return
	}
	e.timer = nil
	if !e.dirty {
		u.mu.Unlock()
		return
	}
	e.dirty = false
	e.lastEdit = time.Now()
	text := u.fitLocked(append([]string(nil), e.lines...))
	channelID, anchorID := e.channelID, e.anchorID
	u.mu.Unlock()

	if err := u.client.UpdateMessage(context.Background(), channelID, anchorID, text); err != nil {
		slog.Warn("stream edit failed", "channel_id", channelID, "error", err)
		u.mu.Lock()
		if cur, ok := u.entries[k]; ok && cur == e {
			// Retry together with the next append.
			e.dirty = true
		}
		u.mu.Unlock()
	}
}

// fitLocked joins lines and, when over the platform limit, drops oldest
// lines behind a truncation marker. Caller holds u.mu.
func (u *Updater) fitLocked(lines []string) string {
	maxLen := u.client.MaxMessageLen()
	text := strings.Join(lines, "\n")
	if len(text) <= maxLen {
		return text
	}
	for len(lines) > 1 {
		lines = lines[1:]
		text = truncationMarker + "\n" + strings.Join(lines, "\n")
		if len(text) <= maxLen {
			return text
		}
	}
	// A single oversized line: hard cut.
	if len(text) > maxLen {
		text = text[:maxLen]
	}
	return text
}
