package bridge

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/discode-ai/discode/internal/messaging"
)

// recentTTL is how long a completed turn stays resolvable so that late
// events (usage lines, attachments) still find their anchor.
const recentTTL = 30 * time.Second

// promptPreviewWidth caps the prompt text echoed into the anchor message.
const promptPreviewWidth = 120

// PendingEntry is the tracked state of one agent turn.
type PendingEntry struct {
	ChannelID      string
	MessageID      string // user message that started the turn, "" for hook-initiated turns
	StartMessageID string // anchor message, "" until lazily created
	PromptPreview  string
	HookActive     bool
}

type trackerEntry struct {
	PendingEntry
	// anchorMu serializes lazy anchor creation so concurrent events post
	// at most one start message.
	anchorMu sync.Mutex
}

type recentEntry struct {
	entry *trackerEntry
	timer *time.Timer
}

// Tracker follows each instance's turn through pending, completed and
// errored states, and owns the reaction lifecycle on the user's message.
type Tracker struct {
	client messaging.Client
	ttl    time.Duration

	mu     sync.Mutex
	active map[key]*trackerEntry
	recent map[key]*recentEntry
}

// NewTracker creates a tracker posting reactions through client.
func NewTracker(client messaging.Client) *Tracker {
	return newTrackerTTL(client, recentTTL)
}

func newTrackerTTL(client messaging.Client, ttl time.Duration) *Tracker {
	return &Tracker{
		client: client,
		ttl:    ttl,
		active: make(map[key]*trackerEntry),
		recent: make(map[key]*recentEntry),
	}
}

// MarkPending starts a turn for a user-sent message and reacts ⏳ on it.
// Any lingering recently-completed entry for the instance is discarded.
func (t *Tracker) MarkPending(ctx context.Context, project, agentType, channelID, messageID, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	t.dropRecentLocked(k)
	t.active[k] = &trackerEntry{PendingEntry: PendingEntry{
		ChannelID: channelID,
		MessageID: messageID,
	}}
	t.mu.Unlock()

	if messageID == "" {
		return
	}
	if err := t.client.AddReaction(ctx, channelID, messageID, messaging.GlyphWorking); err != nil {
		slog.Warn("add pending reaction failed", "channel_id", channelID, "error", err)
	}
}

// EnsurePending creates a hook-initiated turn if none is active. There is
// no user message, so no reaction is added.
func (t *Tracker) EnsurePending(project, agentType, channelID, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.active[k]; ok {
		return
	}
	t.dropRecentLocked(k)
	t.active[k] = &trackerEntry{PendingEntry: PendingEntry{ChannelID: channelID}}
}

// EnsureStartMessage lazily posts the anchor message for the active turn
// and returns its ID. Idempotent: concurrent callers get the same anchor.
func (t *Tracker) EnsureStartMessage(ctx context.Context, project, agentType, instanceID, promptPreview string) string {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	e, ok := t.active[k]
	if !ok {
		t.mu.Unlock()
		return ""
	}
	if promptPreview != "" {
		e.PromptPreview = promptPreview
	}
	if e.StartMessageID != "" {
		id := e.StartMessageID
		t.mu.Unlock()
		return id
	}
	channelID := e.ChannelID
	preview := e.PromptPreview
	hasUserMessage := e.MessageID != ""
	t.mu.Unlock()

	e.anchorMu.Lock()
	defer e.anchorMu.Unlock()

	t.mu.Lock()
	if e.StartMessageID != "" {
		id := e.StartMessageID
		t.mu.Unlock()
		return id
	}
	t.mu.Unlock()

	var text string
	switch {
	case preview != "":
		text = messaging.GlyphPrompt + " Prompt: " + runewidth.Truncate(preview, promptPreviewWidth, "…")
	case hasUserMessage:
		text = messaging.GlyphPrompt + " Prompt (" + agentType + ")"
	default:
		// Hook-initiated turn with nothing to echo; no anchor yet.
		return ""
	}

	id, err := t.client.SendToChannelWithID(ctx, channelID, text)
	if err != nil {
		slog.Warn("post anchor message failed", "channel_id", channelID, "error", err)
		return ""
	}

	t.mu.Lock()
	e.StartMessageID = id
	t.mu.Unlock()
	return id
}

// SetPromptPreview records the prompt text for the active turn so a later
// anchor carries it.
func (t *Tracker) SetPromptPreview(project, agentType, instanceID, preview string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.active[k]; ok {
		e.PromptPreview = preview
	}
}

// MarkCompleted moves the active turn to the recently-completed window and
// swaps the user message's reaction to ✅. No-op without an active turn.
func (t *Tracker) MarkCompleted(ctx context.Context, project, agentType, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	e, ok := t.active[k]
	if !ok {
		t.mu.Unlock()
		return
	}
	delete(t.active, k)
	t.dropRecentLocked(k)
	re := &recentEntry{entry: e}
	re.timer = time.AfterFunc(t.ttl, func() {
		t.mu.Lock()
		if cur, ok := t.recent[k]; ok && cur == re {
			delete(t.recent, k)
		}
		t.mu.Unlock()
	})
	t.recent[k] = re
	channelID, messageID := e.ChannelID, e.MessageID
	t.mu.Unlock()

	if messageID == "" {
		return
	}
	if err := t.client.ReplaceReaction(ctx, channelID, messageID, messaging.GlyphWorking, messaging.GlyphDone); err != nil {
		slog.Warn("swap completed reaction failed", "channel_id", channelID, "error", err)
	}
}

// MarkError discards the active turn immediately and swaps the reaction
// to ❌. Errored turns do not linger in the recently-completed window.
func (t *Tracker) MarkError(ctx context.Context, project, agentType, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	e, ok := t.active[k]
	if ok {
		delete(t.active, k)
	}
	t.dropRecentLocked(k)
	t.mu.Unlock()

	if !ok || e.MessageID == "" {
		return
	}
	if err := t.client.ReplaceReaction(ctx, e.ChannelID, e.MessageID, messaging.GlyphWorking, messaging.GlyphFailed); err != nil {
		slog.Warn("swap error reaction failed", "channel_id", e.ChannelID, "error", err)
	}
}

// GetPending returns the turn state for an instance, looking at the active
// turn first and then the recently-completed window.
func (t *Tracker) GetPending(project, agentType, instanceID string) (PendingEntry, bool) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.active[k]; ok {
		return e.PendingEntry, true
	}
	if re, ok := t.recent[k]; ok {
		return re.entry.PendingEntry, true
	}
	return PendingEntry{}, false
}

// SetHookActive records that hook events have been observed for the
// instance's current turn. The buffer-fallback watchdog stands down when
// this is set.
func (t *Tracker) SetHookActive(project, agentType, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.active[k]; ok {
		e.HookActive = true
		return
	}
	if re, ok := t.recent[k]; ok {
		re.entry.HookActive = true
	}
}

// IsHookActive reports whether hook events have been seen for the current
// (or just-completed) turn.
func (t *Tracker) IsHookActive(project, agentType, instanceID string) bool {
	k := makeKey(project, agentType, instanceID)

	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.active[k]; ok {
		return e.HookActive
	}
	if re, ok := t.recent[k]; ok {
		return re.entry.HookActive
	}
	return false
}

// dropRecentLocked removes any recently-completed entry and stops its
// expiry timer. Caller holds t.mu.
func (t *Tracker) dropRecentLocked(k key) {
	if re, ok := t.recent[k]; ok {
		re.timer.Stop()
		delete(t.recent, k)
	}
}
