package bridge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/discode-ai/discode/internal/config"
	"github.com/discode-ai/discode/internal/events"
	"github.com/discode-ai/discode/internal/messaging"
	"github.com/discode-ai/discode/internal/state"
)

func testStore(t *testing.T, projectPath string) *state.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state.json")
	content := `{"projects":{"proj":{"projectName":"proj","projectPath":"` + projectPath + `",
		"instances":{"claude":{"instanceId":"claude","agentType":"claude","channelId":"ch-1"}}}}}`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	store, err := state.Load(path)
	if err != nil {
		t.Fatal(err)
	}
	return store
}

type testHarness struct {
	client   *fakeClient
	store    *state.Store
	tracker  *Tracker
	updater  *Updater
	watchdog *Watchdog
	serial   *Serializer
	pipeline *Pipeline
}

func newHarness(t *testing.T, cfg *config.Config) *testHarness {
	t.Helper()
	if cfg == nil {
		cfg = &config.Config{}
	}
	client := newFakeClient()
	store := testStore(t, t.TempDir())
	serial := NewSerializer()
	t.Cleanup(serial.Close)
	tracker := NewTracker(client)
	updater := NewUpdater(client, 10*time.Millisecond, 20*time.Millisecond)
	watchdog := NewWatchdog(client, tracker)
	pipeline := NewPipeline(cfg, client, store, tracker, updater, watchdog, serial, nil)
	return &testHarness{
		client: client, store: store, tracker: tracker, updater: updater,
		watchdog: watchdog, serial: serial, pipeline: pipeline,
	}
}

func (h *testHarness) drain(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	h.serial.Do("ch-1", func() { close(done) })
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pipeline queue stalled")
	}
}

func TestPipelineStreamsActivityIntoAnchor(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	// A user message started the turn, so the anchor carries the prompt.
	h.tracker.MarkPending(ctx, "proj", "claude", "ch-1", "u-1", "")
	h.tracker.SetPromptPreview("proj", "claude", "", "Fix the bug")

	meta := events.Meta{ProjectName: "proj", AgentType: "claude"}
	h.pipeline.Dispatch(&events.ThinkingStart{M: meta})
	h.pipeline.Dispatch(&events.ToolActivity{M: meta, Text: "📖 Read(`src/a.ts`)"})
	h.pipeline.Dispatch(&events.ToolActivity{M: meta, Text: "✏️ Edit(`src/a.ts`) +2 lines"})
	h.pipeline.Dispatch(&events.ThinkingStop{M: meta})
	h.pipeline.Dispatch(&events.SessionIdle{M: meta, Text: "Fixed.",
		Usage: events.Usage{InputTokens: 120, OutputTokens: 80, TotalCostUSD: 0.01}})
	h.drain(t)

	texts := h.client.sentTexts()
	if len(texts) == 0 || texts[0] != "📝 Prompt: Fix the bug" {
		t.Fatalf("sent = %v, want anchor first", texts)
	}
	if texts[len(texts)-1] != "Fixed." {
		t.Errorf("sent = %v, want final response text last", texts)
	}

	edit, ok := h.client.lastEdit()
	if !ok {
		t.Fatal("expected streamed edits")
	}
	if !strings.HasPrefix(edit.text, "✅ Done · 200 tokens · $0.01") {
		t.Errorf("final edit header: %q", edit.text)
	}
	for _, line := range []string{"📖 Read(`src/a.ts`)", "✏️ Edit(`src/a.ts`) +2 lines"} {
		if !strings.Contains(edit.text, line) {
			t.Errorf("final edit missing %q:\n%s", line, edit.text)
		}
	}

	// Turn closed: reaction swapped and stream forgotten.
	last := h.client.reactions[len(h.client.reactions)-1]
	if last.to != "✅" {
		t.Errorf("final reaction = %+v", last)
	}
	if h.updater.Has("proj", "claude", "") {
		t.Error("stream should be gone after idle")
	}
}

func TestPipelineSuppressesUnsupportedEvents(t *testing.T) {
	h := newHarness(t, nil)

	// codex never emits session.start; the projection must not appear.
	h.pipeline.Dispatch(&events.SessionStart{
		M:      events.Meta{ProjectName: "proj", AgentType: "codex"},
		Source: "user",
	})
	h.drain(t)

	if texts := h.client.sentTexts(); len(texts) != 0 {
		t.Errorf("sent = %v, want none", texts)
	}
}

func TestPipelineDropsUnknownProject(t *testing.T) {
	h := newHarness(t, nil)

	h.pipeline.Dispatch(&events.SessionIdle{
		M:    events.Meta{ProjectName: "ghost", AgentType: "claude"},
		Text: "hello",
	})
	h.drain(t)

	if texts := h.client.sentTexts(); len(texts) != 0 {
		t.Errorf("sent = %v, want none", texts)
	}
}

func TestPipelineStartupSessionStartInvisible(t *testing.T) {
	h := newHarness(t, nil)

	h.pipeline.Dispatch(&events.SessionStart{
		M:      events.Meta{ProjectName: "proj", AgentType: "claude"},
		Source: "startup",
	})
	h.drain(t)

	if texts := h.client.sentTexts(); len(texts) != 0 {
		t.Errorf("sent = %v, warmup must stay invisible", texts)
	}
}

func TestPipelineSessionError(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.tracker.MarkPending(ctx, "proj", "claude", "ch-1", "u-1", "")
	h.pipeline.Dispatch(&events.SessionError{
		M: events.Meta{ProjectName: "proj", AgentType: "opencode"},
	})
	h.drain(t)

	// opencode resolves to the only instance; text defaults.
	texts := h.client.sentTexts()
	if len(texts) != 1 || texts[0] != "⚠️ unknown error" {
		t.Errorf("sent = %v", texts)
	}
}

func TestPipelineErrorDiscardsTurnAndStream(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.tracker.MarkPending(ctx, "proj", "claude", "ch-1", "u-1", "")
	h.tracker.SetPromptPreview("proj", "claude", "", "do it")

	meta := events.Meta{ProjectName: "proj", AgentType: "claude"}
	h.pipeline.Dispatch(&events.ToolActivity{M: meta, Text: "💻 `make`"})
	h.drain(t)

	// claude has no session.error capability, so drive the teardown from
	// an unknown agent resolving to the same instance key.
	h.pipeline.Dispatch(&events.SessionError{
		M:    events.Meta{ProjectName: "proj", AgentType: "mycli", InstanceID: "claude"},
		Text: "boom",
	})
	h.drain(t)

	if h.updater.Has("proj", "claude", "") {
		t.Error("stream must be discarded on error")
	}
	if _, ok := h.tracker.GetPending("proj", "claude", ""); ok {
		t.Error("turn must be gone on error")
	}
}

func TestPipelineIdleProjectionFlags(t *testing.T) {
	cfg := &config.Config{}
	cfg.Projection.PostIntermediateText = true
	cfg.Projection.PostThinking = true
	cfg.Projection.PostUsage = true
	h := newHarness(t, cfg)

	h.pipeline.Dispatch(&events.SessionIdle{
		M:                events.Meta{ProjectName: "proj", AgentType: "claude"},
		Text:             "Done.",
		IntermediateText: "working on it",
		Thinking:         "deep thoughts",
		Usage:            events.Usage{InputTokens: 10, OutputTokens: 5, TotalCostUSD: 0.02},
	})
	h.drain(t)

	joined := strings.Join(h.client.sentTexts(), "\n---\n")
	for _, want := range []string{
		"working on it",
		":brain: *Reasoning*",
		"deep thoughts",
		"📊 Usage: Input: 10 · Output: 5 · Cost: $0.02",
		"Done.",
	} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing %q in:\n%s", want, joined)
		}
	}
}

func TestPipelineIdleTruncatesThinking(t *testing.T) {
	cfg := &config.Config{}
	cfg.Projection.PostThinking = true
	h := newHarness(t, cfg)

	h.pipeline.Dispatch(&events.SessionIdle{
		M:        events.Meta{ProjectName: "proj", AgentType: "claude"},
		Thinking: strings.Repeat("t", thinkingPostLimit+100),
	})
	h.drain(t)

	joined := strings.Join(h.client.sentTexts(), "")
	if !strings.Contains(joined, "_(truncated)_") {
		t.Error("oversized thinking should carry the truncation suffix")
	}
}

func TestPromptQuestionsAnswerReentersRouter(t *testing.T) {
	h := newHarness(t, nil)
	h.client.answer = "Yes"

	got := make(chan string, 1)
	h.pipeline.SetInboundHandler(func(msg messaging.Inbound) {
		got <- msg.Text
	})

	h.pipeline.Dispatch(&events.SessionIdle{
		M: events.Meta{ProjectName: "proj", AgentType: "claude"},
		PromptQuestions: []events.PromptQuestion{{
			Question: "Deploy?",
			Options:  []events.PromptOption{{Label: "Yes"}, {Label: "No"}},
		}},
	})
	h.drain(t)

	select {
	case text := <-got:
		if text != "Yes" {
			t.Errorf("re-entered text = %q, want Yes", text)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("button answer never re-entered the router")
	}
}

func TestPipelinePlanFileAttached(t *testing.T) {
	h := newHarness(t, nil)
	plan := filepath.Join(t.TempDir(), "plan.md")
	if err := os.WriteFile(plan, []byte("# plan"), 0o644); err != nil {
		t.Fatal(err)
	}

	h.pipeline.Dispatch(&events.SessionIdle{
		M:            events.Meta{ProjectName: "proj", AgentType: "claude"},
		PromptText:   "Approve this plan?",
		PlanFilePath: plan,
	})
	h.drain(t)
	waitFor(t, func() bool {
		h.client.mu.Lock()
		defer h.client.mu.Unlock()
		return len(h.client.files) > 0
	})

	h.client.mu.Lock()
	defer h.client.mu.Unlock()
	fc := h.client.files[0]
	if fc.text != "Approve this plan?" || len(fc.paths) != 1 || fc.paths[0] != plan {
		t.Errorf("file call = %+v", fc)
	}
}
