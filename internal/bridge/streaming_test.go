package bridge

import (
	"context"
	"strings"
	"testing"
	"time"
)

func newTestUpdater(client *fakeClient) *Updater {
	return NewUpdater(client, 10*time.Millisecond, 20*time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestUpdaterAppendDebounced(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	u.AppendCumulative("proj", "claude", "", "line one")
	u.AppendCumulative("proj", "claude", "", "line two")
	u.AppendCumulative("proj", "claude", "", "line three")

	waitFor(t, func() bool { return len(client.editTexts()) >= 1 })

	edit, _ := client.lastEdit()
	if edit.messageID != "anchor-1" {
		t.Errorf("edited message = %q, want anchor-1", edit.messageID)
	}
	want := "line one\nline two\nline three"
	if edit.text != want {
		t.Errorf("edit text = %q, want %q", edit.text, want)
	}
	if n := len(client.editTexts()); n > 2 {
		t.Errorf("expected coalesced edits, got %d", n)
	}
}

func TestUpdaterAppendWithoutStartIsNoop(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.AppendCumulative("proj", "claude", "", "orphan")
	time.Sleep(50 * time.Millisecond)
	if len(client.editTexts()) != 0 {
		t.Errorf("edits = %v, want none", client.editTexts())
	}
}

func TestUpdaterReplaceLastLine(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	u.AppendCumulative("proj", "claude", "", "🧠 Thinking...")
	u.ReplaceLastLine("proj", "claude", "", "🧠 Thinking for 3s...")

	waitFor(t, func() bool {
		edit, ok := client.lastEdit()
		return ok && edit.text == "🧠 Thinking for 3s..."
	})
}

func TestUpdaterFinalizePrependsHeaderAndForgets(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	u.AppendCumulative("proj", "claude", "", "📖 Read(`a.go`)")
	u.AppendCumulative("proj", "claude", "", "✏️ Edit(`a.go`) +2 lines")
	u.Finalize(context.Background(), "proj", "claude", "", "✅ Done · 200 tokens · $0.01")

	edit, ok := client.lastEdit()
	if !ok {
		t.Fatal("expected a final edit")
	}
	want := "✅ Done · 200 tokens · $0.01\n📖 Read(`a.go`)\n✏️ Edit(`a.go`) +2 lines"
	if edit.text != want {
		t.Errorf("final text = %q, want %q", edit.text, want)
	}
	if u.Has("proj", "claude", "") {
		t.Error("entry should be forgotten after finalize")
	}

	// Appends after finalize go nowhere.
	before := len(client.editTexts())
	u.AppendCumulative("proj", "claude", "", "late")
	time.Sleep(50 * time.Millisecond)
	if len(client.editTexts()) != before {
		t.Error("append after finalize must be a no-op")
	}
}

func TestUpdaterFinalizeReflectsEveryAppend(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	var want []string
	for i := 0; i < 20; i++ {
		line := "line " + strings.Repeat("x", i)
		want = append(want, line)
		u.AppendCumulative("proj", "claude", "", line)
	}
	u.Finalize(context.Background(), "proj", "claude", "", "")

	edit, ok := client.lastEdit()
	if !ok {
		t.Fatal("expected a final edit")
	}
	if edit.text != strings.Join(want, "\n") {
		t.Errorf("final edit missing appends:\n%s", edit.text)
	}
}

func TestUpdaterTruncatesOldestLines(t *testing.T) {
	client := newFakeClient()
	client.maxLen = 80
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	for i := 0; i < 10; i++ {
		u.AppendCumulative("proj", "claude", "", strings.Repeat("a", 20))
	}
	u.Finalize(context.Background(), "proj", "claude", "", "")

	edit, _ := client.lastEdit()
	if len(edit.text) > 80 {
		t.Errorf("text length %d exceeds platform cap", len(edit.text))
	}
	if !strings.HasPrefix(edit.text, truncationMarker) {
		t.Errorf("text should start with truncation marker: %q", edit.text)
	}
}

func TestUpdaterDiscardSkipsFinalEdit(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	u.AppendCumulative("proj", "claude", "", "some work")
	u.Discard("proj", "claude", "")

	time.Sleep(50 * time.Millisecond)
	if u.Has("proj", "claude", "") {
		t.Error("entry should be gone")
	}
	u.Finalize(context.Background(), "proj", "claude", "", "header")
	if len(client.editTexts()) != 0 {
		t.Errorf("edits = %v, want none after discard", client.editTexts())
	}
}

func TestUpdaterRetriesFailedEditOnNextAppend(t *testing.T) {
	client := newFakeClient()
	u := newTestUpdater(client)

	u.Start("proj", "claude", "", "ch-1", "anchor-1")
	client.mu.Lock()
	client.editErr = context.DeadlineExceeded
	client.mu.Unlock()

	u.AppendCumulative("proj", "claude", "", "first")
	time.Sleep(60 * time.Millisecond)

	client.mu.Lock()
	client.editErr = nil
	client.mu.Unlock()

	u.AppendCumulative("proj", "claude", "", "second")
	waitFor(t, func() bool {
		edit, ok := client.lastEdit()
		return ok && edit.text == "first\nsecond"
	})
}
