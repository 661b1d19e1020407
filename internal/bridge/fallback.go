package bridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/discode-ai/discode/internal/messaging"
	"github.com/discode-ai/discode/internal/runtime"
)

// Watchdog surfaces terminal output for agents whose hooks stay silent:
// after input is delivered it waits for the screen to stop changing and
// posts the stable buffer to chat.
type Watchdog struct {
	client  messaging.Client
	tracker *Tracker

	initialDelay  time.Duration
	checkInterval time.Duration
	maxChecks     int

	mu    sync.Mutex
	armed map[key]chan struct{}
}

// NewWatchdog creates a watchdog with the standard timing: 3 s grace for
// hooks to speak up, then up to 3 stability checks 2 s apart.
func NewWatchdog(client messaging.Client, tracker *Tracker) *Watchdog {
	return &Watchdog{
		client:        client,
		tracker:       tracker,
		initialDelay:  3 * time.Second,
		checkInterval: 2 * time.Second,
		maxChecks:     3,
		armed:         make(map[key]chan struct{}),
	}
}

// Arm starts (or restarts) the fallback watch for an instance. A new
// message on the same instance cancels the previous watch.
func (w *Watchdog) Arm(project, agentType, instanceID, channelID string, capt runtime.BufferCapturer) {
	if capt == nil {
		return
	}
	k := makeKey(project, agentType, instanceID)

	w.mu.Lock()
	if old, ok := w.armed[k]; ok {
		close(old)
	}
	cancel := make(chan struct{})
	w.armed[k] = cancel
	w.mu.Unlock()

	go w.run(k, project, agentType, instanceID, channelID, capt, cancel)
}

// Cancel stops any outstanding watch for the instance. Terminal events
// call this: hooks have taken responsibility.
func (w *Watchdog) Cancel(project, agentType, instanceID string) {
	k := makeKey(project, agentType, instanceID)

	w.mu.Lock()
	defer w.mu.Unlock()
	if cancel, ok := w.armed[k]; ok {
		close(cancel)
		delete(w.armed, k)
	}
}

// CancelAll stops every outstanding watch. Used at shutdown.
func (w *Watchdog) CancelAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for k, cancel := range w.armed {
		close(cancel)
		delete(w.armed, k)
	}
}

func (w *Watchdog) run(k key, project, agentType, instanceID, channelID string, capt runtime.BufferCapturer, cancel chan struct{}) {
	defer w.disarm(k, cancel)

	if !w.sleep(w.initialDelay, cancel) {
		return
	}
	if w.tracker.IsHookActive(project, agentType, instanceID) {
		return
	}

	ctx := context.Background()
	prev, err := capt.WindowBuffer(ctx)
	if err != nil {
		slog.Debug("fallback buffer capture failed", "project", project, "error", err)
		return
	}

	for i := 0; i < w.maxChecks; i++ {
		if !w.sleep(w.checkInterval, cancel) {
			return
		}
		if w.tracker.IsHookActive(project, agentType, instanceID) {
			return
		}
		curr, err := capt.WindowBuffer(ctx)
		if err != nil {
			slog.Debug("fallback buffer capture failed", "project", project, "error", err)
			return
		}
		if curr == prev {
			if strings.TrimSpace(curr) == "" {
				return
			}
			if err := w.client.SendToChannel(ctx, channelID, "```\n"+strings.TrimRight(curr, "\n")+"\n```"); err != nil {
				slog.Warn("send fallback buffer failed", "channel_id", channelID, "error", err)
				return
			}
			w.tracker.MarkCompleted(ctx, project, agentType, instanceID)
			return
		}
		prev = curr
	}
	// Screen never settled; stay silent.
}

// sleep waits d unless cancelled. Reports whether the wait completed.
func (w *Watchdog) sleep(d time.Duration, cancel <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-cancel:
		return false
	case <-t.C:
		return true
	}
}

// disarm clears the armed entry if it still belongs to this run.
func (w *Watchdog) disarm(k key, cancel chan struct{}) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.armed[k]; ok && cur == cancel {
		delete(w.armed, k)
	}
}
