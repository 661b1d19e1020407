package bridge

import (
	"sync"
	"time"
)

// lifecycleTimeout is how long after a submitted message the engine waits
// for any session lifecycle event before declaring the hooks silent.
const lifecycleTimeout = 120 * time.Second

type thinkingTicker struct {
	startedAt time.Time
	stop      chan struct{}
}

// timerSet owns the per-instance thinking tickers and lifecycle timers so
// terminal events can cancel everything in one place.
type timerSet struct {
	mu        sync.Mutex
	thinking  map[key]*thinkingTicker
	lifecycle map[key]*time.Timer
}

func newTimerSet() *timerSet {
	return &timerSet{
		thinking:  make(map[key]*thinkingTicker),
		lifecycle: make(map[key]*time.Timer),
	}
}

// startThinking begins a 1s ticker calling onTick with the elapsed whole
// seconds. A previous ticker for the same instance is stopped first.
func (ts *timerSet) startThinking(k key, onTick func(elapsed int)) {
	ts.mu.Lock()
	ts.stopThinkingLocked(k)
	t := &thinkingTicker{startedAt: time.Now(), stop: make(chan struct{})}
	ts.thinking[k] = t
	ts.mu.Unlock()

	go func() {
		tick := time.NewTicker(time.Second)
		defer tick.Stop()
		for {
			select {
			case <-t.stop:
				return
			case <-tick.C:
				onTick(int(time.Since(t.startedAt) / time.Second))
			}
		}
	}()
}

// stopThinking ends the ticker and returns how long it ran.
func (ts *timerSet) stopThinking(k key) (time.Duration, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	t, ok := ts.thinking[k]
	if !ok {
		return 0, false
	}
	ts.stopThinkingLocked(k)
	return time.Since(t.startedAt), true
}

func (ts *timerSet) stopThinkingLocked(k key) {
	if t, ok := ts.thinking[k]; ok {
		close(t.stop)
		delete(ts.thinking, k)
	}
}

// armLifecycle schedules fn unless a lifecycle event clears the timer
// first. Re-arming replaces the previous timer.
func (ts *timerSet) armLifecycle(k key, d time.Duration, fn func()) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if old, ok := ts.lifecycle[k]; ok {
		old.Stop()
	}
	ts.lifecycle[k] = time.AfterFunc(d, func() {
		ts.mu.Lock()
		delete(ts.lifecycle, k)
		ts.mu.Unlock()
		fn()
	})
}

// clearLifecycle cancels the pending lifecycle timer, if any.
func (ts *timerSet) clearLifecycle(k key) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if t, ok := ts.lifecycle[k]; ok {
		t.Stop()
		delete(ts.lifecycle, k)
	}
}

// clearAll cancels every timer for the instance. Terminal events call this.
func (ts *timerSet) clearAll(k key) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.stopThinkingLocked(k)
	if t, ok := ts.lifecycle[k]; ok {
		t.Stop()
		delete(ts.lifecycle, k)
	}
}
