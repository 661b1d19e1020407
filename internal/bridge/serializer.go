// Package bridge is the event routing and projection engine: it tracks
// pending turns, streams activity into anchor messages, projects hook
// events into chat side-effects, routes inbound chat messages to agent
// runtimes, and falls back to terminal capture when hooks stay silent.
package bridge

import (
	"log/slog"
	"sync"
)

// key identifies one agent instance: project name plus instance ID, the
// instance ID defaulting to the agent type when none was assigned.
type key struct {
	project  string
	instance string
}

func makeKey(project, agentType, instanceID string) key {
	if instanceID == "" {
		instanceID = agentType
	}
	return key{project: project, instance: instanceID}
}

// queueCapacity bounds a channel's backlog. The hook server answers before
// handlers run, so a slow platform must not grow memory without bound.
const queueCapacity = 1024

// Serializer runs work functions strictly in submission order per channel
// while letting different channels proceed in parallel. One worker
// goroutine per channel, started lazily.
type Serializer struct {
	mu     sync.Mutex
	queues map[string]chan func()
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewSerializer creates an idle serializer.
func NewSerializer() *Serializer {
	return &Serializer{
		queues: make(map[string]chan func()),
		done:   make(chan struct{}),
	}
}

// Do enqueues fn on the channel's worker. Work on the same channel runs in
// submission order; a full queue drops the work with a log line rather than
// blocking the caller.
func (s *Serializer) Do(channelID string, fn func()) {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
	}
	q, ok := s.queues[channelID]
	if !ok {
		q = make(chan func(), queueCapacity)
		s.queues[channelID] = q
		s.wg.Add(1)
		go s.worker(channelID, q)
	}
	s.mu.Unlock()

	select {
	case q <- fn:
	default:
		slog.Warn("channel queue full, dropping work", "channel_id", channelID)
	}
}

func (s *Serializer) worker(channelID string, q chan func()) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case fn := <-q:
			fn()
		}
	}
}

// Close stops accepting work and releases the workers. In-flight work
// finishes; queued work is abandoned.
func (s *Serializer) Close() {
	s.mu.Lock()
	select {
	case <-s.done:
		s.mu.Unlock()
		return
	default:
		close(s.done)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
