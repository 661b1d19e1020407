package bridge

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/discode-ai/discode/internal/config"
	"github.com/discode-ai/discode/internal/messaging"
	"github.com/discode-ai/discode/internal/runtime"
	"github.com/discode-ai/discode/internal/state"
)

// maxInboundLen rejects pathological chat messages before any processing.
const maxInboundLen = 10000

// Router carries inbound chat messages to agent runtimes. It shares the
// pipeline's per-channel serializer, so events and messages on one channel
// never interleave out of order.
type Router struct {
	cfg        *config.Config
	client     messaging.Client
	store      *state.Store
	tracker    *Tracker
	pipeline   *Pipeline
	watchdog   *Watchdog
	runtimes   *runtime.Registry
	serial     *Serializer
	httpClient *http.Client
}

// NewRouter wires the router and registers it on the client and pipeline.
func NewRouter(cfg *config.Config, client messaging.Client, store *state.Store,
	tracker *Tracker, pipeline *Pipeline, watchdog *Watchdog,
	runtimes *runtime.Registry, serial *Serializer) *Router {
	r := &Router{
		cfg:        cfg,
		client:     client,
		store:      store,
		tracker:    tracker,
		pipeline:   pipeline,
		watchdog:   watchdog,
		runtimes:   runtimes,
		serial:     serial,
		httpClient: &http.Client{Timeout: downloadTimeout},
	}
	client.OnMessage(r.Handle)
	pipeline.SetInboundHandler(r.Handle)
	return r
}

// Handle enqueues one inbound message on its channel's ordered queue.
// Registered as the messaging client's handler; also re-entered by prompt
// button answers.
func (r *Router) Handle(msg messaging.Inbound) {
	r.serial.Do(msg.ChannelID, func() { r.process(msg) })
}

func (r *Router) process(msg messaging.Inbound) {
	ctx := context.Background()

	project, ok := r.store.Project(msg.ProjectName)
	if !ok {
		slog.Warn("inbound message for unknown project, ignoring", "project", msg.ProjectName)
		return
	}
	inst, ok := r.store.ResolveInstance(msg.ProjectName, msg.AgentType, msg.InstanceID)
	if !ok {
		slog.Warn("inbound message with no instance, ignoring",
			"project", msg.ProjectName, "agent_type", msg.AgentType)
		return
	}
	if inst.ChannelID != "" && inst.ChannelID != msg.ChannelID {
		slog.Warn("inbound message from unexpected channel, ignoring",
			"project", msg.ProjectName, "channel_id", msg.ChannelID)
		return
	}

	text := strings.TrimSpace(msg.Text)
	if len(text) > maxInboundLen {
		slog.Warn("inbound message too long, dropping", "project", msg.ProjectName, "len", len(text))
		return
	}
	text = strings.TrimSpace(sanitizeInput(text))
	if text == "" && len(msg.Attachments) == 0 {
		return
	}

	// Privileged shell escape: runs in the project dir, never reaches the
	// agent. Attachments on shell commands are ignored.
	if strings.HasPrefix(text, "!") {
		if len(text) > 1 {
			r.runShell(ctx, project.ProjectPath, msg.ChannelID, text[1:])
			r.store.TouchLastActive(msg.ProjectName)
		}
		return
	}

	for _, marker := range r.downloadAttachments(project.ProjectPath, msg.Attachments) {
		if text != "" {
			text += "\n"
		}
		text += marker
	}
	if text == "" {
		return
	}

	instanceID := msg.InstanceID
	if instanceID == "" {
		instanceID = inst.InstanceID
	}
	r.tracker.MarkPending(ctx, msg.ProjectName, msg.AgentType, msg.ChannelID, msg.MessageID, instanceID)
	r.tracker.SetPromptPreview(msg.ProjectName, msg.AgentType, instanceID, text)

	rt, ok := r.lookupRuntime(project, inst, instanceID)
	if !ok {
		slog.Warn("no runtime for instance, dropping message",
			"project", msg.ProjectName, "agent_type", msg.AgentType)
		return
	}
	if err := r.deliver(ctx, rt, text); err != nil {
		slog.Error("deliver to runtime failed", "project", msg.ProjectName, "error", err)
		return
	}
	r.store.TouchLastActive(msg.ProjectName)

	// Should hooks stay silent, fall back to scraping the terminal; and if
	// not even a lifecycle event shows up, note that the agent looks dead.
	if capt, ok := rt.(runtime.BufferCapturer); ok {
		r.watchdog.Arm(msg.ProjectName, msg.AgentType, instanceID, msg.ChannelID, capt)
	}
	channelID := msg.ChannelID
	projectName, agentType := msg.ProjectName, msg.AgentType
	r.pipeline.ArmLifecycleTimer(projectName, agentType, instanceID, func() {
		slog.Warn("no lifecycle events after submit", "project", projectName, "agent_type", agentType)
		if err := r.client.SendToChannel(context.Background(), channelID,
			messaging.GlyphWarning+" No response from agent; it may not be running."); err != nil {
			slog.Warn("send lifecycle warning failed", "channel_id", channelID, "error", err)
		}
	})
}

// lookupRuntime finds the registered runtime for the instance, or builds a
// tmux runtime on the fly from persisted session/window names.
func (r *Router) lookupRuntime(project state.Project, inst state.Instance, instanceID string) (runtime.Runtime, bool) {
	k := runtime.Key{Project: project.ProjectName, Instance: instanceID}
	if rt, ok := r.runtimes.Lookup(k); ok {
		return rt, true
	}
	if project.TmuxSession != "" {
		return runtime.NewTmux(project.TmuxSession, inst.TmuxWindow), true
	}
	return nil, false
}

// deliver submits text: whole-message for SDK runtimes, keystrokes plus
// Enter for terminal runtimes.
func (r *Router) deliver(ctx context.Context, rt runtime.Runtime, text string) error {
	if sub, ok := rt.(runtime.Submitter); ok {
		return sub.SubmitMessage(ctx, text)
	}
	if err := rt.TypeKeys(ctx, text); err != nil {
		return err
	}
	if d := r.cfg.Submit.DebounceMs; d > 0 {
		time.Sleep(time.Duration(d) * time.Millisecond)
	}
	return rt.SendEnter(ctx)
}
