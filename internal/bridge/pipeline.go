package bridge

import (
	"context"
	"log/slog"
	"runtime/debug"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/discode-ai/discode/internal/config"
	"github.com/discode-ai/discode/internal/events"
	"github.com/discode-ai/discode/internal/messaging"
	"github.com/discode-ai/discode/internal/state"
)

// eventContext is the resolved routing state a handler works with.
type eventContext struct {
	event       events.Event
	kind        events.Type
	projectName string
	projectPath string
	agentType   string
	instanceID  string
	channelID   string
	k           key
}

// Pipeline turns decoded hook events into chat side-effects. Events for
// the same channel run strictly in arrival order; different channels run
// in parallel.
type Pipeline struct {
	cfg      *config.Config
	client   messaging.Client
	store    *state.Store
	tracker  *Tracker
	updater  *Updater
	timers   *timerSet
	watchdog *Watchdog
	serial   *Serializer
	tracer   trace.Tracer

	// inbound re-enters a structured-prompt button answer into the
	// message router, as if the user had typed it.
	inbound func(messaging.Inbound)
}

// NewPipeline wires the event pipeline. tracer may be nil when tracing is
// disabled.
func NewPipeline(cfg *config.Config, client messaging.Client, store *state.Store,
	tracker *Tracker, updater *Updater, watchdog *Watchdog, serial *Serializer,
	tracer trace.Tracer) *Pipeline {
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("discode")
	}
	return &Pipeline{
		cfg:      cfg,
		client:   client,
		store:    store,
		tracker:  tracker,
		updater:  updater,
		timers:   newTimerSet(),
		watchdog: watchdog,
		serial:   serial,
		tracer:   tracer,
	}
}

// SetInboundHandler routes structured-prompt button answers back into the
// message router. Must be called before Dispatch.
func (p *Pipeline) SetInboundHandler(fn func(messaging.Inbound)) { p.inbound = fn }

// ArmLifecycleTimer starts the post-submit lifecycle watch: fn fires
// unless a hook event arrives for the instance first.
func (p *Pipeline) ArmLifecycleTimer(project, agentType, instanceID string, fn func()) {
	p.timers.armLifecycle(makeKey(project, agentType, instanceID), lifecycleTimeout, fn)
}

// Dispatch resolves an event's destination and enqueues it on the
// channel's ordered queue. Events that cannot be resolved, or that the
// agent type never emits, are dropped here.
func (p *Pipeline) Dispatch(ev events.Event) {
	meta := ev.Meta()
	kind := ev.Kind()

	if !events.Supports(meta.AgentType, kind) {
		slog.Debug("event not in agent capability set, dropping",
			"type", string(kind), "agent_type", meta.AgentType)
		return
	}

	project, ok := p.store.Project(meta.ProjectName)
	if !ok {
		slog.Warn("event for unknown project, dropping",
			"type", string(kind), "project", meta.ProjectName)
		return
	}
	inst, ok := p.store.ResolveInstance(meta.ProjectName, meta.AgentType, meta.InstanceID)
	if !ok || inst.ChannelID == "" {
		slog.Warn("event has no routable channel, dropping",
			"type", string(kind), "project", meta.ProjectName, "agent_type", meta.AgentType)
		return
	}

	ec := &eventContext{
		event:       ev,
		kind:        kind,
		projectName: meta.ProjectName,
		projectPath: project.ProjectPath,
		agentType:   meta.AgentType,
		instanceID:  meta.InstanceKey(),
		channelID:   inst.ChannelID,
		k:           makeKey(meta.ProjectName, meta.AgentType, meta.InstanceID),
	}
	p.serial.Do(ec.channelID, func() { p.process(ec) })
}

func (p *Pipeline) process(ec *eventContext) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("event handler panic",
				"type", string(ec.kind), "project", ec.projectName,
				"panic", r, "stack", string(debug.Stack()))
		}
	}()

	ctx, span := p.tracer.Start(context.Background(), "event.process",
		trace.WithAttributes(
			attribute.String("event.type", string(ec.kind)),
			attribute.String("project", ec.projectName),
			attribute.String("agent.type", ec.agentType),
		))
	defer span.End()

	// Any hook event proves the hooks are alive: the buffer fallback
	// stands down and the lifecycle watch resets.
	p.tracker.SetHookActive(ec.projectName, ec.agentType, ec.instanceID)
	p.timers.clearLifecycle(ec.k)

	if events.IsActivity(ec.kind) {
		p.ensureTurn(ctx, ec)
	}

	switch ev := ec.event.(type) {
	case *events.SessionStart:
		p.handleSessionStart(ctx, ec, ev)
	case *events.SessionEnd:
		p.handleSessionEnd(ctx, ec, ev)
	case *events.SessionNotification:
		p.handleNotification(ctx, ec, ev)
	case *events.SessionIdle:
		p.handleIdle(ctx, ec, ev)
	case *events.SessionError:
		p.handleError(ctx, ec, ev)
	case *events.ThinkingStart:
		p.handleThinkingStart(ctx, ec)
	case *events.ThinkingStop:
		p.handleThinkingStop(ctx, ec)
	case *events.ToolActivity:
		p.handleToolActivity(ec, ev)
	case *events.ToolFailure:
		p.handleToolFailure(ctx, ec, ev)
	case *events.PromptSubmit:
		p.handlePromptSubmit(ctx, ec, ev)
	case *events.TaskCompleted:
		p.handleTaskCompleted(ctx, ec, ev)
	case *events.PermissionRequest:
		p.handlePermissionRequest(ctx, ec, ev)
	case *events.TeammateIdle:
		p.handleTeammateIdle(ctx, ec, ev)
	}

	if events.IsTerminal(ec.kind) {
		p.timers.clearAll(ec.k)
		p.watchdog.Cancel(ec.projectName, ec.agentType, ec.instanceID)
	}
}

// ensureTurn lazily creates the pending turn, its anchor message and the
// activity stream so hook-initiated activity is visible even when no chat
// message started the turn.
func (p *Pipeline) ensureTurn(ctx context.Context, ec *eventContext) {
	p.tracker.EnsurePending(ec.projectName, ec.agentType, ec.channelID, ec.instanceID)
	anchorID := p.tracker.EnsureStartMessage(ctx, ec.projectName, ec.agentType, ec.instanceID, "")
	if anchorID == "" || !p.updater.CanStream() {
		return
	}
	if !p.updater.Has(ec.projectName, ec.agentType, ec.instanceID) {
		p.updater.Start(ec.projectName, ec.agentType, ec.instanceID, ec.channelID, anchorID)
	}
}

// send posts text to the event's channel, logging failures. Platform
// errors never propagate to the hook sender.
func (p *Pipeline) send(ctx context.Context, ec *eventContext, text string) {
	if err := p.client.SendToChannel(ctx, ec.channelID, text); err != nil {
		slog.Warn("send to channel failed",
			"channel_id", ec.channelID, "type", string(ec.kind), "error", err)
	}
}
