package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/discode-ai/discode/internal/events"
	"github.com/discode-ai/discode/internal/messaging"
)

// thinkingReportFloor suppresses "Thought for Ns" lines for reasoning
// bursts too short to be worth reporting.
const thinkingReportFloor = 5

func (p *Pipeline) handleSessionStart(ctx context.Context, ec *eventContext, ev *events.SessionStart) {
	// Daemon-triggered warmups stay invisible.
	if ev.Source == "startup" {
		return
	}
	detail := ev.Source
	if ev.Model != "" {
		if detail != "" {
			detail += ", "
		}
		detail += ev.Model
	}
	text := "🟢 Session started"
	if detail != "" {
		text += " (" + detail + ")"
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handleSessionEnd(ctx context.Context, ec *eventContext, ev *events.SessionEnd) {
	text := "⚪ Session ended"
	if ev.Reason != "" {
		text += " (" + ev.Reason + ")"
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handleNotification(ctx context.Context, ec *eventContext, ev *events.SessionNotification) {
	cue := "🔔"
	switch ev.NotificationType {
	case "permission_prompt":
		cue = "🔐"
	case "idle_prompt":
		cue = "💤"
	}
	p.send(ctx, ec, cue+" "+ev.Text)
	if ev.PromptText != "" {
		p.send(ctx, ec, ev.PromptText)
	}
}

func (p *Pipeline) handleThinkingStart(ctx context.Context, ec *eventContext) {
	if pe, ok := p.tracker.GetPending(ec.projectName, ec.agentType, ec.instanceID); ok && pe.MessageID != "" {
		if err := p.client.AddReaction(ctx, pe.ChannelID, pe.MessageID, messaging.GlyphThinking); err != nil {
			slog.Warn("add thinking reaction failed", "channel_id", pe.ChannelID, "error", err)
		}
	}

	p.updater.AppendCumulative(ec.projectName, ec.agentType, ec.instanceID, messaging.GlyphThinking+" Thinking...")

	project, agentType, instanceID := ec.projectName, ec.agentType, ec.instanceID
	p.timers.startThinking(ec.k, func(elapsed int) {
		p.updater.ReplaceLastLine(project, agentType, instanceID,
			fmt.Sprintf("%s Thinking for %ds...", messaging.GlyphThinking, elapsed))
	})
}

func (p *Pipeline) handleThinkingStop(ctx context.Context, ec *eventContext) {
	if elapsed, ok := p.timers.stopThinking(ec.k); ok {
		if secs := int(elapsed.Seconds()); secs >= thinkingReportFloor {
			p.updater.AppendCumulative(ec.projectName, ec.agentType, ec.instanceID,
				fmt.Sprintf("💭 Thought for %ds", secs))
		}
	}

	if pe, ok := p.tracker.GetPending(ec.projectName, ec.agentType, ec.instanceID); ok && pe.MessageID != "" {
		if err := p.client.ReplaceReaction(ctx, pe.ChannelID, pe.MessageID, messaging.GlyphThinking, messaging.GlyphWorking); err != nil {
			slog.Warn("swap thinking reaction failed", "channel_id", pe.ChannelID, "error", err)
		}
	}
}

func (p *Pipeline) handleToolActivity(ec *eventContext, ev *events.ToolActivity) {
	if ev.Text != "" {
		p.updater.AppendCumulative(ec.projectName, ec.agentType, ec.instanceID, ev.Text)
	}
}

func (p *Pipeline) handleToolFailure(ctx context.Context, ec *eventContext, ev *events.ToolFailure) {
	text := fmt.Sprintf("%s *%s failed*", messaging.GlyphWarning, ev.ToolName)
	if ev.Error != "" {
		text += "\n" + runewidth.Truncate(ev.Error, 150, "…")
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handlePromptSubmit(ctx context.Context, ec *eventContext, ev *events.PromptSubmit) {
	if ev.Text == "" {
		return
	}
	p.send(ctx, ec, messaging.GlyphPrompt+" "+ev.Text)
	p.tracker.SetPromptPreview(ec.projectName, ec.agentType, ec.instanceID, ev.Text)
}

func (p *Pipeline) handleTaskCompleted(ctx context.Context, ec *eventContext, ev *events.TaskCompleted) {
	text := messaging.GlyphDone + " Task complete: " + ev.TaskSubject
	if ev.Teammate != "" {
		text += " [" + ev.Teammate + "]"
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handlePermissionRequest(ctx context.Context, ec *eventContext, ev *events.PermissionRequest) {
	text := "🔐 Permission requested for " + ev.ToolName
	if input := strings.TrimSpace(ev.Input); input != "" {
		text += ": " + runewidth.Truncate(input, 200, "…")
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handleTeammateIdle(ctx context.Context, ec *eventContext, ev *events.TeammateIdle) {
	text := "💤 *[" + ev.TeammateName + "]* idle"
	if ev.TeamName != "" {
		text += " (" + ev.TeamName + ")"
	}
	p.send(ctx, ec, text)
}

func (p *Pipeline) handleError(ctx context.Context, ec *eventContext, ev *events.SessionError) {
	text := ev.Text
	if text == "" {
		text = "unknown error"
	}
	p.send(ctx, ec, messaging.GlyphWarning+" "+text)

	// The error line subsumes whatever was streaming.
	p.updater.Discard(ec.projectName, ec.agentType, ec.instanceID)
	p.timers.clearAll(ec.k)
	p.tracker.MarkError(ctx, ec.projectName, ec.agentType, ec.instanceID)
}
