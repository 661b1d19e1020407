package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/discode-ai/discode/internal/events"
	"github.com/discode-ai/discode/internal/messaging"
)

// thinkingPostLimit caps the reasoning trace posted at turn end.
const thinkingPostLimit = 12000

// handleIdle closes a turn: finalize the activity stream, flip the
// reactions, then post the turn's outputs in a fixed order.
func (p *Pipeline) handleIdle(ctx context.Context, ec *eventContext, ev *events.SessionIdle) {
	p.timers.clearAll(ec.k)

	if p.updater.Has(ec.projectName, ec.agentType, ec.instanceID) {
		p.updater.Finalize(ctx, ec.projectName, ec.agentType, ec.instanceID, usageHeader(ev.Usage))
	}

	p.tracker.MarkCompleted(ctx, ec.projectName, ec.agentType, ec.instanceID)

	if p.cfg.Projection.PostIntermediateText && strings.TrimSpace(ev.IntermediateText) != "" {
		p.send(ctx, ec, strings.TrimSpace(ev.IntermediateText))
	}

	if p.cfg.Projection.PostThinking && strings.TrimSpace(ev.Thinking) != "" {
		thinking := strings.TrimSpace(ev.Thinking)
		truncated := false
		if len(thinking) > thinkingPostLimit {
			thinking = thinking[:thinkingPostLimit]
			truncated = true
		}
		text := ":brain: *Reasoning*\n```\n" + thinking + "\n```"
		if truncated {
			text += "\n_(truncated)_"
		}
		p.send(ctx, ec, text)
	}

	if p.cfg.Projection.PostUsage {
		if line := usageLine(ev.Usage); line != "" {
			p.send(ctx, ec, line)
		}
	}

	// Response text, with any in-project file paths pulled out and sent
	// as attachments instead.
	text := strings.TrimSpace(ev.Text)
	pathSource := ev.TurnText
	if pathSource == "" {
		pathSource = text
	}
	files := validateFilePaths(extractFilePaths(pathSource), ec.projectPath)
	if text != "" {
		display := stripFilePaths(text, files)
		if display != "" {
			p.send(ctx, ec, display)
		}
	}
	if len(files) > 0 {
		if err := p.client.SendToChannelWithFiles(ctx, ec.channelID, "", files); err != nil {
			slog.Warn("send response files failed", "channel_id", ec.channelID, "error", err)
		}
	}

	p.postPromptChoices(ec, ev)
}

// postPromptChoices surfaces the agent's follow-up question, preferring
// interactive buttons over plain text. Button prompts are fire-and-forget:
// the answer, arriving up to five minutes later, re-enters the router as a
// normal inbound message.
func (p *Pipeline) postPromptChoices(ec *eventContext, ev *events.SessionIdle) {
	if len(ev.PromptQuestions) > 0 {
		questions := make([]messaging.Question, 0, len(ev.PromptQuestions))
		for _, q := range ev.PromptQuestions {
			mq := messaging.Question{
				Question:    q.Question,
				Header:      q.Header,
				MultiSelect: q.MultiSelect,
			}
			for _, o := range q.Options {
				mq.Options = append(mq.Options, messaging.QuestionOption{
					Label:       o.Label,
					Description: o.Description,
				})
			}
			questions = append(questions, mq)
		}

		projectName, agentType, channelID, instanceID := ec.projectName, ec.agentType, ec.channelID, ec.instanceID
		go func() {
			label, err := p.client.SendQuestionWithButtons(context.Background(), channelID, questions)
			if err != nil {
				slog.Warn("prompt buttons failed", "channel_id", channelID, "error", err)
				return
			}
			if label == "" || p.inbound == nil {
				return
			}
			p.inbound(messaging.Inbound{
				AgentType:   agentType,
				Text:        label,
				ProjectName: projectName,
				ChannelID:   channelID,
				InstanceID:  instanceID,
			})
		}()
		return
	}

	if ev.PromptText == "" {
		return
	}
	if ev.PlanFilePath != "" {
		if _, err := os.Stat(ev.PlanFilePath); err == nil {
			if err := p.client.SendToChannelWithFiles(context.Background(), ec.channelID, ev.PromptText, []string{ev.PlanFilePath}); err != nil {
				slog.Warn("send plan file failed", "channel_id", ec.channelID, "error", err)
			}
			return
		}
	}
	p.send(context.Background(), ec, ev.PromptText)
}

// usageHeader builds the finalize header, omitting zero pieces.
func usageHeader(u events.Usage) string {
	parts := []string{messaging.GlyphDone + " Done"}
	if total := u.InputTokens + u.OutputTokens; total > 0 {
		parts = append(parts, formatTokens(total)+" tokens")
	}
	if u.TotalCostUSD > 0 {
		parts = append(parts, fmt.Sprintf("$%.2f", u.TotalCostUSD))
	}
	return strings.Join(parts, " · ")
}

// usageLine builds the 📊 usage message, or "" when all totals are zero.
func usageLine(u events.Usage) string {
	if u.InputTokens == 0 && u.OutputTokens == 0 && u.TotalCostUSD == 0 {
		return ""
	}
	return fmt.Sprintf("%s Usage: Input: %s · Output: %s · Cost: $%.2f",
		messaging.GlyphUsage, formatTokens(u.InputTokens), formatTokens(u.OutputTokens), u.TotalCostUSD)
}

// formatTokens renders a count with thousands separators.
func formatTokens(n int) string {
	s := strconv.Itoa(n)
	if len(s) <= 3 {
		return s
	}
	var sb strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		sb.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if sb.Len() > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(s[i : i+3])
	}
	return sb.String()
}

// filePathPattern matches absolute unix paths with a file extension, the
// form agents use when naming artifacts they produced.
var filePathPattern = regexp.MustCompile(`(?:^|[\s"'` + "`" + `(])(/[\w./-]+\.\w+)`)

// extractFilePaths pulls candidate absolute file paths out of turn text.
func extractFilePaths(text string) []string {
	if text == "" {
		return nil
	}
	var paths []string
	seen := make(map[string]bool)
	for _, m := range filePathPattern.FindAllStringSubmatch(text, -1) {
		p := m[1]
		if !seen[p] {
			seen[p] = true
			paths = append(paths, p)
		}
	}
	return paths
}

// validateFilePaths keeps only paths that exist as regular files and whose
// resolved location stays inside projectPath. Symlinks pointing out of the
// project are rejected.
func validateFilePaths(paths []string, projectPath string) []string {
	if projectPath == "" {
		return nil
	}
	root, err := filepath.EvalSymlinks(projectPath)
	if err != nil {
		return nil
	}
	var valid []string
	for _, p := range paths {
		real, err := filepath.EvalSymlinks(p)
		if err != nil {
			continue
		}
		if real != root && !strings.HasPrefix(real, root+string(filepath.Separator)) {
			continue
		}
		info, err := os.Stat(real)
		if err != nil || !info.Mode().IsRegular() {
			continue
		}
		valid = append(valid, p)
	}
	return valid
}

// stripFilePaths removes the validated paths from display text so they are
// not shown twice (once as text, once as an attachment).
func stripFilePaths(text string, paths []string) string {
	for _, p := range paths {
		text = strings.ReplaceAll(text, p, "")
	}
	lines := strings.Split(text, "\n")
	out := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			out = append(out, strings.TrimRight(line, " \t"))
		}
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
