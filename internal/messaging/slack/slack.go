// Package slack implements the messaging client on the Slack Web API with
// Socket Mode for inbound events.
package slack

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"github.com/discode-ai/discode/internal/messaging"
)

const maxMessageLen = 4000

// reactionNames maps status glyphs to Slack reaction names.
var reactionNames = map[string]string{
	messaging.GlyphWorking:  "hourglass_flowing_sand",
	messaging.GlyphDone:     "white_check_mark",
	messaging.GlyphFailed:   "x",
	messaging.GlyphThinking: "brain",
}

// Client connects to Slack using the Web API and Socket Mode.
type Client struct {
	api      *slack.Client
	socket   *socketmode.Client
	resolver messaging.ChannelResolver
	botToken string
	botUser  string

	mu      sync.Mutex
	handler messaging.InboundHandler

	prompts sync.Map // prompt ID string → chan string

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a Slack client from a bot token (xoxb-) and app token (xapp-).
func New(botToken, appToken string, resolver messaging.ChannelResolver) (*Client, error) {
	if botToken == "" || appToken == "" {
		return nil, fmt.Errorf("slack: bot token and app token are required")
	}
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	return &Client{
		api:      api,
		socket:   socketmode.New(api),
		resolver: resolver,
		botToken: botToken,
		done:     make(chan struct{}),
	}, nil
}

func (c *Client) Platform() messaging.Platform { return messaging.PlatformSlack }
func (c *Client) MaxMessageLen() int           { return maxMessageLen }

// OnMessage registers the inbound handler. Must be called before Connect.
func (c *Client) OnMessage(h messaging.InboundHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect verifies auth and starts the Socket Mode event loop.
func (c *Client) Connect(ctx context.Context) error {
	slog.Info("starting slack client")

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	c.botUser = auth.UserID

	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	go c.eventLoop(runCtx)
	go func() {
		defer close(c.done)
		if err := c.socket.RunContext(runCtx); err != nil && runCtx.Err() == nil {
			slog.Error("slack socket mode stopped", "error", err)
		}
	}()

	slog.Info("slack client connected", "user_id", auth.UserID, "team", auth.Team)
	return nil
}

// Close stops the Socket Mode loop.
func (c *Client) Close() error {
	slog.Info("stopping slack client")
	if c.cancel != nil {
		c.cancel()
		<-c.done
	}
	return nil
}

// eventLoop consumes Socket Mode events and dispatches messages and
// interactive button clicks.
func (c *Client) eventLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-c.socket.Events:
			if !ok {
				return
			}
			switch evt.Type {
			case socketmode.EventTypeEventsAPI:
				apiEvent, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				c.socket.Ack(*evt.Request)
				c.handleEventsAPI(apiEvent)
			case socketmode.EventTypeInteractive:
				callback, ok := evt.Data.(slack.InteractionCallback)
				if !ok {
					continue
				}
				c.socket.Ack(*evt.Request)
				c.handleInteraction(callback)
			case socketmode.EventTypeConnectionError:
				slog.Warn("slack connection error", "data", evt.Data)
			}
		}
	}
}

func (c *Client) handleEventsAPI(apiEvent slackevents.EventsAPIEvent) {
	if apiEvent.Type != slackevents.CallbackEvent {
		return
	}
	msg, ok := apiEvent.InnerEvent.Data.(*slackevents.MessageEvent)
	if !ok {
		return
	}
	// Ignore bot traffic, message edits, and thread broadcasts.
	if msg.BotID != "" || msg.User == c.botUser || msg.SubType != "" {
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	project, agentType, instanceID, ok := c.resolver.ResolveChannel(msg.Channel)
	if !ok {
		slog.Debug("slack message on unbound channel", "channel_id", msg.Channel)
		return
	}

	var attachments []messaging.Attachment
	for _, f := range msg.Files {
		attachments = append(attachments, messaging.Attachment{
			Name:        f.Name,
			URL:         f.URLPrivateDownload,
			ContentType: f.Mimetype,
			Size:        int64(f.Size),
		})
	}

	handler(messaging.Inbound{
		AgentType:   agentType,
		Text:        msg.Text,
		ProjectName: project,
		ChannelID:   msg.Channel,
		MessageID:   msg.TimeStamp,
		InstanceID:  instanceID,
		Attachments: attachments,
	})
}

// AttachmentAuthHeader returns the Authorization header needed to download
// Slack private file URLs.
func (c *Client) AttachmentAuthHeader(string) string {
	return "Bearer " + c.botToken
}

// SendToChannel posts text, splitting into platform-safe chunks.
func (c *Client) SendToChannel(ctx context.Context, channelID, text string) error {
	for _, chunk := range messaging.SplitMessage(text, maxMessageLen) {
		if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(chunk, false)); err != nil {
			return fmt.Errorf("send slack message: %w", err)
		}
	}
	return nil
}

// SendToChannelWithID posts text and returns the first chunk's timestamp.
func (c *Client) SendToChannelWithID(ctx context.Context, channelID, text string) (string, error) {
	chunks := messaging.SplitMessage(text, maxMessageLen)
	if len(chunks) == 0 {
		return "", nil
	}
	_, ts, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(chunks[0], false))
	if err != nil {
		return "", fmt.Errorf("send slack message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionText(chunk, false)); err != nil {
			return ts, fmt.Errorf("send slack message: %w", err)
		}
	}
	return ts, nil
}

// ReplyInThread posts a threaded reply under parentID.
func (c *Client) ReplyInThread(ctx context.Context, channelID, parentID, text string) error {
	for _, chunk := range messaging.SplitMessage(text, maxMessageLen) {
		_, _, err := c.api.PostMessageContext(ctx, channelID,
			slack.MsgOptionText(chunk, false),
			slack.MsgOptionTS(parentID))
		if err != nil {
			return fmt.Errorf("send slack reply: %w", err)
		}
	}
	return nil
}

// UpdateMessage edits a prior message in place.
func (c *Client) UpdateMessage(ctx context.Context, channelID, messageID, text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if _, _, _, err := c.api.UpdateMessageContext(ctx, channelID, messageID, slack.MsgOptionText(text, false)); err != nil {
		return fmt.Errorf("update slack message: %w", err)
	}
	return nil
}

// SendToChannelWithFiles posts text with file attachments.
func (c *Client) SendToChannelWithFiles(ctx context.Context, channelID, text string, paths []string) error {
	if text != "" {
		if err := c.SendToChannel(ctx, channelID, text); err != nil {
			return err
		}
	}
	for _, p := range paths {
		_, err := c.api.UploadFileV2Context(ctx, slack.UploadFileV2Parameters{
			Channel:  channelID,
			File:     p,
			Filename: filepath.Base(p),
		})
		if err != nil {
			return fmt.Errorf("upload slack file %s: %w", filepath.Base(p), err)
		}
	}
	return nil
}

// AddReaction adds a bot reaction to a message.
func (c *Client) AddReaction(ctx context.Context, channelID, messageID, glyph string) error {
	name, ok := reactionNames[glyph]
	if !ok {
		return fmt.Errorf("slack: no reaction name for %q", glyph)
	}
	ref := slack.ItemRef{Channel: channelID, Timestamp: messageID}
	if err := c.api.AddReactionContext(ctx, name, ref); err != nil {
		return fmt.Errorf("add slack reaction: %w", err)
	}
	return nil
}

// ReplaceReaction removes from and adds to. The add proceeds even when the
// remove fails.
func (c *Client) ReplaceReaction(ctx context.Context, channelID, messageID, from, to string) error {
	if name, ok := reactionNames[from]; ok {
		ref := slack.ItemRef{Channel: channelID, Timestamp: messageID}
		if err := c.api.RemoveReactionContext(ctx, name, ref); err != nil {
			slog.Debug("slack: reaction remove failed", "channel_id", channelID, "message_id", messageID, "error", err)
		}
	}
	return c.AddReaction(ctx, channelID, messageID, to)
}

// SendQuestionWithButtons posts the questions as button blocks and blocks
// until a button is clicked or the prompt times out.
func (c *Client) SendQuestionWithButtons(ctx context.Context, channelID string, questions []messaging.Question) (string, error) {
	if len(questions) == 0 {
		return "", nil
	}

	promptID := uuid.NewString()
	answer := make(chan string, 1)
	c.prompts.Store(promptID, answer)
	defer c.prompts.Delete(promptID)

	for qi, q := range questions {
		text := q.Question
		if q.Header != "" {
			text = fmt.Sprintf("*%s*\n%s", q.Header, q.Question)
		}

		var buttons []slack.BlockElement
		for oi, opt := range q.Options {
			btnText := slack.NewTextBlockObject(slack.PlainTextType, clip(opt.Label, 75), true, false)
			btn := slack.NewButtonBlockElement(
				fmt.Sprintf("%s:%d:%d", promptID, qi, oi),
				opt.Label,
				btnText,
			)
			buttons = append(buttons, btn)
		}

		blocks := []slack.Block{
			slack.NewSectionBlock(slack.NewTextBlockObject(slack.MarkdownType, clip(text, 3000), false, false), nil, nil),
		}
		if len(buttons) > 0 {
			blocks = append(blocks, slack.NewActionBlock("prompt_"+promptID, buttons...))
		}

		if _, _, err := c.api.PostMessageContext(ctx, channelID, slack.MsgOptionBlocks(blocks...)); err != nil {
			return "", fmt.Errorf("send slack question: %w", err)
		}
	}

	timer := time.NewTimer(5 * time.Minute)
	defer timer.Stop()
	select {
	case label := <-answer:
		return label, nil
	case <-timer.C:
		return "", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// handleInteraction resolves block-action clicks back to their waiting prompt.
func (c *Client) handleInteraction(callback slack.InteractionCallback) {
	if callback.Type != slack.InteractionTypeBlockActions {
		return
	}
	for _, action := range callback.ActionCallback.BlockActions {
		promptID := action.ActionID
		if idx := indexByte(promptID, ':'); idx > 0 {
			promptID = promptID[:idx]
		}
		v, ok := c.prompts.Load(promptID)
		if !ok {
			continue
		}
		select {
		case v.(chan string) <- action.Value:
		default:
		}
	}
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func clip(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
