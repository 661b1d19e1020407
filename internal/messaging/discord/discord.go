// Package discord implements the messaging client on the Discord Bot API.
package discord

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"

	"github.com/discode-ai/discode/internal/messaging"
)

const maxMessageLen = 2000

// Client connects to Discord via the Bot API using gateway events.
type Client struct {
	session   *discordgo.Session
	resolver  messaging.ChannelResolver
	botUserID string // populated on connect

	mu      sync.Mutex
	handler messaging.InboundHandler

	prompts sync.Map // customID prefix string → chan string
}

// New creates a Discord client from a bot token.
func New(token string, resolver messaging.ChannelResolver) (*Client, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Client{
		session:  session,
		resolver: resolver,
	}, nil
}

func (c *Client) Platform() messaging.Platform { return messaging.PlatformDiscord }
func (c *Client) MaxMessageLen() int           { return maxMessageLen }

// OnMessage registers the inbound handler. Must be called before Connect.
func (c *Client) OnMessage(h messaging.InboundHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handler = h
}

// Connect opens the Discord gateway connection and begins receiving events.
func (c *Client) Connect(_ context.Context) error {
	slog.Info("starting discord client")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleInteraction)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	slog.Info("discord client connected", "username", user.Username, "id", user.ID)
	return nil
}

// Close shuts the gateway connection down.
func (c *Client) Close() error {
	slog.Info("stopping discord client")
	return c.session.Close()
}

// SendToChannel posts text, splitting into 2000-char chunks.
func (c *Client) SendToChannel(_ context.Context, channelID, text string) error {
	for _, chunk := range messaging.SplitMessage(text, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// SendToChannelWithID posts text and returns the first chunk's message ID.
func (c *Client) SendToChannelWithID(_ context.Context, channelID, text string) (string, error) {
	chunks := messaging.SplitMessage(text, maxMessageLen)
	if len(chunks) == 0 {
		return "", nil
	}
	first, err := c.session.ChannelMessageSend(channelID, chunks[0])
	if err != nil {
		return "", fmt.Errorf("send discord message: %w", err)
	}
	for _, chunk := range chunks[1:] {
		if _, err := c.session.ChannelMessageSend(channelID, chunk); err != nil {
			return first.ID, fmt.Errorf("send discord message: %w", err)
		}
	}
	return first.ID, nil
}

// ReplyInThread replies referencing the parent message. Discord has no
// Slack-style threads for plain channels, so a message reference is the
// closest equivalent.
func (c *Client) ReplyInThread(_ context.Context, channelID, parentID, text string) error {
	chunks := messaging.SplitMessage(text, maxMessageLen)
	for i, chunk := range chunks {
		msg := &discordgo.MessageSend{Content: chunk}
		if i == 0 {
			msg.Reference = &discordgo.MessageReference{MessageID: parentID, ChannelID: channelID}
		}
		if _, err := c.session.ChannelMessageSendComplex(channelID, msg); err != nil {
			return fmt.Errorf("send discord reply: %w", err)
		}
	}
	return nil
}

// UpdateMessage edits a prior message in place. Oversized bodies are
// truncated to the platform cap; the streaming updater keeps its own payload
// under the cap so this is a safety net only.
func (c *Client) UpdateMessage(_ context.Context, channelID, messageID, text string) error {
	if len(text) > maxMessageLen {
		text = text[:maxMessageLen]
	}
	if _, err := c.session.ChannelMessageEdit(channelID, messageID, text); err != nil {
		return fmt.Errorf("edit discord message: %w", err)
	}
	return nil
}

// SendToChannelWithFiles posts text with file attachments.
func (c *Client) SendToChannelWithFiles(_ context.Context, channelID, text string, paths []string) error {
	var files []*discordgo.File
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()

	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			slog.Warn("discord: skipping unreadable attachment", "path", p, "error", err)
			continue
		}
		opened = append(opened, f)
		files = append(files, &discordgo.File{Name: filepath.Base(p), Reader: f})
	}

	msg := &discordgo.MessageSend{Content: truncate(text, maxMessageLen), Files: files}
	if _, err := c.session.ChannelMessageSendComplex(channelID, msg); err != nil {
		return fmt.Errorf("send discord files: %w", err)
	}
	return nil
}

// AddReaction adds a bot reaction to a message.
func (c *Client) AddReaction(_ context.Context, channelID, messageID, glyph string) error {
	if err := c.session.MessageReactionAdd(channelID, messageID, glyph); err != nil {
		return fmt.Errorf("add discord reaction: %w", err)
	}
	return nil
}

// ReplaceReaction removes from and adds to. The add proceeds even when the
// remove fails.
func (c *Client) ReplaceReaction(ctx context.Context, channelID, messageID, from, to string) error {
	if err := c.session.MessageReactionRemove(channelID, messageID, from, "@me"); err != nil {
		slog.Debug("discord: reaction remove failed", "channel_id", channelID, "message_id", messageID, "error", err)
	}
	return c.AddReaction(ctx, channelID, messageID, to)
}

// SendQuestionWithButtons posts the questions as button rows and blocks
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
		content := q.Question
		if q.Header != "" {
			content = fmt.Sprintf("**%s**\n%s", q.Header, q.Question)
		}

		var rows []discordgo.MessageComponent
		var row discordgo.ActionsRow
		for oi, opt := range q.Options {
			// Discord caps five buttons per row and five rows per message.
			if len(row.Components) == 5 {
				rows = append(rows, row)
				row = discordgo.ActionsRow{}
			}
			if len(rows) == 5 {
				break
			}
			row.Components = append(row.Components, discordgo.Button{
				Label:    truncate(opt.Label, 80),
				Style:    discordgo.SecondaryButton,
				CustomID: fmt.Sprintf("%s:%d:%d", promptID, qi, oi),
			})
		}
		if len(row.Components) > 0 && len(rows) < 5 {
			rows = append(rows, row)
		}

		msg := &discordgo.MessageSend{Content: truncate(content, maxMessageLen), Components: rows}
		if _, err := c.session.ChannelMessageSendComplex(channelID, msg); err != nil {
			return "", fmt.Errorf("send discord question: %w", err)
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

// handleInteraction resolves button clicks back to their waiting prompt.
func (c *Client) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionMessageComponent {
		return
	}
	customID := i.MessageComponentData().CustomID
	parts := strings.SplitN(customID, ":", 2)
	if len(parts) != 2 {
		return
	}
	promptID := parts[0]

	v, ok := c.prompts.Load(promptID)
	if !ok {
		return
	}

	label := ""
	for _, row := range i.Message.Components {
		ar, ok := row.(*discordgo.ActionsRow)
		if !ok {
			continue
		}
		for _, comp := range ar.Components {
			if btn, ok := comp.(*discordgo.Button); ok && btn.CustomID == customID {
				label = btn.Label
			}
		}
	}
	if label == "" {
		return
	}

	_ = s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    fmt.Sprintf("%s\n> %s", i.Message.Content, label),
			Components: []discordgo.MessageComponent{},
		},
	})

	select {
	case v.(chan string) <- label:
	default:
	}
}

// handleMessage forwards user messages to the registered inbound handler.
func (c *Client) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()
	if handler == nil {
		return
	}

	project, agentType, instanceID, ok := c.resolver.ResolveChannel(m.ChannelID)
	if !ok {
		slog.Debug("discord message on unbound channel", "channel_id", m.ChannelID)
		return
	}

	var attachments []messaging.Attachment
	for _, att := range m.Attachments {
		attachments = append(attachments, messaging.Attachment{
			Name:        att.Filename,
			URL:         att.URL,
			ContentType: att.ContentType,
			Size:        int64(att.Size),
		})
	}

	handler(messaging.Inbound{
		AgentType:   agentType,
		Text:        m.Content,
		ProjectName: project,
		ChannelID:   m.ChannelID,
		MessageID:   m.ID,
		InstanceID:  instanceID,
		Attachments: attachments,
	})
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
