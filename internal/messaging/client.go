// Package messaging defines the platform-abstract chat client the projection
// engine programs against, plus the chunking and glyph helpers shared by the
// Slack and Discord implementations.
package messaging

import "context"

// Platform tags a concrete client implementation.
type Platform string

const (
	PlatformSlack   Platform = "slack"
	PlatformDiscord Platform = "discord"
)

// Status glyphs shown on user messages and in channel text. These are part
// of the user-visible contract and must stay stable.
const (
	GlyphWorking  = "⏳"
	GlyphDone     = "✅"
	GlyphFailed   = "❌"
	GlyphThinking = "🧠"
	GlyphPrompt   = "📝"
	GlyphWarning  = "⚠️"
	GlyphUsage    = "📊"
)

// Attachment describes a file attached to an inbound chat message.
type Attachment struct {
	Name        string
	URL         string
	ContentType string
	Size        int64
}

// Inbound is a chat message routed toward an agent instance.
type Inbound struct {
	AgentType   string
	Text        string
	ProjectName string
	ChannelID   string
	MessageID   string
	InstanceID  string
	Attachments []Attachment
}

// InboundHandler receives inbound messages and interactive-button answers.
type InboundHandler func(msg Inbound)

// Question is an interactive option picker rendered as platform buttons.
type Question struct {
	Question    string
	Header      string
	Options     []QuestionOption
	MultiSelect bool
}

// QuestionOption is one clickable answer.
type QuestionOption struct {
	Label       string
	Description string
}

// Client abstracts a chat platform. Every method may fail with a transport
// error; callers treat such errors as non-fatal, log them, and continue.
type Client interface {
	// Platform identifies the implementation, used for chunk-size and
	// edit-rate selection.
	Platform() Platform

	// MaxMessageLen is the largest single message body the platform accepts.
	MaxMessageLen() int

	// Connect establishes the platform connection and starts delivering
	// inbound messages to the registered handler.
	Connect(ctx context.Context) error

	// Close tears the connection down.
	Close() error

	// SendToChannel posts text, splitting into platform-safe chunks.
	SendToChannel(ctx context.Context, channelID, text string) error

	// SendToChannelWithID posts text and returns the new message ID
	// (of the first chunk when the text was split).
	SendToChannelWithID(ctx context.Context, channelID, text string) (string, error)

	// ReplyInThread posts a threaded reply under parentID.
	ReplyInThread(ctx context.Context, channelID, parentID, text string) error

	// UpdateMessage edits a previously sent message in place.
	UpdateMessage(ctx context.Context, channelID, messageID, text string) error

	// SendToChannelWithFiles posts text with file attachments.
	SendToChannelWithFiles(ctx context.Context, channelID, text string, paths []string) error

	// AddReaction adds a bot reaction (glyph form) to a message.
	AddReaction(ctx context.Context, channelID, messageID, glyph string) error

	// ReplaceReaction removes the from glyph and adds the to glyph.
	// Best effort: the add proceeds even when the remove fails.
	ReplaceReaction(ctx context.Context, channelID, messageID, from, to string) error

	// SendQuestionWithButtons posts interactive questions and blocks until
	// the user picks an option or the prompt times out (at most five
	// minutes). Returns the chosen label, or "" on timeout.
	SendQuestionWithButtons(ctx context.Context, channelID string, questions []Question) (string, error)

	// OnMessage registers the inbound handler. Must be called before Connect.
	OnMessage(h InboundHandler)
}

// AttachmentAuthorizer is implemented by clients whose inbound attachment
// URLs require an Authorization header to download (Slack private files).
type AttachmentAuthorizer interface {
	AttachmentAuthHeader(url string) string
}
