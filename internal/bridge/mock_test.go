package bridge

import (
	"context"
	"fmt"
	"sync"

	"github.com/discode-ai/discode/internal/messaging"
)

// fakeClient records every platform call for assertions. Safe for
// concurrent use; timers and goroutines hit it off the test goroutine.
type fakeClient struct {
	mu sync.Mutex

	sent      []sentMessage
	edits     []sentMessage
	reactions []reactionCall
	files     []fileCall

	nextID   int
	sendErr  error
	editErr  error
	answer   string
	maxLen   int
	handler  messaging.InboundHandler
	questionCh chan []messaging.Question
}

type sentMessage struct {
	channelID string
	messageID string
	text      string
}

type reactionCall struct {
	channelID string
	messageID string
	from      string
	to        string
}

type fileCall struct {
	channelID string
	text      string
	paths     []string
}

func newFakeClient() *fakeClient {
	return &fakeClient{maxLen: 2000, questionCh: make(chan []messaging.Question, 1)}
}

func (f *fakeClient) Platform() messaging.Platform { return messaging.PlatformDiscord }

func (f *fakeClient) MaxMessageLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxLen
}

func (f *fakeClient) Connect(context.Context) error { return nil }
func (f *fakeClient) Close() error                  { return nil }

func (f *fakeClient) SendToChannel(_ context.Context, channelID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentMessage{channelID: channelID, text: text})
	return nil
}

func (f *fakeClient) SendToChannelWithID(_ context.Context, channelID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.nextID++
	id := fmt.Sprintf("msg-%d", f.nextID)
	f.sent = append(f.sent, sentMessage{channelID: channelID, messageID: id, text: text})
	return id, nil
}

func (f *fakeClient) ReplyInThread(_ context.Context, channelID, parentID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentMessage{channelID: channelID, messageID: parentID, text: text})
	return nil
}

func (f *fakeClient) UpdateMessage(_ context.Context, channelID, messageID, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sentMessage{channelID: channelID, messageID: messageID, text: text})
	return nil
}

func (f *fakeClient) SendToChannelWithFiles(_ context.Context, channelID, text string, paths []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = append(f.files, fileCall{channelID: channelID, text: text, paths: paths})
	return nil
}

func (f *fakeClient) AddReaction(_ context.Context, channelID, messageID, glyph string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, reactionCall{channelID: channelID, messageID: messageID, to: glyph})
	return nil
}

func (f *fakeClient) ReplaceReaction(_ context.Context, channelID, messageID, from, to string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reactions = append(f.reactions, reactionCall{channelID: channelID, messageID: messageID, from: from, to: to})
	return nil
}

func (f *fakeClient) SendQuestionWithButtons(_ context.Context, _ string, questions []messaging.Question) (string, error) {
	select {
	case f.questionCh <- questions:
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.answer, nil
}

func (f *fakeClient) OnMessage(h messaging.InboundHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = h
}

func (f *fakeClient) sentTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.sent))
	for i, m := range f.sent {
		out[i] = m.text
	}
	return out
}

func (f *fakeClient) editTexts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.edits))
	for i, m := range f.edits {
		out[i] = m.text
	}
	return out
}

func (f *fakeClient) lastEdit() (sentMessage, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		return sentMessage{}, false
	}
	return f.edits[len(f.edits)-1], true
}
