package runtime

import (
	"context"
	"errors"
)

// ErrNotSupported is returned for input modes a runtime cannot perform.
var ErrNotSupported = errors.New("runtime: operation not supported")

// SDK wraps an in-process agent runner that accepts whole messages.
// Keystroke-level input and screen capture do not apply.
type SDK struct {
	submit func(ctx context.Context, text string) error
	close  func() error
}

// NewSDK creates an SDK runtime from a submit function and an optional
// dispose function.
func NewSDK(submit func(ctx context.Context, text string) error, close func() error) *SDK {
	return &SDK{submit: submit, close: close}
}

func (s *SDK) SubmitMessage(ctx context.Context, text string) error {
	return s.submit(ctx, text)
}

func (s *SDK) TypeKeys(context.Context, string) error { return ErrNotSupported }
func (s *SDK) SendEnter(context.Context) error        { return ErrNotSupported }

func (s *SDK) Close() error {
	if s.close != nil {
		return s.close()
	}
	return nil
}
