// Package relay is the narrow slice of the chat relay the resolver talks to.
package relay

import (
	"context"
	"fmt"
	"io"
	"sync"
)

//go:generate mockgen -destination=../../mocks/mock_relay.go -package=mocks link-resolver/internal/relay Messenger

// Messenger sends text to a destination (a channel or a user). No
// acknowledgement is expected beyond the returned error.
type Messenger interface {
	Message(ctx context.Context, destination, text string) error
}

// MessengerFunc adapts a function to Messenger.
type MessengerFunc func(ctx context.Context, destination, text string) error

func (f MessengerFunc) Message(ctx context.Context, destination, text string) error {
	return f(ctx, destination, text)
}

// WriterMessenger prints "<destination>: <text>" lines to an io.Writer.
// Writes are serialized so concurrent messages never interleave.
type WriterMessenger struct {
	mu  sync.Mutex
	out io.Writer
}

func NewWriterMessenger(out io.Writer) *WriterMessenger {
	return &WriterMessenger{out: out}
}

func (m *WriterMessenger) Message(_ context.Context, destination, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, err := fmt.Fprintf(m.out, "%s: %s\n", destination, text)
	return err
}

type requestIDKey struct{}

// WithRequestID tags ctx with the id of the request a message answers.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id set by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
