package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"link-resolver/internal/models"
	"link-resolver/internal/queue"
	"link-resolver/internal/relay"
)

// DefaultWriteTimeout bounds a single outbound message write.
const DefaultWriteTimeout = 10 * time.Second

// Messenger hands chat messages to the relay through the messages topic.
type Messenger struct {
	writer  queue.MessageWriter
	timeout time.Duration
	now     func() time.Time
}

// NewMessenger writes ChatMessage payloads to topic.
func NewMessenger(brokers []string, topic string, timeout time.Duration) *Messenger {
	return NewMessengerWithWriter(newWriter(brokers, topic), timeout)
}

// NewMessengerWithWriter builds a messenger on a custom writer (tests).
func NewMessengerWithWriter(writer queue.MessageWriter, timeout time.Duration) *Messenger {
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &Messenger{writer: writer, timeout: timeout, now: time.Now}
}

var _ relay.Messenger = (*Messenger)(nil)

// Message publishes text for destination. The request id, if the context
// carries one, travels with the payload.
func (m *Messenger) Message(ctx context.Context, destination, text string) error {
	sentAt := m.now().UTC()
	payload, err := json.Marshal(models.ChatMessage{
		RequestID:   relay.RequestIDFromContext(ctx),
		Destination: destination,
		Text:        text,
		SentAt:      sentAt,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()
	return m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(destination),
		Value: payload,
		Time:  sentAt,
	})
}

// Close shuts down the underlying writer.
func (m *Messenger) Close() error {
	return m.writer.Close()
}
