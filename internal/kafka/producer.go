package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"link-resolver/internal/models"
	"link-resolver/internal/queue"
)

//go:generate mockgen -destination=../../mocks/mock_producer.go -package=mocks link-resolver/internal/kafka RequestProducer

// RequestProducer publishes ResolutionRequest messages.
type RequestProducer interface {
	WriteRequest(ctx context.Context, req models.ResolutionRequest) error
}

// Producer wraps a Kafka writer for publishing resolution requests.
type Producer struct {
	writer queue.MessageWriter
}

// NewProducer creates a Kafka producer for the given brokers and topic.
func NewProducer(brokers []string, topic string) *Producer {
	return &Producer{writer: newWriter(brokers, topic)}
}

// NewProducerWithWriter builds a producer using a custom writer (tests).
func NewProducerWithWriter(writer queue.MessageWriter) *Producer {
	return &Producer{writer: writer}
}

// Close shuts down the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// WriteRequest publishes a request keyed by destination, so requests for one
// channel land on one partition.
func (p *Producer) WriteRequest(ctx context.Context, req models.ResolutionRequest) error {
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.Destination),
		Value: payload,
		Time:  time.Now().UTC(),
	})
}

func newWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: false,
	}
}
