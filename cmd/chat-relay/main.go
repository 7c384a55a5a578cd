package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"link-resolver/common"
	"link-resolver/internal/models"
	"link-resolver/internal/queue"
	"link-resolver/internal/relay"
)

type relayMetrics struct {
	received prometheus.Counter
	invalid  prometheus.Counter
	posted   prometheus.Counter
	failed   prometheus.Counter
}

func newRelayMetrics(reg prometheus.Registerer) *relayMetrics {
	f := promauto.With(reg)
	return &relayMetrics{
		received: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_relay_messages_received_total",
			Help: "Chat messages pulled from Kafka.",
		}),
		invalid: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_relay_messages_invalid_total",
			Help: "Messages whose payload could not be decoded.",
		}),
		posted: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_relay_messages_posted_total",
			Help: "Messages handed to the chat sink.",
		}),
		failed: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_relay_messages_failed_total",
			Help: "Messages the chat sink rejected. They are not retried.",
		}),
	}
}

func main() {
	envErr := common.LoadDotEnv()
	log := common.NewLogger("chat-relay")
	if envErr != nil {
		log.Warn().Err(envErr).Msg("ignoring unreadable .env")
	}
	brokers := common.SplitList(common.GetEnv("KAFKA_BROKER", "localhost:9092"))
	topic := common.GetEnv("LINKRESOLVER_MESSAGES_TOPIC", "linkresolver.messages")
	groupID := common.GetEnv("KAFKA_GROUP_ID", "linkresolver-chat-relay")
	webhookURL := common.GetEnv("CHAT_WEBHOOK_URL", "")
	metricsAddr := common.GetEnv("METRICS_ADDR", ":9091")

	var sink relay.Messenger = relay.NewWriterMessenger(os.Stdout)
	if webhookURL != "" {
		sink = relay.NewWebhookMessenger(webhookURL, nil)
	} else {
		log.Warn().Msg("CHAT_WEBHOOK_URL empty, printing messages to stdout")
	}

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: brokers,
		Topic:   topic,
		GroupID: groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Warn().Err(err).Msg("reader close error")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	metrics := newRelayMetrics(reg)
	if metricsAddr != "" {
		startMetricsServer(ctx, metricsAddr, reg, log)
	}

	log.Info().Str("topic", topic).Str("group", groupID).Msg("relay consuming")
	consumeMessages(ctx, reader, sink, metrics, log)
}

func startMetricsServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("metrics shutdown error")
		}
	}()

	go func() {
		log.Info().Str("addr", addr).Msg("metrics listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()
}

// consumeMessages posts every chat message to sink in log order. A message is
// committed once it was attempted, whether or not the sink accepted it.
func consumeMessages(ctx context.Context, reader queue.MessageReader, sink relay.Messenger, metrics *relayMetrics, log zerolog.Logger) {
	for {
		msg, err := reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Msg("messages fetch error")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		metrics.received.Inc()
		postMessage(ctx, msg, sink, metrics, log)

		if err := reader.CommitMessages(ctx, msg); err != nil {
			log.Warn().Err(err).Int64("offset", msg.Offset).Msg("messages commit error")
		}
	}
}

func postMessage(ctx context.Context, msg kafka.Message, sink relay.Messenger, metrics *relayMetrics, log zerolog.Logger) {
	var chat models.ChatMessage
	if err := json.Unmarshal(msg.Value, &chat); err != nil {
		metrics.invalid.Inc()
		log.Warn().Err(err).Int64("offset", msg.Offset).Msg("invalid chat message")
		return
	}
	if err := sink.Message(relay.WithRequestID(ctx, chat.RequestID), chat.Destination, chat.Text); err != nil {
		metrics.failed.Inc()
		log.Warn().Err(err).Str("request_id", chat.RequestID).Str("destination", chat.Destination).Msg("chat post failed")
		return
	}
	metrics.posted.Inc()
}
