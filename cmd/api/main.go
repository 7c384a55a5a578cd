package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"link-resolver/common"
	"link-resolver/internal/kafka"
	"link-resolver/internal/models"
	"link-resolver/internal/resolver"
)

type apiMetrics struct {
	accepted      prometheus.Counter
	rejected      *prometheus.CounterVec
	enqueueErrors prometheus.Counter
}

func newAPIMetrics(reg prometheus.Registerer) *apiMetrics {
	f := promauto.With(reg)
	return &apiMetrics{
		accepted: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_api_requests_accepted_total",
			Help: "Resolution requests enqueued.",
		}),
		rejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkresolver_api_requests_rejected_total",
			Help: "Resolution requests refused before enqueueing, by reason.",
		}, []string{"reason"}),
		enqueueErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_api_enqueue_errors_total",
			Help: "Kafka writes that failed.",
		}),
	}
}

type server struct {
	prod    kafka.RequestProducer
	metrics *apiMetrics
	log     zerolog.Logger
	newID   func() string
	now     func() time.Time
}

func newServer(prod kafka.RequestProducer, metrics *apiMetrics, log zerolog.Logger) *server {
	return &server{
		prod:    prod,
		metrics: metrics,
		log:     log,
		newID:   uuid.NewString,
		now:     time.Now,
	}
}

func (s *server) routes(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/resolve", s.handleResolve)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

func main() {
	envErr := common.LoadDotEnv()
	log := common.NewLogger("api")
	if envErr != nil {
		log.Warn().Err(envErr).Msg("ignoring unreadable .env")
	}
	brokers := common.SplitList(common.GetEnv("KAFKA_BROKER", "localhost:9092"))
	topic := common.GetEnv("LINKRESOLVER_REQUESTS_TOPIC", "linkresolver.requests")
	addr := common.GetEnv("API_ADDR", ":8080")

	prod := kafka.NewProducer(brokers, topic)
	defer func() {
		if err := prod.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close producer")
		}
	}()

	reg := prometheus.NewRegistry()
	srv := newServer(prod, newAPIMetrics(reg), log)
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.routes(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("api shutdown error")
		}
	}()

	log.Info().Str("addr", addr).Str("topic", topic).Msg("api listening")
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("api server error")
	}
}

// handleResolve enqueues a link for resolution. The summary is delivered to
// destination later; the response only confirms the request was queued.
//
// Method: POST
// Path:   /resolve?url=...&destination=...
// Example:
//
//	curl -X POST "http://localhost:8080/resolve?url=www.artima.com&destination=%23general"
func (s *server) handleResolve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	target := strings.TrimSpace(r.URL.Query().Get("url"))
	destination := strings.TrimSpace(r.URL.Query().Get("destination"))
	switch {
	case target == "":
		s.reject(w, "missing_url", "missing url")
		return
	case destination == "":
		s.reject(w, "missing_destination", "missing destination")
		return
	}
	if _, err := resolver.Normalize(target); err != nil {
		s.reject(w, "malformed_url", "malformed url")
		return
	}

	req := models.ResolutionRequest{
		RequestID:   s.newID(),
		Target:      target,
		Destination: destination,
		CreatedAt:   s.now().UTC(),
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.prod.WriteRequest(ctx, req); err != nil {
		s.metrics.enqueueErrors.Inc()
		s.log.Error().Err(err).Str("request_id", req.RequestID).Msg("failed to enqueue request")
		http.Error(w, "failed to enqueue request", http.StatusBadGateway)
		return
	}

	s.metrics.accepted.Inc()
	s.log.Debug().Str("request_id", req.RequestID).Str("destination", destination).Msg("request queued")
	writeJSON(w, req, http.StatusAccepted)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func (s *server) reject(w http.ResponseWriter, reason, msg string) {
	s.metrics.rejected.WithLabelValues(reason).Inc()
	http.Error(w, msg, http.StatusBadRequest)
}

func writeJSON(w http.ResponseWriter, payload any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
	}
}
