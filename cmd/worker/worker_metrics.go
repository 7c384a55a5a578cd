package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"link-resolver/internal/resolver"
	"link-resolver/internal/supervisor"
)

// workerMetrics is everything the worker exposes on /metrics.
type workerMetrics struct {
	received       prometheus.Counter
	skipped        prometheus.Counter
	invalid        prometheus.Counter
	delivered      prometheus.Counter
	deliveryErrors prometheus.Counter
	aborted        *prometheus.CounterVec
	taskFailures   prometheus.Counter
	panics         prometheus.Counter

	hops    prometheus.Histogram
	latency prometheus.Histogram

	// commit coordinator
	commitErrors  prometheus.Counter
	commitPending prometheus.Gauge
	commitLatency prometheus.Histogram
}

func newWorkerMetrics(reg prometheus.Registerer) *workerMetrics {
	f := promauto.With(reg)
	return &workerMetrics{
		received: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_requests_received_total",
			Help: "Resolution requests pulled from Kafka.",
		}),
		skipped: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_requests_skipped_total",
			Help: "Requests skipped because the delivery guard had already seen them.",
		}),
		invalid: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_requests_invalid_total",
			Help: "Messages whose payload could not be decoded.",
		}),
		delivered: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_requests_delivered_total",
			Help: "Requests that ended with a summary handed to the messenger.",
		}),
		deliveryErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_delivery_errors_total",
			Help: "Messenger calls that returned an error.",
		}),
		aborted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "linkresolver_worker_requests_aborted_total",
			Help: "Requests that ended without a message, by reason.",
		}, []string{"reason"}),
		taskFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_task_failures_total",
			Help: "Failures reported to the error sink, panics included.",
		}),
		panics: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_task_panics_total",
			Help: "Tasks that panicked and were recovered.",
		}),
		hops: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkresolver_worker_redirect_hops",
			Help:    "Redirects followed per request.",
			Buckets: prometheus.LinearBuckets(0, 1, resolver.DefaultMaxHops+1),
		}),
		latency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkresolver_worker_resolution_seconds",
			Help:    "Time from dispatch to terminal state.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		commitErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "linkresolver_worker_commit_errors_total",
			Help: "Kafka CommitMessages failures.",
		}),
		commitPending: f.NewGauge(prometheus.GaugeOpts{
			Name: "linkresolver_worker_commit_pending",
			Help: "Finished messages buffered in the coordinator awaiting commit.",
		}),
		commitLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "linkresolver_worker_commit_latency_seconds",
			Help:    "Kafka commit latency.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

// trackInFlight exposes the pool's running task count as a gauge.
func (m *workerMetrics) trackInFlight(reg prometheus.Registerer, inFlight func() int64) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Name: "linkresolver_worker_in_flight",
		Help: "Resolutions currently running.",
	}, func() float64 {
		return float64(inFlight())
	})
}

func (m *workerMetrics) observeOutcome(out resolver.Outcome) {
	m.latency.Observe(out.Duration.Seconds())
	m.hops.Observe(float64(out.Hops))
	switch {
	case out.Delivered():
		m.delivered.Inc()
		if out.Err != nil {
			m.deliveryErrors.Inc()
		}
	case out.State == resolver.StateAborted:
		m.aborted.WithLabelValues(resolver.Reason(out.Err)).Inc()
	}
}

func (m *workerMetrics) observeCommit(d time.Duration, err error) {
	m.commitLatency.Observe(d.Seconds())
	if err != nil {
		m.commitErrors.Inc()
	}
}

// metricsSink counts failures before passing them on.
type metricsSink struct {
	next    supervisor.ErrorSink
	metrics *workerMetrics
}

func newMetricsSink(next supervisor.ErrorSink, metrics *workerMetrics) *metricsSink {
	return &metricsSink{next: next, metrics: metrics}
}

func (s *metricsSink) Report(task string, err error) {
	s.metrics.taskFailures.Inc()
	var pe *supervisor.PanicError
	if errors.As(err, &pe) {
		s.metrics.panics.Inc()
	}
	s.next.Report(task, err)
}

func newMetricsHandler(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return mux
}

func startMetricsServer(ctx context.Context, addr string, gatherer prometheus.Gatherer, log zerolog.Logger) {
	server := &http.Server{
		Addr:              addr,
		Handler:           newMetricsHandler(gatherer),
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
