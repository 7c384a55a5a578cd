package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"link-resolver/common"
	lkafka "link-resolver/internal/kafka"
	"link-resolver/internal/models"
	"link-resolver/internal/queue"
	"link-resolver/internal/relay"
	"link-resolver/internal/resolver"
	"link-resolver/internal/store"
	"link-resolver/internal/supervisor"
)

type messageReader = queue.MessageReader

// offsetTracker learns each offset as it is fetched.
type offsetTracker interface {
	track(msg kafka.Message)
}

// errGuardUnavailable marks a request dropped because the delivery guard
// could not be consulted.
var errGuardUnavailable = errors.New("delivery guard unavailable")

type config struct {
	brokers        []string
	requestsTopic  string
	messagesTopic  string
	groupID        string
	useRedis       bool
	redisAddr      string
	redisRequired  bool
	guardTTL       time.Duration
	concurrentJobs int
	writeTimeout   time.Duration
	metricsAddr    string
	shutdownGrace  time.Duration
	resolve        resolver.Config
}

func loadConfig() config {
	return config{
		brokers:        common.SplitList(common.GetEnv("KAFKA_BROKER", "localhost:9092")),
		requestsTopic:  common.GetEnv("LINKRESOLVER_REQUESTS_TOPIC", "linkresolver.requests"),
		messagesTopic:  common.GetEnv("LINKRESOLVER_MESSAGES_TOPIC", "linkresolver.messages"),
		groupID:        common.GetEnv("KAFKA_GROUP_ID", "linkresolver-worker"),
		useRedis:       common.ParseBool(common.GetEnv("DELIVERY_GUARD_REDIS", "true"), true),
		redisAddr:      common.GetEnv("REDIS_ADDR", "localhost:6379"),
		redisRequired:  common.ParseBool(common.GetEnv("REDIS_REQUIRED", "false"), false),
		guardTTL:       common.ParseDuration(common.GetEnv("DELIVERY_GUARD_TTL", "24h"), 24*time.Hour),
		concurrentJobs: common.ParseInt(common.GetEnv("CONCURRENT_JOBS", "16"), 16),
		writeTimeout:   common.ParseDuration(common.GetEnv("MESSAGE_WRITE_TIMEOUT", "10s"), lkafka.DefaultWriteTimeout),
		metricsAddr:    common.GetEnv("METRICS_ADDR", ":9090"),
		shutdownGrace:  common.ParseDuration(common.GetEnv("SHUTDOWN_GRACE", "15s"), 15*time.Second),
		resolve: resolver.Config{
			Timeout:   common.ParseDuration(common.GetEnv("RESOLVE_TIMEOUT", "2s"), resolver.DefaultTimeout),
			MaxHops:   common.ParseInt(common.GetEnv("MAX_HOPS", "5"), resolver.DefaultMaxHops),
			UserAgent: common.GetEnv("USER_AGENT", resolver.DefaultUserAgent),
		},
	}
}

type worker struct {
	reader    messageReader
	guard     store.DeliveryGuard
	messenger relay.Messenger
	pool      *supervisor.Pool
	resolve   resolver.Config
	commitCh  chan<- kafka.Message
	offsets   offsetTracker
	metrics   *workerMetrics
	log       zerolog.Logger
}

func newWorker(
	reader messageReader,
	guard store.DeliveryGuard,
	messenger relay.Messenger,
	pool *supervisor.Pool,
	resolve resolver.Config,
	commitCh chan<- kafka.Message,
	offsets offsetTracker,
	metrics *workerMetrics,
	log zerolog.Logger,
) *worker {
	return &worker{
		reader:    reader,
		guard:     guard,
		messenger: messenger,
		pool:      pool,
		resolve:   resolve,
		commitCh:  commitCh,
		offsets:   offsets,
		metrics:   metrics,
		log:       log,
	}
}

// newGuard picks the delivery guard backend. An unreachable redis is only
// fatal when REDIS_REQUIRED is set; otherwise claims fail until it comes up.
func newGuard(ctx context.Context, cfg config, log zerolog.Logger) (store.DeliveryGuard, error) {
	if !cfg.useRedis {
		log.Warn().Msg("DELIVERY_GUARD_REDIS off, using in-process delivery guard")
		return store.NewMemoryDeliveryGuard(cfg.guardTTL), nil
	}
	guard := store.NewRedisDeliveryGuard(cfg.redisAddr, "delivered:", cfg.guardTTL)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := guard.Ping(pingCtx); err != nil {
		if cfg.redisRequired {
			_ = guard.Close()
			return nil, fmt.Errorf("redis at %s: %w", cfg.redisAddr, err)
		}
		log.Warn().Err(err).Str("addr", cfg.redisAddr).Msg("redis not reachable yet")
	}
	return guard, nil
}

func main() {
	envErr := common.LoadDotEnv()
	log := common.NewLogger("worker")
	if envErr != nil {
		log.Warn().Err(envErr).Msg("ignoring unreadable .env")
	}
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers: cfg.brokers,
		Topic:   cfg.requestsTopic,
		GroupID: cfg.groupID,
	})
	defer func() {
		if err := reader.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close reader")
		}
	}()

	guard, err := newGuard(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("delivery guard unavailable")
	}
	defer func() {
		if err := guard.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close delivery guard")
		}
	}()

	messenger := lkafka.NewMessenger(cfg.brokers, cfg.messagesTopic, cfg.writeTimeout)
	defer func() {
		if err := messenger.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close messenger")
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := newWorkerMetrics(reg)
	pool := supervisor.NewPool(cfg.concurrentJobs, newMetricsSink(supervisor.NewLogSink(log), metrics))
	metrics.trackInFlight(reg, pool.InFlight)

	if cfg.metricsAddr != "" {
		startMetricsServer(ctx, cfg.metricsAddr, reg, log)
	}

	// the coordinator outlives ctx so tasks finishing during shutdown still commit
	coordCtx, coordCancel := context.WithCancel(context.Background())
	defer coordCancel()
	commitCh := make(chan kafka.Message, cfg.concurrentJobs*2)
	coordinator := newCommitCoordinator(reader, commitCh, metrics, log)
	var coordWg sync.WaitGroup
	coordWg.Add(1)
	go coordinator.run(coordCtx, &coordWg)

	log.Info().
		Str("topic", cfg.requestsTopic).
		Str("group", cfg.groupID).
		Strs("brokers", cfg.brokers).
		Int("concurrent_jobs", cfg.concurrentJobs).
		Msg("worker consuming")

	w := newWorker(reader, guard, messenger, pool, cfg.resolve, commitCh, coordinator, metrics, log)
	w.run(ctx)

	if pool.WaitTimeout(cfg.shutdownGrace) {
		close(commitCh)
	} else {
		log.Warn().Int64("in_flight", pool.InFlight()).Msg("shutdown grace elapsed with tasks still running")
		coordCancel()
	}
	coordWg.Wait()
}

// run fetches requests until ctx ends and hands each to the pool.
func (w *worker) run(ctx context.Context) {
	for {
		msg, err := w.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn().Err(err).Msg("fetch error")
			time.Sleep(500 * time.Millisecond)
			continue
		}

		if err := w.dispatchMessage(ctx, msg); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.log.Warn().Err(err).Msg("dispatch error")
		}
	}
}

// dispatchMessage decodes msg and starts a task for it. Undecodable payloads
// are committed straight away. A non-nil error means the message was not
// started and will be redelivered.
func (w *worker) dispatchMessage(ctx context.Context, msg kafka.Message) error {
	w.offsets.track(msg)
	var req models.ResolutionRequest
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		w.metrics.invalid.Inc()
		w.log.Warn().Err(err).Int("partition", msg.Partition).Int64("offset", msg.Offset).Msg("invalid request payload")
		w.commitCh <- msg
		return nil
	}
	w.metrics.received.Inc()

	return w.pool.Go(ctx, "resolve "+guardKey(req, msg), func(taskCtx context.Context) error {
		defer func() { w.commitCh <- msg }()
		return w.handle(taskCtx, req, msg)
	})
}

// handle claims the request and runs one resolution. Only failures that point
// at a problem outside the target link are returned.
func (w *worker) handle(ctx context.Context, req models.ResolutionRequest, msg kafka.Message) error {
	key := guardKey(req, msg)
	claimed, err := w.guard.Claim(ctx, key)
	if err != nil {
		w.metrics.aborted.WithLabelValues("guard").Inc()
		return fmt.Errorf("%w: %s: %v", errGuardUnavailable, key, err)
	}
	if !claimed {
		w.metrics.skipped.Inc()
		w.log.Info().Str("key", key).Msg("duplicate request skipped")
		return nil
	}

	out := resolver.NewWorker(w.resolve, w.messenger, w.log).Run(ctx, req)
	w.metrics.observeOutcome(out)

	var transportErr *resolver.TransportError
	if errors.As(out.Err, &transportErr) {
		return out.Err
	}
	return nil
}

// guardKey prefers the request id; requests published without one fall back
// to their position in the log.
func guardKey(req models.ResolutionRequest, msg kafka.Message) string {
	if req.RequestID != "" {
		return req.RequestID
	}
	return fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
}
