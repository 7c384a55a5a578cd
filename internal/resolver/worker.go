package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"link-resolver/internal/models"
	"link-resolver/internal/relay"
)

// State is a step of a single resolution.
type State int

const (
	StateNormalizing State = iota
	StateResolving
	StateClassifying
	StateExtracting
	StateFormatting
	StateDelivering
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateNormalizing: "normalizing",
	StateResolving:   "resolving",
	StateClassifying: "classifying",
	StateExtracting:  "extracting",
	StateFormatting:  "formatting",
	StateDelivering:  "delivering",
	StateDone:        "done",
	StateAborted:     "aborted",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// Outcome reports how a request ended. It is for logs and metrics only; the
// caller of the worker is never expected to act on it.
type Outcome struct {
	State    State
	Path     []State
	Summary  string
	Host     string
	Hops     int
	Err      error
	Duration time.Duration
}

// Delivered reports whether a message was handed to the messenger.
func (o Outcome) Delivered() bool {
	return o.State == StateDone
}

// Worker resolves a single request and sends at most one message. Create one
// per request; it holds no state shared with other workers.
type Worker struct {
	cfg       Config
	messenger relay.Messenger
	log       zerolog.Logger
	out       Outcome
}

// NewWorker creates a single-use worker.
func NewWorker(cfg Config, messenger relay.Messenger, log zerolog.Logger) *Worker {
	return &Worker{cfg: cfg.withDefaults(), messenger: messenger, log: log}
}

// Run drives req through normalize, resolve, classify and summarize, and
// delivers the summary. Failures other than the hop limit end silently.
func (w *Worker) Run(ctx context.Context, req models.ResolutionRequest) Outcome {
	start := time.Now()
	log := w.log.With().
		Str("request_id", req.RequestID).
		Str("destination", req.Destination).
		Str("target", req.Target).
		Logger()

	w.run(relay.WithRequestID(ctx, req.RequestID), req, log)

	w.out.Duration = time.Since(start)
	evt := log.Debug()
	if w.out.State == StateAborted {
		evt = log.Info().Str("reason", Reason(w.out.Err)).AnErr("error", w.out.Err)
	}
	evt.Str("state", w.out.State.String()).
		Str("host", w.out.Host).
		Int("hops", w.out.Hops).
		Dur("duration", w.out.Duration).
		Msg("resolution finished")
	return w.out
}

func (w *Worker) run(ctx context.Context, req models.ResolutionRequest, log zerolog.Logger) {
	w.enter(StateNormalizing)
	target, err := Normalize(req.Target)
	if err != nil {
		w.abort(err)
		return
	}

	res := NewResolver(w.cfg)
	defer res.Close()

	w.enter(StateResolving)
	resolution, err := res.Resolve(ctx, target)
	w.out.Hops = resolution.Hops
	if resolution.URI != nil {
		w.out.Host = resolution.URI.Hostname()
	}
	if errors.Is(err, ErrHopLimitExceeded) {
		w.deliver(ctx, req.Destination, HopLimitSummary(w.out.Host, resolution.Hops), log)
		return
	}
	if err != nil {
		w.abort(err)
		return
	}

	w.enter(StateClassifying)
	fetched, err := res.Classify(ctx, resolution.URI)
	if err != nil {
		w.abort(err)
		return
	}
	defer fetched.Close()

	var summary string
	if fetched.Classification.Textual() {
		w.enter(StateExtracting)
		title, err := ExtractTitle(fetched.Body)
		if err != nil {
			w.abort(&TransportError{Stage: StageBody, URL: resolution.URI.String(), Err: err})
			return
		}
		summary = TitleSummary(w.out.Host, title)
	} else {
		w.enter(StateFormatting)
		summary = BinarySummary(w.out.Host, fetched.Classification)
	}
	// release the connection before handing off
	_ = fetched.Close()

	w.deliver(ctx, req.Destination, summary, log)
}

func (w *Worker) deliver(ctx context.Context, destination, summary string, log zerolog.Logger) {
	w.enter(StateDelivering)
	w.out.Summary = summary
	if err := w.messenger.Message(context.WithoutCancel(ctx), destination, summary); err != nil {
		w.out.Err = err
		log.Warn().Err(err).Msg("message delivery failed")
	}
	w.enter(StateDone)
}

func (w *Worker) abort(err error) {
	w.out.Err = err
	w.enter(StateAborted)
}

func (w *Worker) enter(s State) {
	w.out.State = s
	w.out.Path = append(w.out.Path, s)
}
