package worker

import (
	"context"
	"errors"
	"time"

	"github.com/prepstream/shipment-relay/internal/metrics"
	"github.com/prepstream/shipment-relay/internal/model"
	"github.com/prepstream/shipment-relay/internal/repository"
	"go.uber.org/zap"
)

// Runner is the inbound processing worker. Each tick it lists unprocessed
// events and runs the registered Processor per event type, applying the
// outcome contract:
//
//   - Success / Fatal: MarkProcessed exactly once (conditional update)
//   - Retryable:       row stays pending for a later pass
//
// Events are not pre-claimed; MarkProcessed's compare-and-set is the single
// arbitration point between concurrent runner instances.
type Runner struct {
	Events     repository.EventsRepository
	Processors map[string]Processor // by event_type
	Log        *zap.Logger

	Interval  time.Duration
	BatchSize int
}

func NewRunner(events repository.EventsRepository, procs map[string]Processor, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		Events:     events,
		Processors: procs,
		Log:        log,
		Interval:   2 * time.Second,
		BatchSize:  100,
	}
}

// Run starts the polling loop and blocks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	if r.Interval <= 0 {
		r.Interval = 2 * time.Second
	}
	if r.BatchSize <= 0 {
		r.BatchSize = 100
	}

	tick := time.NewTicker(r.Interval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-tick.C:
			if err := r.Pass(ctx); err != nil {
				r.Log.Error("processing pass failed", zap.Error(err))
			}
		}
	}
}

// Pass runs one iteration over the pending backlog.
func (r *Runner) Pass(ctx context.Context) error {
	events, err := r.Events.ListUnprocessed(ctx, r.BatchSize)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return nil
	}

	var done, pending, failed int
	for _, ev := range events {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch r.processOne(ctx, ev) {
		case OutcomeSuccess:
			done++
		case OutcomeRetryable:
			pending++
		case OutcomeFatal:
			failed++
		}
	}

	r.Log.Info("processing pass completed",
		zap.Int("success", done),
		zap.Int("retryable", pending),
		zap.Int("fatal", failed))

	return nil
}

func (r *Runner) processOne(ctx context.Context, ev model.InboundEvent) OutcomeKind {
	proc, ok := r.Processors[ev.EventType]
	if !ok {
		// no handler will ever appear for this row; record it as terminal
		r.mark(ctx, ev, Fatal("no processor registered for event type "+ev.EventType))
		return OutcomeFatal
	}

	out := proc.Process(ctx, ev)
	metrics.EventsProcessed.WithLabelValues(out.Kind.String(), ev.EventType).Inc()

	switch out.Kind {
	case OutcomeSuccess, OutcomeFatal:
		r.mark(ctx, ev, out)
	case OutcomeRetryable:
		r.Log.Debug("event left pending",
			zap.String("event_id", ev.ID),
			zap.String("reason", out.Reason))
	}
	return out.Kind
}

func (r *Runner) mark(ctx context.Context, ev model.InboundEvent, out Outcome) {
	success := out.Kind == OutcomeSuccess
	err := r.Events.MarkProcessed(ctx, ev.ID, success, out.Reason, out.Result)
	if err == nil {
		return
	}
	if errors.Is(err, repository.ErrAlreadyProcessed) {
		// lost to a concurrent pass; the first outcome stands
		metrics.EventsProcessed.WithLabelValues("already_processed", ev.EventType).Inc()
		return
	}
	r.Log.Error("mark processed failed",
		zap.String("event_id", ev.ID),
		zap.Bool("success", success),
		zap.Error(err))
}
