package status

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Reporter is the pipeline's single writer for one run's status. It only
// lets steps advance: a write for a step at or before the last written one
// is dropped, and nothing follows a terminal step. Write failures are
// logged and discarded.
type Reporter struct {
	sink   Sink
	target Target
	now    func() time.Time
	logger zerolog.Logger

	last    Step
	written bool
}

// NewReporter creates a Reporter for one run.
func NewReporter(sink Sink, target Target) *Reporter {
	return &Reporter{
		sink:   sink,
		target: target,
		now:    time.Now,
		logger: log.With().Str("runId", target.RunID).Logger(),
	}
}

// WithClock overrides the timestamp source.
func (r *Reporter) WithClock(now func() time.Time) *Reporter {
	r.now = now
	return r
}

// Last returns the most recently accepted step, or "" before the first.
func (r *Reporter) Last() Step {
	return r.last
}

// Report writes a snapshot for step. It never returns an error.
func (r *Reporter) Report(ctx context.Context, step Step, message string, details map[string]any) {
	if r.written && (r.last.Terminal() || (step != StepError && step.Ordinal() <= r.last.Ordinal())) {
		r.logger.Warn().Str("step", string(step)).Str("last", string(r.last)).Msg("Dropping out-of-order status update")
		return
	}
	r.last = step
	r.written = true

	rec := NewRecord(step, message, details, r.now())
	if err := r.sink.Put(ctx, r.target, rec); err != nil {
		perr := &PersistenceError{RunID: r.target.RunID, Step: step, Err: err}
		r.logger.Error().Err(perr).Str("step", string(step)).Msg("Failed to update status")
		return
	}
	r.logger.Debug().Str("step", string(step)).Str("message", message).Msg("Status updated")
}
