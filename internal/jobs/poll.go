package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"
)

// Polling defaults.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultMaxWait      = 14 * time.Minute
	DefaultMaxTransient = 3
	// DefaultDeadlineMargin is kept free before the context deadline so a
	// timed-out run can still report its failure.
	DefaultDeadlineMargin = 30 * time.Second
)

// errPending signals "not terminal yet" to the retry loop.
var errPending = errors.New("job still running")

// PollConfig bounds a polling loop.
type PollConfig struct {
	// Interval is the fixed delay between status queries.
	Interval time.Duration
	// MaxWait is the total budget before a JobTimeoutError.
	MaxWait time.Duration
	// MaxTransient is how many consecutive query errors are tolerated
	// before polling gives up. Values below 2 fall back to the default so
	// that a single transient error never fails a job.
	MaxTransient int
	// DeadlineMargin shortens MaxWait when the context has a deadline, so
	// polling stops at least this long before it.
	DeadlineMargin time.Duration
}

func (c PollConfig) withDefaults() PollConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultPollInterval
	}
	if c.MaxWait <= 0 {
		c.MaxWait = DefaultMaxWait
	}
	if c.MaxTransient < 2 {
		c.MaxTransient = DefaultMaxTransient
	}
	if c.DeadlineMargin <= 0 {
		c.DeadlineMargin = DefaultDeadlineMargin
	}
	return c
}

// budget returns the wait budget left for a poll starting now: MaxWait,
// capped by the context deadline minus DeadlineMargin.
func (c PollConfig) budget(ctx context.Context) time.Duration {
	budget := c.MaxWait
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline) - c.DeadlineMargin; left < budget {
			budget = left
		}
	}
	return budget
}

// CheckFunc queries a job once. It returns done=true on terminal success,
// a *JobFailedError on an explicit failed terminal state, and any other
// error for a query that itself failed.
type CheckFunc func(ctx context.Context) (done bool, err error)

// Poll calls check immediately and then every cfg.Interval until the job
// succeeds, fails, or the budget runs out. The budget never reaches past
// the context deadline minus cfg.DeadlineMargin. Context cancellation aborts
// the loop with the context error.
func Poll(ctx context.Context, job string, cfg PollConfig, check CheckFunc) error {
	cfg = cfg.withDefaults()
	start := time.Now()
	budget := cfg.budget(ctx)
	consecutive := 0
	attempts := 0

	op := func() error {
		attempts++
		done, err := check(ctx)
		if err != nil {
			var failed *JobFailedError
			if errors.As(err, &failed) {
				return backoff.Permanent(err)
			}
			consecutive++
			if consecutive >= cfg.MaxTransient {
				return backoff.Permanent(fmt.Errorf("poll %s job: %d consecutive errors: %w", job, consecutive, err))
			}
			log.Warn().Err(err).Str("job", job).Int("consecutive", consecutive).Msg("Transient error while polling job")
		} else {
			consecutive = 0
			if done {
				return nil
			}
		}
		if waited := time.Since(start); waited >= budget {
			return backoff.Permanent(&JobTimeoutError{Job: job, Waited: waited})
		}
		if err != nil {
			return err
		}
		return errPending
	}

	b := backoff.WithContext(backoff.NewConstantBackOff(cfg.Interval), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("poll %s job: %w", job, ctxErr)
		}
		return err
	}

	log.Debug().Str("job", job).Int("attempts", attempts).Dur("elapsed", time.Since(start)).Msg("Job reached terminal state")
	return nil
}

// Retry calls fn until it succeeds, allowing up to cfg.MaxTransient
// consecutive failures spaced by cfg.Interval. It is for follow-up reads of
// a finished job, such as result pages.
func Retry(ctx context.Context, job string, cfg PollConfig, fn func(ctx context.Context) error) error {
	cfg = cfg.withDefaults()
	attempts := 0
	op := func() error {
		attempts++
		err := fn(ctx)
		if err != nil && attempts < cfg.MaxTransient {
			log.Warn().Err(err).Str("job", job).Int("attempt", attempts).Msg("Transient error while reading job results")
		}
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(cfg.Interval), uint64(cfg.MaxTransient-1)), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("read %s results: %w", job, ctxErr)
		}
		return fmt.Errorf("read %s results: %d attempts: %w", job, attempts, err)
	}
	return nil
}
