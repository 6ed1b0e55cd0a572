package jobs

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastConfig() PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxWait: time.Second, MaxTransient: 3}
}

func TestPoll_SucceedsAfterPending(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), "video", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 checks, got %d", calls)
	}
}

func TestPoll_ExplicitFailureIsPermanent(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), "video", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		return false, &JobFailedError{Job: "video", Reason: "bad codec"}
	})
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("expected JobFailedError, got %v", err)
	}
	if failed.Reason != "bad codec" {
		t.Errorf("unexpected reason %q", failed.Reason)
	}
	if calls != 1 {
		t.Errorf("failed job must not be re-polled, got %d checks", calls)
	}
}

func TestPoll_SingleTransientErrorTolerated(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), "audio", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		switch calls {
		case 1:
			return false, errors.New("throttled")
		case 2:
			return false, nil
		default:
			return true, nil
		}
	})
	if err != nil {
		t.Fatalf("transient error should not fail the job: %v", err)
	}
}

func TestPoll_TransientCounterResetsOnSuccess(t *testing.T) {
	calls := 0
	err := Poll(context.Background(), "audio", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		if calls >= 7 {
			return true, nil
		}
		if calls%2 == 1 {
			return false, errors.New("flaky")
		}
		return false, nil
	})
	if err != nil {
		t.Fatalf("alternating errors should be tolerated: %v", err)
	}
}

func TestPoll_ConsecutiveTransientErrorsEscalate(t *testing.T) {
	sentinel := errors.New("endpoint unreachable")
	calls := 0
	err := Poll(context.Background(), "audio", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		return false, sentinel
	})
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected wrapped sentinel, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 attempts, got %d", calls)
	}
}

func TestPoll_Timeout(t *testing.T) {
	cfg := PollConfig{Interval: time.Millisecond, MaxWait: 10 * time.Millisecond}
	err := Poll(context.Background(), "video", cfg, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	var timeout *JobTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected JobTimeoutError, got %v", err)
	}
	if timeout.Job != "video" {
		t.Errorf("unexpected job %q", timeout.Job)
	}
}

func TestPoll_TimesOutBeforeContextDeadline(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	cfg := PollConfig{Interval: 5 * time.Millisecond, MaxWait: time.Minute, DeadlineMargin: 400 * time.Millisecond}

	start := time.Now()
	err := Poll(ctx, "video", cfg, func(ctx context.Context) (bool, error) {
		return false, nil
	})
	var timeout *JobTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected JobTimeoutError ahead of the deadline, got %v", err)
	}
	if ctx.Err() != nil {
		t.Errorf("poll should stop while the context is still live, elapsed %v", time.Since(start))
	}
}

func TestPoll_DeadlineInsideMarginChecksOnce(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	calls := 0
	err := Poll(ctx, "audio", PollConfig{Interval: time.Millisecond, MaxWait: time.Minute, DeadlineMargin: time.Minute},
		func(ctx context.Context) (bool, error) {
			calls++
			return false, nil
		})
	var timeout *JobTimeoutError
	if !errors.As(err, &timeout) {
		t.Fatalf("expected JobTimeoutError, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected a single check, got %d", calls)
	}
}

func TestPoll_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Poll(ctx, "video", fastConfig(), func(ctx context.Context) (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestPollConfig_Defaults(t *testing.T) {
	c := PollConfig{MaxTransient: 1}.withDefaults()
	if c.Interval != DefaultPollInterval || c.MaxWait != DefaultMaxWait || c.MaxTransient != DefaultMaxTransient ||
		c.DeadlineMargin != DefaultDeadlineMargin {
		t.Errorf("unexpected defaults: %+v", c)
	}
}
