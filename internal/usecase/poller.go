package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"time"

	"datalens-core/internal/domain/entity"
	"datalens-core/internal/domain/repository"
)

// PollPolicy tunes the run-completion polling schedule.
type PollPolicy struct {
	BaseDelay   time.Duration
	Factor      float64
	MaxDelay    time.Duration
	MaxAttempts int
	Jitter      func() float64 // [0,1); nil means math/rand
}

// DefaultPollPolicy balances responsiveness against remote-quota burn.
func DefaultPollPolicy() PollPolicy {
	return PollPolicy{
		BaseDelay:   2 * time.Second,
		Factor:      1.5,
		MaxDelay:    15 * time.Second,
		MaxAttempts: 30,
	}
}

// DelayFor returns the wait before poll number attempt (0-based). The jitter
// desynchronizes clients that started polling at the same moment.
func (p PollPolicy) DelayFor(attempt int) time.Duration {
	backoff := float64(p.BaseDelay)
	for i := 0; i < attempt; i++ {
		backoff *= p.Factor
	}
	j := rand.Float64
	if p.Jitter != nil {
		j = p.Jitter
	}
	d := time.Duration(backoff + (j()*0.2)*backoff)
	if d > p.MaxDelay {
		d = p.MaxDelay
	}
	return d
}

// RunPoller drives a submitted run to a terminal state.
type RunPoller struct {
	api    repository.AssistantAPI
	policy PollPolicy
	log    *slog.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewRunPoller(api repository.AssistantAPI, policy PollPolicy, log *slog.Logger) *RunPoller {
	return &RunPoller{
		api:    api,
		policy: policy,
		log:    log,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-timer.C:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
}

// Wait polls the run until it completes, fails, or the attempt ceiling is
// reached. A failed run is fatal to the calling operation and is not retried
// here; a ceiling overrun surfaces as RunTimeoutError rather than hanging.
func (p *RunPoller) Wait(ctx context.Context, run entity.RunHandle) (entity.RunHandle, error) {
	start := time.Now()
	current := run
	for attempt := 0; attempt < p.policy.MaxAttempts; attempt++ {
		switch current.Status {
		case entity.RunCompleted:
			p.log.Info("run completed", "run_id", current.ID, "polls", attempt)
			return current, nil
		case entity.RunFailed:
			reason := current.LastError
			if reason == "" {
				reason = "remote reported failure without detail"
			}
			return current, &entity.RunFailedError{RunID: current.ID, Reason: reason}
		}

		if err := p.sleep(ctx, p.policy.DelayFor(attempt)); err != nil {
			return current, err
		}

		next, err := p.api.GetRun(ctx, run.ThreadID, run.ID)
		if err != nil {
			return current, err
		}
		current = next
		p.log.Debug("polled run", "run_id", current.ID, "status", current.Status, "attempt", attempt+1)
	}

	if current.Status == entity.RunCompleted {
		return current, nil
	}
	if current.Status == entity.RunFailed {
		return current, &entity.RunFailedError{RunID: current.ID, Reason: current.LastError}
	}
	return current, &entity.RunTimeoutError{
		RunID:    run.ID,
		Attempts: p.policy.MaxAttempts,
		Elapsed:  time.Since(start),
	}
}
