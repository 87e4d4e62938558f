package actor

import (
	"context"
	"math"
	"time"
)

// PollConfig shapes the retry cadence of readiness waits.
type PollConfig struct {
	Interval    time.Duration
	MaxInterval time.Duration
	Multiplier  float64
}

func DefaultPollConfig() PollConfig {
	return PollConfig{
		Interval:    time.Second,
		MaxInterval: time.Second,
		Multiplier:  1.0,
	}
}

// WithDefaults fills zero fields from DefaultPollConfig.
func (c PollConfig) WithDefaults() PollConfig {
	def := DefaultPollConfig()
	if c.Interval <= 0 {
		c.Interval = def.Interval
	}
	if c.MaxInterval < c.Interval {
		c.MaxInterval = c.Interval
	}
	if c.Multiplier < 1.0 {
		c.Multiplier = def.Multiplier
	}
	return c
}

// nextDelay returns the wait before attempt N+1 (attempt is 1-based).
func nextDelay(cfg PollConfig, attempt int) time.Duration {
	if attempt <= 1 {
		return cfg.Interval
	}
	delay := float64(cfg.Interval) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Poll calls check until it reports done, returns an error, or timeout
// elapses. check receives a context bounded by the deadline, so a hung
// check is cut off; a check that finishes after the deadline is a
// timeout even when it reports done. It returns the number of attempts
// made and ErrTimeout on deadline. check always runs at least once; a
// timeout <= 0 leaves only ctx as the bound.
func Poll(ctx context.Context, cfg PollConfig, timeout time.Duration, check func(context.Context) (bool, error)) (int, error) {
	cfg = cfg.WithDefaults()
	pollCtx, cancel := ctx, context.CancelFunc(func() {})
	if timeout > 0 {
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	for attempt := 1; ; attempt++ {
		done, err := check(pollCtx)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return attempt, ctxErr
		}
		if pollCtx.Err() != nil {
			return attempt, ErrTimeout
		}
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}

		if err := Sleep(pollCtx, nextDelay(cfg, attempt)); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return attempt, ctxErr
			}
			return attempt, ErrTimeout
		}
	}
}
