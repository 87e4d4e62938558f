package actor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/convergectl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDelayBackoff(t *testing.T) {
	testlog.Start(t)
	cfg := PollConfig{Interval: 100 * time.Millisecond, MaxInterval: time.Second, Multiplier: 2}
	assert.Equal(t, 100*time.Millisecond, nextDelay(cfg, 1))
	assert.Equal(t, 200*time.Millisecond, nextDelay(cfg, 2))
	assert.Equal(t, 800*time.Millisecond, nextDelay(cfg, 4))
	assert.Equal(t, time.Second, nextDelay(cfg, 10), "capped at max interval")
}

func TestPollConfigDefaults(t *testing.T) {
	testlog.Start(t)
	cfg := PollConfig{}.WithDefaults()
	assert.Equal(t, time.Second, cfg.Interval)
	assert.Equal(t, time.Second, cfg.MaxInterval)
	assert.Equal(t, 1.0, cfg.Multiplier)
}

func TestPollRunsAtLeastOnce(t *testing.T) {
	testlog.Start(t)
	calls := 0
	attempts, err := Poll(context.Background(), fastPoll(), 0, func(context.Context) (bool, error) {
		calls++
		return true, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, 1, calls)
}

func TestPollTimeout(t *testing.T) {
	testlog.Start(t)
	start := time.Now()
	attempts, err := Poll(context.Background(), fastPoll(), 15*time.Millisecond, func(context.Context) (bool, error) {
		return false, nil
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Greater(t, attempts, 1)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestPollCutsOffCheckAtDeadline(t *testing.T) {
	testlog.Start(t)
	start := time.Now()
	attempts, err := Poll(context.Background(), fastPoll(), 30*time.Millisecond, func(ctx context.Context) (bool, error) {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(5 * time.Second):
			return true, nil
		}
	})
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestPollLateSuccessIsTimeout(t *testing.T) {
	testlog.Start(t)
	_, err := Poll(context.Background(), fastPoll(), 20*time.Millisecond, func(context.Context) (bool, error) {
		time.Sleep(40 * time.Millisecond)
		return true, nil
	})
	require.ErrorIs(t, err, ErrTimeout)
}

func TestPollParentCancelWinsOverTimeout(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := Poll(ctx, fastPoll(), time.Hour, func(ctx context.Context) (bool, error) {
		cancel()
		<-ctx.Done()
		return false, ctx.Err()
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestPollStopsOnCheckError(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("boom")
	attempts, err := Poll(context.Background(), fastPoll(), time.Second, func(context.Context) (bool, error) {
		return false, boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, attempts)
}

func TestPollHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cfg := PollConfig{Interval: time.Hour}
	calls := 0
	_, err := Poll(ctx, cfg, time.Hour, func(context.Context) (bool, error) {
		calls++
		cancel()
		return false, nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestSleepHonorsCancellation(t *testing.T) {
	testlog.Start(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Sleep(ctx, time.Hour), context.Canceled)
	assert.NoError(t, Sleep(context.Background(), time.Millisecond))
}

func TestTimeoutErrorMessage(t *testing.T) {
	testlog.Start(t)
	err := &TimeoutError{Actor: "client2", Waiting: "display :0", Timeout: time.Minute, Attempts: 60}
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, "actor client2: timed out after 1m0s (60 attempts) waiting for display :0", err.Error())
}
