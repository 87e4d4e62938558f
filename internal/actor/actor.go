package actor

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrTimeout       = errors.New("actor: timeout")
	ErrUnknownKey    = errors.New("actor: unknown key")
	ErrCommandFailed = errors.New("actor: command failed")
	ErrNoFocus       = errors.New("actor: no application holds input focus")
	ErrInvalidName   = errors.New("actor: invalid name")
)

// Actor is one scenario participant. The driver only calls these
// capabilities and never inspects the backend behind them.
type Actor interface {
	Name() string

	// WaitForDisplay blocks until the graphical session accepts input.
	WaitForDisplay(ctx context.Context) error
	// RunDetached starts command as the actor's unprivileged user and returns
	// without waiting for it.
	RunDetached(ctx context.Context, command string) error
	// Sleep pauses on the host side.
	Sleep(ctx context.Context, d time.Duration) error
	// WaitUntil reruns command until it exits 0. A zero timeout uses the
	// actor default. The deadline yields a *TimeoutError.
	WaitUntil(ctx context.Context, command string, timeout time.Duration) error
	// SendText types text into the focused application, pausing delay
	// between characters when delay > 0.
	SendText(ctx context.Context, text string, delay time.Duration) error
	SendKey(ctx context.Context, key string) error
	WaitForFile(ctx context.Context, path string) error
	// FetchFile copies remotePath into localDir and returns the host path.
	FetchFile(ctx context.Context, remotePath, localDir string) (string, error)
	// Execute runs command once and returns its exit status and stdout.
	Execute(ctx context.Context, command string) (int, string, error)
}

// TimeoutError reports a wait that ran past its budget.
type TimeoutError struct {
	Actor    string
	Waiting  string
	Timeout  time.Duration
	Attempts int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("actor %s: timed out after %s (%d attempts) waiting for %s",
		e.Actor, e.Timeout, e.Attempts, e.Waiting)
}

func (e *TimeoutError) Is(target error) bool {
	return target == ErrTimeout
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
