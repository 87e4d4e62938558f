package actor

import (
	"context"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/convergectl/internal/shell"
	"github.com/danmuck/convergectl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptRunner answers scripts by substring match and records every call.
type scriptRunner struct {
	mu      sync.Mutex
	scripts []string
	answer  func(script string) (shell.Result, error)
}

func (r *scriptRunner) Run(_ context.Context, script string) (shell.Result, error) {
	r.mu.Lock()
	r.scripts = append(r.scripts, script)
	r.mu.Unlock()
	if r.answer == nil {
		return shell.Result{}, nil
	}
	return r.answer(script)
}

func (r *scriptRunner) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.scripts...)
}

func fastPoll() PollConfig {
	return PollConfig{Interval: time.Millisecond, MaxInterval: time.Millisecond}
}

func newTestMachine(t *testing.T, r *scriptRunner) *Machine {
	t.Helper()
	m, err := NewMachine(MachineConfig{
		Name:        "client1",
		Runner:      r,
		User:        "alice",
		WaitTimeout: 50 * time.Millisecond,
		Poll:        fastPoll(),
	})
	require.NoError(t, err)
	return m
}

func TestNewMachineValidation(t *testing.T) {
	testlog.Start(t)
	_, err := NewMachine(MachineConfig{Name: "client1"})
	assert.Error(t, err, "runner is required")

	for _, name := range []string{"", " client1", "a/b", "..", `a\b`} {
		_, err := NewMachine(MachineConfig{Name: name, Runner: &scriptRunner{}})
		assert.ErrorIs(t, err, ErrInvalidName, "name %q", name)
	}
}

func TestMachineRunDetachedRunsAsUser(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{}
	m := newTestMachine(t, r)

	require.NoError(t, m.RunDetached(context.Background(), "obs"))
	calls := r.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, `nohup su alice -c 'DISPLAY='"'"':0'"'"' obs' >/dev/null 2>&1 &`, calls[0])
	testlog.Logf("machine/detached: %s", calls[0])
}

func TestMachineRunDetachedFailure(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		return shell.Result{ExitCode: 1, Stderr: []byte("su: user alice does not exist")}, nil
	}}
	m := newTestMachine(t, r)
	err := m.RunDetached(context.Background(), "obs")
	require.ErrorIs(t, err, ErrCommandFailed)
	assert.Contains(t, err.Error(), "does not exist")
}

func TestMachineWaitUntilSucceedsAfterRetries(t *testing.T) {
	testlog.Start(t)
	attempts := 0
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		attempts++
		if attempts < 3 {
			return shell.Result{ExitCode: 1}, nil
		}
		return shell.Result{}, nil
	}}
	m := newTestMachine(t, r)
	require.NoError(t, m.WaitUntil(context.Background(), "pgrep hx", time.Second))
	assert.Equal(t, 3, attempts)
	for _, script := range r.calls() {
		assert.Equal(t, "pgrep hx", script, "wait_until runs the predicate verbatim")
	}
}

func TestMachineWaitUntilTimeout(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		return shell.Result{ExitCode: 1}, nil
	}}
	m := newTestMachine(t, r)

	err := m.WaitUntil(context.Background(), "pgrep hx", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrTimeout)
	var te *TimeoutError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "client1", te.Actor)
	assert.Equal(t, "pgrep hx", te.Waiting)
	assert.Equal(t, 20*time.Millisecond, te.Timeout)
	assert.GreaterOrEqual(t, te.Attempts, 2)
	testlog.Logf("machine/wait-until: %v", err)
}

func TestMachineWaitUntilTransportErrorPropagates(t *testing.T) {
	testlog.Start(t)
	boom := errors.New("ssh: connection refused")
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		return shell.Result{}, boom
	}}
	m := newTestMachine(t, r)
	err := m.WaitUntil(context.Background(), "true", time.Second)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrTimeout)
}

func TestMachineWaitForDisplayUsesProbe(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{}
	m := newTestMachine(t, r)
	require.NoError(t, m.WaitForDisplay(context.Background()))
	calls := r.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0], "xwininfo -root")
	assert.True(t, strings.HasPrefix(calls[0], "su alice -c "))
}

func TestMachineSendTextPacing(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{}
	m := newTestMachine(t, r)

	require.NoError(t, m.SendText(context.Background(), "oHi", 0))
	require.Len(t, r.calls(), 1, "no delay sends the whole string at once")
	assert.Contains(t, r.calls()[0], "oHi")

	r2 := &scriptRunner{}
	m2 := newTestMachine(t, r2)
	start := time.Now()
	require.NoError(t, m2.SendText(context.Background(), "oHi", 2*time.Millisecond))
	assert.Len(t, r2.calls(), 3, "paced typing sends one rune per call")
	assert.GreaterOrEqual(t, time.Since(start), 6*time.Millisecond)
}

func TestMachineSendKey(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{}
	m := newTestMachine(t, r)

	require.NoError(t, m.SendKey(context.Background(), "esc"))
	assert.Contains(t, r.calls()[0], "Escape")

	err := m.SendKey(context.Background(), "hyper-z")
	assert.ErrorIs(t, err, ErrUnknownKey)
	assert.Len(t, r.calls(), 1, "unknown keys never reach the actor")
}

func TestMachineFetchFileDecodes(t *testing.T) {
	testlog.Start(t)
	content := []byte("Hello! My name is client1\n")
	encoded := base64.StdEncoding.EncodeToString(content)
	wrapped := encoded[:10] + "\n" + encoded[10:] + "\n"
	r := &scriptRunner{answer: func(script string) (shell.Result, error) {
		if strings.HasPrefix(script, "base64 ") {
			return shell.Result{Stdout: []byte(wrapped)}, nil
		}
		return shell.Result{ExitCode: 1}, nil
	}}
	m := newTestMachine(t, r)

	dir := filepath.Join(t.TempDir(), "client1")
	dest, err := m.FetchFile(context.Background(), "/home/alice/test.md", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "test.md"), dest)
	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestMachineFetchFileMissing(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		return shell.Result{ExitCode: 1, Stderr: []byte("base64: /nope: No such file or directory")}, nil
	}}
	m := newTestMachine(t, r)
	_, err := m.FetchFile(context.Background(), "/nope", t.TempDir())
	require.ErrorIs(t, err, ErrCommandFailed)
}

func TestMachineExecuteReturnsStatusAndStdout(t *testing.T) {
	testlog.Start(t)
	r := &scriptRunner{answer: func(string) (shell.Result, error) {
		return shell.Result{ExitCode: 0, Stdout: []byte(`Result: "/home/alice/rec.mkv"`)}, nil
	}}
	m := newTestMachine(t, r)
	status, out, err := m.Execute(context.Background(), "obs-cmd recording stop")
	require.NoError(t, err)
	assert.Equal(t, 0, status)
	assert.Equal(t, `Result: "/home/alice/rec.mkv"`, out)
}
