package actor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
	"github.com/danmuck/convergectl/internal/shell"
)

// TerminalConfig describes a headless local actor.
type TerminalConfig struct {
	Name string
	// User, when set, wraps commands in su and requires root.
	User        string
	Shell       string
	Env         []string
	Rows        uint16
	Cols        uint16
	WaitTimeout time.Duration
	Poll        PollConfig
}

// Terminal is an actor without a display: detached commands run inside
// their own PTY and the most recently launched one receives typed input.
// Waits, file checks, fetches and Execute run through a local shell.
type Terminal struct {
	*Machine

	user  string
	shell string
	env   []string
	size  pty.Winsize

	mu    sync.Mutex
	procs []*ptyProc
	focus *ptyProc
}

type ptyProc struct {
	command string
	cmd     *exec.Cmd
	tty     *os.File
	done    chan struct{}
}

var _ Actor = (*Terminal)(nil)

func NewTerminal(cfg TerminalConfig) (*Terminal, error) {
	sh := cfg.Shell
	if sh == "" {
		sh = "/bin/sh"
	}
	runner := shell.LocalRunner{Shell: sh, Env: cfg.Env}
	m, err := NewMachine(MachineConfig{
		Name:        cfg.Name,
		Runner:      runner,
		WaitTimeout: cfg.WaitTimeout,
		Poll:        cfg.Poll,
	})
	if err != nil {
		return nil, err
	}
	rows, cols := cfg.Rows, cfg.Cols
	if rows == 0 {
		rows = 40
	}
	if cols == 0 {
		cols = 120
	}
	return &Terminal{
		Machine: m,
		user:    strings.TrimSpace(cfg.User),
		shell:   sh,
		env:     cfg.Env,
		size:    pty.Winsize{Rows: rows, Cols: cols},
	}, nil
}

// WaitForDisplay succeeds immediately; a terminal actor has no display server.
func (t *Terminal) WaitForDisplay(ctx context.Context) error {
	t.logger.Debug().Msg("headless display ready")
	return ctx.Err()
}

func (t *Terminal) RunDetached(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cmd := exec.Command(t.shell, "-c", shell.AsUser(t.user, command))
	cmd.Env = append(os.Environ(), "TERM=xterm-256color")
	cmd.Env = append(cmd.Env, t.env...)

	tty, err := pty.StartWithSize(cmd, &t.size)
	if err != nil {
		return fmt.Errorf("actor %s: start %q: %w", t.Name(), command, err)
	}
	proc := &ptyProc{command: command, cmd: cmd, tty: tty, done: make(chan struct{})}
	go func() {
		_, _ = io.Copy(io.Discard, tty)
	}()
	go func() {
		_ = cmd.Wait()
		close(proc.done)
	}()

	t.mu.Lock()
	t.procs = append(t.procs, proc)
	t.focus = proc
	t.mu.Unlock()

	t.logger.Debug().Str("command", command).Int("pid", cmd.Process.Pid).Msg("detached in pty")
	return nil
}

func (t *Terminal) SendText(ctx context.Context, text string, delay time.Duration) error {
	text = strings.ReplaceAll(text, "\n", "\r")
	if delay <= 0 {
		return t.write(ctx, []byte(text))
	}
	for _, r := range text {
		if err := t.write(ctx, []byte(string(r))); err != nil {
			return err
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terminal) SendKey(ctx context.Context, key string) error {
	k, err := LookupKey(key)
	if err != nil {
		return err
	}
	return t.write(ctx, k.Bytes)
}

// Close kills every process this actor launched.
func (t *Terminal) Close() error {
	t.mu.Lock()
	procs := t.procs
	t.procs = nil
	t.focus = nil
	t.mu.Unlock()

	for _, proc := range procs {
		select {
		case <-proc.done:
		default:
			_ = proc.cmd.Process.Kill()
			<-proc.done
		}
		_ = proc.tty.Close()
	}
	return nil
}

func (t *Terminal) write(ctx context.Context, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	t.mu.Lock()
	proc := t.focus
	t.mu.Unlock()
	if proc == nil {
		return fmt.Errorf("%w: actor %s", ErrNoFocus, t.Name())
	}
	if _, err := proc.tty.Write(data); err != nil {
		return fmt.Errorf("actor %s: write to %q: %w", t.Name(), proc.command, err)
	}
	return nil
}
