package actor

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/convergectl/internal/shell"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultDisplay      = ":0"
	DefaultDisplayProbe = "xwininfo -root"
	DefaultWaitTimeout  = 900 * time.Second
)

// MachineConfig describes one actor reached through a shell transport.
type MachineConfig struct {
	Name   string
	Runner shell.Runner
	// User is the unprivileged identity for detached commands and input.
	User    string
	Display string
	// DisplayProbe exits 0 once the X session accepts clients.
	DisplayProbe string
	WaitTimeout  time.Duration
	Poll         PollConfig
}

func (c MachineConfig) withDefaults() MachineConfig {
	if strings.TrimSpace(c.Display) == "" {
		c.Display = DefaultDisplay
	}
	if strings.TrimSpace(c.DisplayProbe) == "" {
		c.DisplayProbe = DefaultDisplayProbe
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = DefaultWaitTimeout
	}
	c.Poll = c.Poll.WithDefaults()
	return c
}

// Machine drives a VM (or any host) by running scripts through a
// shell.Runner. Input goes through xdotool on the actor's display.
type Machine struct {
	cfg    MachineConfig
	logger zerolog.Logger
}

var _ Actor = (*Machine)(nil)

func NewMachine(cfg MachineConfig) (*Machine, error) {
	if err := ValidateName(cfg.Name); err != nil {
		return nil, err
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("actor %s: runner is required", cfg.Name)
	}
	cfg = cfg.withDefaults()
	return &Machine{
		cfg:    cfg,
		logger: log.With().Str("actor", cfg.Name).Logger(),
	}, nil
}

// ValidateName rejects names that cannot be used as an output directory.
func ValidateName(name string) error {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return fmt.Errorf("%w: empty", ErrInvalidName)
	case trimmed != name:
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidName, name)
	case name == "." || name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}

func (m *Machine) Name() string {
	return m.cfg.Name
}

func (m *Machine) WaitForDisplay(ctx context.Context) error {
	probe := m.userScript(m.cfg.DisplayProbe)
	return m.poll(ctx, "display "+m.cfg.Display, m.cfg.WaitTimeout, probe)
}

func (m *Machine) RunDetached(ctx context.Context, command string) error {
	script := shell.Detach(m.userScript(command))
	res, err := m.cfg.Runner.Run(ctx, script)
	if err != nil {
		return fmt.Errorf("actor %s: run detached: %w", m.cfg.Name, err)
	}
	if !res.OK() {
		return m.commandFailed(command, res)
	}
	m.logger.Debug().Str("command", command).Msg("detached")
	return nil
}

func (m *Machine) Sleep(ctx context.Context, d time.Duration) error {
	return Sleep(ctx, d)
}

func (m *Machine) WaitUntil(ctx context.Context, command string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = m.cfg.WaitTimeout
	}
	return m.poll(ctx, command, timeout, command)
}

func (m *Machine) SendText(ctx context.Context, text string, delay time.Duration) error {
	if delay <= 0 {
		return m.xdotool(ctx, "type", "--delay", "0", "--", text)
	}
	for _, r := range text {
		if err := m.xdotool(ctx, "type", "--delay", "0", "--", string(r)); err != nil {
			return err
		}
		if err := Sleep(ctx, delay); err != nil {
			return err
		}
	}
	return nil
}

func (m *Machine) SendKey(ctx context.Context, key string) error {
	k, err := LookupKey(key)
	if err != nil {
		return err
	}
	return m.xdotool(ctx, "key", "--", k.Keysym)
}

func (m *Machine) WaitForFile(ctx context.Context, path string) error {
	return m.poll(ctx, "file "+path, m.cfg.WaitTimeout, "test -e "+shell.Quote(path))
}

// FetchFile streams remotePath into localDir. Runners implementing
// shell.Fetcher copy directly; others fall back to base64 over Run.
func (m *Machine) FetchFile(ctx context.Context, remotePath, localDir string) (string, error) {
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(localDir, filepath.Base(remotePath))
	f, err := os.CreateTemp(localDir, "."+filepath.Base(remotePath)+".*.part")
	if err != nil {
		return "", err
	}
	tmp := f.Name()

	err = m.fetchInto(ctx, remotePath, f)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmp, 0o644)
	}
	if err == nil {
		err = os.Rename(tmp, dest)
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", err
	}
	return dest, nil
}

func (m *Machine) fetchInto(ctx context.Context, remotePath string, w io.Writer) error {
	if fetcher, ok := m.cfg.Runner.(shell.Fetcher); ok {
		n, err := fetcher.Fetch(ctx, remotePath, w)
		if err != nil {
			return fmt.Errorf("actor %s: fetch %s: %w", m.cfg.Name, remotePath, err)
		}
		m.logger.Debug().Str("path", remotePath).Int64("bytes", n).Msg("fetched")
		return nil
	}

	res, err := m.cfg.Runner.Run(ctx, "base64 "+shell.Quote(remotePath))
	if err != nil {
		return fmt.Errorf("actor %s: fetch %s: %w", m.cfg.Name, remotePath, err)
	}
	if !res.OK() {
		return m.commandFailed("fetch "+remotePath, res)
	}
	dec := base64.NewDecoder(base64.StdEncoding, bytes.NewReader(res.Stdout))
	if _, err := io.Copy(w, dec); err != nil {
		return fmt.Errorf("actor %s: fetch %s: decode: %w", m.cfg.Name, remotePath, err)
	}
	return nil
}

func (m *Machine) Execute(ctx context.Context, command string) (int, string, error) {
	res, err := m.cfg.Runner.Run(ctx, command)
	if err != nil {
		return 0, "", fmt.Errorf("actor %s: execute: %w", m.cfg.Name, err)
	}
	m.logger.Debug().Str("command", command).Int("status", res.ExitCode).Msg("executed")
	return res.ExitCode, string(res.Stdout), nil
}

func (m *Machine) xdotool(ctx context.Context, args ...string) error {
	command := shell.Join("xdotool", args...)
	res, err := m.cfg.Runner.Run(ctx, m.userScript(command))
	if err != nil {
		return fmt.Errorf("actor %s: xdotool %s: %w", m.cfg.Name, args[0], err)
	}
	if !res.OK() {
		return m.commandFailed(command, res)
	}
	return nil
}

// userScript runs script as the configured user against the actor display.
func (m *Machine) userScript(script string) string {
	return shell.AsUser(m.cfg.User, shell.WithEnv("DISPLAY", m.cfg.Display, script))
}

func (m *Machine) poll(ctx context.Context, waiting string, timeout time.Duration, script string) error {
	start := time.Now()
	attempts, err := Poll(ctx, m.cfg.Poll, timeout, func(ctx context.Context) (bool, error) {
		res, err := m.cfg.Runner.Run(ctx, script)
		if err != nil {
			return false, fmt.Errorf("actor %s: wait for %s: %w", m.cfg.Name, waiting, err)
		}
		return res.OK(), nil
	})
	if err == ErrTimeout {
		return &TimeoutError{Actor: m.cfg.Name, Waiting: waiting, Timeout: timeout, Attempts: attempts}
	}
	if err != nil {
		return err
	}
	m.logger.Debug().
		Str("waiting", waiting).
		Int("attempts", attempts).
		Dur("duration", time.Since(start)).
		Msg("ready")
	return nil
}

func (m *Machine) commandFailed(command string, res shell.Result) error {
	return fmt.Errorf("%w: actor %s: %q exited %d: %s",
		ErrCommandFailed, m.cfg.Name, command, res.ExitCode, strings.TrimSpace(string(res.Stderr)))
}
