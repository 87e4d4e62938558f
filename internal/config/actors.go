package config

import (
	"errors"
	"fmt"

	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/shell"
)

// BuildActors constructs one actor per entry, in file order. The returned
// closer releases terminal PTYs; it is safe to call when err != nil.
func BuildActors(cfg Scenario) ([]actor.Actor, func() error, error) {
	var (
		actors  []actor.Actor
		closers []func() error
	)
	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	for _, entry := range cfg.Actors {
		a, closer, err := buildActor(entry, cfg.Params.User)
		if err != nil {
			_ = closeAll()
			return nil, func() error { return nil }, fmt.Errorf("actor %s: %w", entry.Name, err)
		}
		actors = append(actors, a)
		if closer != nil {
			closers = append(closers, closer)
		}
	}
	return actors, closeAll, nil
}

func buildActor(entry ActorConfig, user string) (actor.Actor, func() error, error) {
	poll := actor.PollConfig{Interval: entry.PollInterval}
	switch entry.Transport {
	case TransportTerminal:
		t, err := actor.NewTerminal(actor.TerminalConfig{
			Name:        entry.Name,
			User:        user,
			Shell:       entry.Shell,
			Env:         entry.Env,
			WaitTimeout: entry.WaitTimeout,
			Poll:        poll,
		})
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	case TransportLocal, TransportSSH:
		m, err := actor.NewMachine(actor.MachineConfig{
			Name:         entry.Name,
			Runner:       runnerFor(entry),
			User:         user,
			Display:      entry.Display,
			DisplayProbe: entry.DisplayProbe,
			WaitTimeout:  entry.WaitTimeout,
			Poll:         poll,
		})
		if err != nil {
			return nil, nil, err
		}
		return m, nil, nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported transport %q", ErrInvalidConfig, entry.Transport)
	}
}

func runnerFor(entry ActorConfig) shell.Runner {
	if entry.Transport == TransportLocal {
		return shell.LocalRunner{Shell: entry.Shell, Env: entry.Env}
	}
	return shell.SSHRunner{
		Host:                        entry.Host,
		Port:                        entry.Port,
		User:                        entry.SSHUser,
		KeyPath:                     entry.KeyPath,
		KnownHostsPath:              entry.KnownHostsPath,
		InsecureSkipHostKeyChecking: entry.InsecureHostKey,
		Timeout:                     entry.DialTimeout,
	}
}
