package scenario

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/artifact"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNoActors       = errors.New("scenario: no actors")
	ErrDuplicateActor = errors.New("scenario: duplicate actor name")
)

// Driver runs the convergence scenario over an ordered actor set.
type Driver struct {
	Params   Params
	Observer Observer
	Logger   zerolog.Logger
	// RunID, when set, names the run instead of a fresh UUID.
	RunID string

	now func() time.Time
}

func NewDriver(params Params, observers ...Observer) *Driver {
	return &Driver{
		Params:   params,
		Observer: Observers(observers),
		Logger:   log.Logger,
		now:      time.Now,
	}
}

// Run drives every actor through Phases with a barrier between phases.
// It returns a *PhaseError wrapping the first failure; a failed
// convergence check unwraps to *AssertionError. The returned Run is
// non-nil whenever the inputs were valid, including on failure.
func (d *Driver) Run(ctx context.Context, actors []actor.Actor) (*Run, error) {
	if err := d.Params.Validate(); err != nil {
		return nil, err
	}
	if err := validateActors(actors); err != nil {
		return nil, err
	}

	id := d.RunID
	if id == "" {
		id = uuid.NewString()
	}
	now := d.now
	if now == nil {
		now = time.Now
	}
	run := newRun(id, d.Params, actors, artifact.Layout{Root: d.Params.OutputDir}, now())
	obs := Observers{LogObserver{Logger: d.Logger}, d.Observer}
	barrier := Barrier{Observer: obs}

	obs.Observe(Event{Kind: EventRunStarted, RunID: run.ID, Actors: run.actorNames()})

	var runErr error
	for i, phase := range Phases() {
		if runErr = barrier.Run(ctx, run, i, phase); runErr != nil {
			break
		}
	}

	if len(run.collected) == len(actors) {
		if _, err := artifact.WriteManifest(run.Layout, d.manifest(run, now(), runErr)); err != nil {
			d.Logger.Warn().Err(err).Str("run", run.ID).Msg("manifest_write_failed")
		}
	}

	obs.Observe(Event{
		Kind:     EventRunFinished,
		RunID:    run.ID,
		Actors:   run.actorNames(),
		Duration: now().Sub(run.StartedAt),
		Err:      runErr,
	})
	return run, runErr
}

func (d *Driver) manifest(run *Run, finished time.Time, runErr error) artifact.Manifest {
	m := artifact.Manifest{
		RunID:        run.ID,
		StartedAt:    run.StartedAt,
		FinishedAt:   finished,
		DocumentPath: run.Params.DocumentPath,
		TypingDelay:  run.Params.TypingDelay.String(),
		Converged:    runErr == nil,
		Actors:       run.Collected(),
	}
	if runErr != nil {
		m.Failure = runErr.Error()
	}
	return m
}

func validateActors(actors []actor.Actor) error {
	if len(actors) == 0 {
		return ErrNoActors
	}
	seen := make(map[string]struct{}, len(actors))
	for i, a := range actors {
		if a == nil {
			return fmt.Errorf("scenario: actor[%d] is nil", i)
		}
		name := a.Name()
		if err := actor.ValidateName(name); err != nil {
			return fmt.Errorf("scenario: actor[%d]: %w", i, err)
		}
		if _, dup := seen[name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateActor, name)
		}
		seen[name] = struct{}{}
	}
	return nil
}
