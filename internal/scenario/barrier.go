package scenario

import (
	"context"
	"fmt"
	"time"

	"github.com/danmuck/convergectl/internal/actor"
)

// StepFunc is one phase applied to one actor.
type StepFunc func(ctx context.Context, run *Run, a actor.Actor) error

// Phase is one barrier-synchronized step of the scenario. Step runs for
// every actor in order; After, when set, runs once after all of them.
type Phase struct {
	Name  string
	Step  StepFunc
	After func(ctx context.Context, run *Run) error
}

// PhaseError attributes a failure to the phase and actor it happened in.
// Actor is empty for failures in a phase's After hook.
type PhaseError struct {
	Phase string
	Actor string
	Err   error
}

func (e *PhaseError) Error() string {
	if e.Actor == "" {
		return fmt.Sprintf("phase %s: %v", e.Phase, e.Err)
	}
	return fmt.Sprintf("phase %s: actor %s: %v", e.Phase, e.Actor, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// Barrier runs phases over a run's actors. Phase K finishes for every
// actor before Run returns, so the next call starts phase K+1 only after
// the whole set passed phase K. Actors are visited sequentially and the
// first failure stops the phase.
type Barrier struct {
	Observer Observer
}

func (b Barrier) Run(ctx context.Context, run *Run, index int, phase Phase) error {
	start := time.Now()
	b.emit(Event{Kind: EventPhaseStarted, RunID: run.ID, Phase: phase.Name, PhaseIndex: index})

	err := b.steps(ctx, run, index, phase)
	if err == nil && phase.After != nil {
		if afterErr := phase.After(ctx, run); afterErr != nil {
			err = &PhaseError{Phase: phase.Name, Err: afterErr}
		}
	}

	b.emit(Event{
		Kind:       EventPhaseFinished,
		RunID:      run.ID,
		Phase:      phase.Name,
		PhaseIndex: index,
		Duration:   time.Since(start),
		Err:        err,
	})
	return err
}

func (b Barrier) steps(ctx context.Context, run *Run, index int, phase Phase) error {
	if phase.Step == nil {
		return nil
	}
	for _, a := range run.Actors {
		if err := ctx.Err(); err != nil {
			return &PhaseError{Phase: phase.Name, Actor: a.Name(), Err: err}
		}
		start := time.Now()
		err := phase.Step(ctx, run, a)
		if err != nil {
			err = &PhaseError{Phase: phase.Name, Actor: a.Name(), Err: err}
		}
		b.emit(Event{
			Kind:       EventStepFinished,
			RunID:      run.ID,
			Phase:      phase.Name,
			PhaseIndex: index,
			Actor:      a.Name(),
			Duration:   time.Since(start),
			Err:        err,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (b Barrier) emit(ev Event) {
	if b.Observer != nil {
		b.Observer.Observe(ev)
	}
}
