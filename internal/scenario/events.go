package scenario

import (
	"time"

	"github.com/rs/zerolog"
)

type EventKind string

const (
	EventRunStarted    EventKind = "run_started"
	EventPhaseStarted  EventKind = "phase_started"
	EventStepFinished  EventKind = "step_finished"
	EventPhaseFinished EventKind = "phase_finished"
	EventRunFinished   EventKind = "run_finished"
)

// Event is one progress notification from a scenario run.
type Event struct {
	Kind       EventKind
	RunID      string
	Phase      string
	PhaseIndex int
	Actor      string
	Actors     []string
	Duration   time.Duration
	Err        error
}

// Observer receives run progress. Observe is called from the driver
// goroutine and must not block.
type Observer interface {
	Observe(Event)
}

type ObserverFunc func(Event)

func (f ObserverFunc) Observe(ev Event) {
	f(ev)
}

// Observers fans one event out to every non-nil observer.
type Observers []Observer

func (o Observers) Observe(ev Event) {
	for _, obs := range o {
		if obs != nil {
			obs.Observe(ev)
		}
	}
}

// LogObserver writes run progress as structured log lines.
type LogObserver struct {
	Logger zerolog.Logger
}

func (l LogObserver) Observe(ev Event) {
	var e *zerolog.Event
	switch {
	case ev.Err != nil:
		e = l.Logger.Error().Err(ev.Err)
	case ev.Kind == EventStepFinished:
		e = l.Logger.Debug()
	default:
		e = l.Logger.Info()
	}
	e = e.Str("run", ev.RunID)
	if ev.Phase != "" {
		e = e.Str("phase", ev.Phase).Int("phase_index", ev.PhaseIndex)
	}
	if ev.Actor != "" {
		e = e.Str("actor", ev.Actor)
	}
	if len(ev.Actors) > 0 {
		e = e.Strs("actors", ev.Actors)
	}
	if ev.Duration > 0 {
		e = e.Dur("duration", ev.Duration)
	}
	e.Msg(string(ev.Kind))
}
