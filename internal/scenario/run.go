package scenario

import (
	"time"

	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/artifact"
	"github.com/danmuck/convergectl/internal/recorder"
)

// Run is the state of one scenario execution. It is created by
// Driver.Run and owned by the driver goroutine; nothing in it outlives
// the run or is shared with another run.
type Run struct {
	ID        string
	Params    Params
	Actors    []actor.Actor
	Layout    artifact.Layout
	StartedAt time.Time

	recordings map[string]recorder.Handle
	collected  map[string]artifact.Collected
	documents  map[string]string
}

func newRun(id string, params Params, actors []actor.Actor, layout artifact.Layout, now time.Time) *Run {
	return &Run{
		ID:         id,
		Params:     params,
		Actors:     actors,
		Layout:     layout,
		StartedAt:  now,
		recordings: make(map[string]recorder.Handle, len(actors)),
		collected:  make(map[string]artifact.Collected, len(actors)),
		documents:  make(map[string]string, len(actors)),
	}
}

// Recording returns the handle captured when the actor's recording stopped.
func (r *Run) Recording(actorName string) (recorder.Handle, bool) {
	h, ok := r.recordings[actorName]
	return h, ok
}

// Collected returns collected artifacts in actor order.
func (r *Run) Collected() []artifact.Collected {
	out := make([]artifact.Collected, 0, len(r.collected))
	for _, a := range r.Actors {
		if c, ok := r.collected[a.Name()]; ok {
			out = append(out, c)
		}
	}
	return out
}

// Document returns the collected document text read back on the host.
func (r *Run) Document(actorName string) (string, bool) {
	text, ok := r.documents[actorName]
	return text, ok
}

func (r *Run) actorNames() []string {
	names := make([]string, 0, len(r.Actors))
	for _, a := range r.Actors {
		names = append(names, a.Name())
	}
	return names
}
