package scenario

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/actor/actortest"
	"github.com/danmuck/convergectl/internal/artifact"
	"github.com/danmuck/convergectl/internal/recorder"
	"github.com/danmuck/convergectl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// normalizingEditor saves the same document whatever name was typed.
func normalizingEditor(_ string, typed string) string {
	if i := strings.LastIndex(typed, " "); i >= 0 {
		typed = typed[:i]
	}
	return strings.TrimPrefix(typed, "o") + "\n"
}

func testParams(t *testing.T) Params {
	t.Helper()
	p := DefaultParams()
	p.OutputDir = t.TempDir()
	return p
}

func newFakes(journal *actortest.Journal, p Params, editor actortest.EditorFunc, names ...string) ([]actor.Actor, []*actortest.Fake) {
	var actors []actor.Actor
	var fakes []*actortest.Fake
	for _, name := range names {
		f := actortest.New(actortest.Config{
			Name:        name,
			Journal:     journal,
			DocPath:     p.DocumentPath,
			SaveCommand: p.SaveCommand,
			Editor:      editor,
		})
		actors = append(actors, f)
		fakes = append(fakes, f)
	}
	return actors, fakes
}

func TestDriverConvergesAndCollectsArtifacts(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	actors, _ := newFakes(journal, p, normalizingEditor, "client1", "client2")

	run, err := NewDriver(p).Run(context.Background(), actors)
	require.NoError(t, err)
	require.NotNil(t, run)

	for _, name := range []string{"client1", "client2"} {
		doc, err := os.ReadFile(filepath.Join(p.OutputDir, name, "test.md"))
		require.NoError(t, err)
		assert.NotEmpty(t, doc)
		rec, err := os.ReadFile(filepath.Join(p.OutputDir, name, name+"-recording.mkv"))
		require.NoError(t, err)
		assert.NotEmpty(t, rec)
	}
	d1, _ := run.Document("client1")
	d2, _ := run.Document("client2")
	assert.Equal(t, "Hello! My name is\n", d1)
	assert.Equal(t, d1, d2)

	m, err := artifact.ReadManifest(filepath.Join(p.OutputDir, artifact.ManifestName))
	require.NoError(t, err)
	assert.True(t, m.Converged)
	assert.Equal(t, run.ID, m.RunID)
	assert.Equal(t, "100ms", m.TypingDelay)
	require.Len(t, m.Actors, 2)
	assert.Equal(t, m.Actors[0].DocumentDigest, m.Actors[1].DocumentDigest)
	testlog.Logf("scenario/converge: run=%s", run.ID)
}

func TestDriverLiteralEditorFailsWithBothContents(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	actors, _ := newFakes(&actortest.Journal{}, p, actortest.LiteralEditor, "client1", "client2")

	run, err := NewDriver(p).Run(context.Background(), actors)
	require.Error(t, err)

	var assertErr *AssertionError
	require.True(t, errors.As(err, &assertErr))
	assert.Equal(t, []string{"client2"}, assertErr.Divergent())
	msg := err.Error()
	assert.Contains(t, msg, "phase verify")
	assert.Contains(t, msg, `client1: "Hello! My name is client1\n"`)
	assert.Contains(t, msg, `client2: "Hello! My name is client2\n"`)

	doc1, err := os.ReadFile(filepath.Join(p.OutputDir, "client1", "test.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc1), "Hello! My name is client1")
	doc2, err := os.ReadFile(filepath.Join(p.OutputDir, "client2", "test.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc2), "Hello! My name is client2")

	m, err := artifact.ReadManifest(run.Layout.ManifestPath())
	require.NoError(t, err)
	assert.False(t, m.Converged)
	assert.Contains(t, m.Failure, "clients got a different text file")
}

func TestDriverBarrierOrdersPhasesAcrossActors(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	actors, _ := newFakes(journal, p, normalizingEditor, "client1", "client2", "client3")

	_, err := NewDriver(p).Run(context.Background(), actors)
	require.NoError(t, err)

	assert.Equal(t, []string{
		"client1:wait_for_display", "client2:wait_for_display", "client3:wait_for_display",
		"client1:run_detached", "client2:run_detached", "client3:run_detached",
		"client1:wait_until", "client2:wait_until", "client3:wait_until",
		"client1:run_detached", "client2:run_detached", "client3:run_detached",
		"client1:wait_until", "client2:wait_until", "client3:wait_until",
	}, journal.Ops(actortest.OpWaitForDisplay, actortest.OpRunDetached, actortest.OpWaitUntil))

	// Every call of phase K precedes every call of phase K+1: the actor
	// sequence of the full journal is a repetition of client1..client3 runs.
	calls := journal.Calls()
	lastDisplay, firstDetach := -1, len(calls)
	for i, c := range calls {
		if c.Op == actortest.OpWaitForDisplay {
			lastDisplay = i
		}
		if c.Op == actortest.OpRunDetached && i < firstDetach {
			firstDetach = i
		}
	}
	assert.Less(t, lastDisplay, firstDetach)
}

func TestDriverAbortsBeforeRecorderWhenDisplayNeverReady(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	client1 := actortest.New(actortest.Config{Name: "client1", Journal: journal, DocPath: p.DocumentPath})
	client2 := actortest.New(actortest.Config{
		Name:    "client2",
		Journal: journal,
		DocPath: p.DocumentPath,
		Errors: map[string]error{
			actortest.OpWaitForDisplay: &actor.TimeoutError{Actor: "client2", Waiting: "display :0", Timeout: time.Second},
		},
	})

	run, err := NewDriver(p).Run(context.Background(), []actor.Actor{client1, client2})
	require.ErrorIs(t, err, actor.ErrTimeout)
	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, PhaseBootSync, phaseErr.Phase)
	assert.Equal(t, "client2", phaseErr.Actor)

	assert.Equal(t, []string{"client1:wait_for_display", "client2:wait_for_display"}, journal.Ops())
	_, statErr := os.Stat(run.Layout.ManifestPath())
	assert.True(t, os.IsNotExist(statErr), "no manifest without collected artifacts")
}

func TestDriverTypingDelayDoesNotChangeContent(t *testing.T) {
	testlog.Start(t)
	var docs []string
	for _, delay := range []time.Duration{100 * time.Millisecond, 300 * time.Millisecond} {
		p := testParams(t)
		p.TypingDelay = delay
		actors, fakes := newFakes(&actortest.Journal{}, p, normalizingEditor, "client1", "client2")

		run, err := NewDriver(p).Run(context.Background(), actors)
		require.NoError(t, err)
		doc, _ := run.Document("client1")
		docs = append(docs, doc)
		assert.Equal(t, []time.Duration{delay, 0}, fakes[0].TypingDelays(),
			"typed line is paced, save command is not")
	}
	assert.Equal(t, docs[0], docs[1])
}

func TestDriverSingleActor(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	actors, _ := newFakes(&actortest.Journal{}, p, actortest.LiteralEditor, "client1")
	run, err := NewDriver(p).Run(context.Background(), actors)
	require.NoError(t, err)
	require.Len(t, run.Collected(), 1)
	assert.Positive(t, run.Collected()[0].RecordingSize)
}

func TestDriverUsesPhaseTimingParams(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	p.RecorderWarmup = 7 * time.Second
	p.EditorSettle = 2 * time.Second
	p.InputSettle = 4 * time.Second
	p.SaveSettle = 1500 * time.Millisecond
	actors, fakes := newFakes(&actortest.Journal{}, p, normalizingEditor, "client1")

	_, err := NewDriver(p).Run(context.Background(), actors)
	require.NoError(t, err)
	assert.Equal(t, []time.Duration{7 * time.Second, 2 * time.Second, 4 * time.Second, 1500 * time.Millisecond},
		fakes[0].Sleeps())
}

func TestDriverRecordsStopReplyPath(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	f := actortest.New(actortest.Config{
		Name:          "client1",
		Journal:       journal,
		DocPath:       p.DocumentPath,
		Editor:        normalizingEditor,
		RecordingPath: "/home/alice/2026-10-19 12-00-00.mkv",
		StopReply:     "\n  Result: \"/home/alice/2026-10-19 12-00-00.mkv\"  \n\n",
	})
	run, err := NewDriver(p).Run(context.Background(), []actor.Actor{f})
	require.NoError(t, err)
	h, ok := run.Recording("client1")
	require.True(t, ok)
	assert.Equal(t, "/home/alice/2026-10-19 12-00-00.mkv", h.Path)

	var stopCmd string
	for _, c := range journal.Calls() {
		if c.Op == actortest.OpExecute {
			stopCmd = c.Arg
		}
	}
	assert.Equal(t, "su alice -c 'obs-cmd recording stop'", stopCmd)
}

func TestDriverMalformedStopReplyStopsBeforeCollect(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	f := actortest.New(actortest.Config{
		Name:      "client1",
		Journal:   journal,
		DocPath:   p.DocumentPath,
		StopReply: "Result: Err(NotRecording)",
	})
	_, err := NewDriver(p).Run(context.Background(), []actor.Actor{f})
	require.ErrorIs(t, err, recorder.ErrNoQuotedPath)
	assert.Empty(t, journal.Ops(actortest.OpWaitForFile, actortest.OpFetchFile))
}

func TestDriverRejectsRecordingNamedLikeDocument(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	journal := &actortest.Journal{}
	f := actortest.New(actortest.Config{
		Name:          "client1",
		Journal:       journal,
		DocPath:       p.DocumentPath,
		Editor:        normalizingEditor,
		RecordingPath: "/var/recordings/test.md",
	})
	run, err := NewDriver(p).Run(context.Background(), []actor.Actor{f})
	require.ErrorIs(t, err, artifact.ErrNameCollision)
	var phaseErr *PhaseError
	require.True(t, errors.As(err, &phaseErr))
	assert.Equal(t, PhaseCollect, phaseErr.Phase)
	assert.Empty(t, journal.Ops(actortest.OpFetchFile), "nothing fetched into the actor directory")
	assert.Empty(t, run.Collected())
}

func TestDriverRejectsInvalidActorSets(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	_, err := NewDriver(p).Run(context.Background(), nil)
	assert.ErrorIs(t, err, ErrNoActors)

	actors, _ := newFakes(&actortest.Journal{}, p, nil, "client1", "client1")
	_, err = NewDriver(p).Run(context.Background(), actors)
	assert.ErrorIs(t, err, ErrDuplicateActor)

	bad := p
	bad.DocumentPath = "test.md"
	_, err = NewDriver(bad).Run(context.Background(), actors[:1])
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestDriverRunsAreIndependent(t *testing.T) {
	testlog.Start(t)
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := testParams(t)
			actors, _ := newFakes(&actortest.Journal{}, p, normalizingEditor, "client1", "client2")
			_, errs[i] = NewDriver(p).Run(context.Background(), actors)
		}()
	}
	wg.Wait()
	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestDriverObserverSeesEveryPhase(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	actors, _ := newFakes(&actortest.Journal{}, p, normalizingEditor, "client1", "client2")

	var mu sync.Mutex
	var finished []string
	obs := ObserverFunc(func(ev Event) {
		if ev.Kind == EventPhaseFinished {
			mu.Lock()
			finished = append(finished, ev.Phase)
			mu.Unlock()
		}
	})
	d := NewDriver(p, obs)
	d.RunID = "fixed-run"
	run, err := d.Run(context.Background(), actors)
	require.NoError(t, err)
	assert.Equal(t, "fixed-run", run.ID)

	var want []string
	for _, phase := range Phases() {
		want = append(want, phase.Name)
	}
	assert.Equal(t, want, finished)
}

func TestDriverCancelledContext(t *testing.T) {
	testlog.Start(t)
	p := testParams(t)
	actors, _ := newFakes(&actortest.Journal{}, p, normalizingEditor, "client1")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewDriver(p).Run(ctx, actors)
	assert.ErrorIs(t, err, context.Canceled)
}
