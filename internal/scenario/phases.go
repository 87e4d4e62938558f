package scenario

import (
	"context"
	"fmt"
	"os"

	"github.com/danmuck/convergectl/internal/actor"
	"github.com/danmuck/convergectl/internal/artifact"
	"github.com/danmuck/convergectl/internal/recorder"
)

const (
	PhaseBootSync       = "boot-sync"
	PhaseRecorderLaunch = "recorder-launch"
	PhaseRecorderWarmup = "recorder-warmup"
	PhaseRecordingStart = "recording-start"
	PhaseEditorLaunch   = "editor-launch"
	PhaseEditorReady    = "editor-ready"
	PhaseInput          = "input"
	PhaseSaveStop       = "save-stop"
	PhaseCollect        = "collect"
	PhaseVerify         = "verify"
)

// Phases is the scenario in execution order.
func Phases() []Phase {
	return []Phase{
		{Name: PhaseBootSync, Step: bootSync},
		{Name: PhaseRecorderLaunch, Step: recorderLaunch},
		{Name: PhaseRecorderWarmup, Step: recorderWarmup},
		{Name: PhaseRecordingStart, Step: recordingStart},
		{Name: PhaseEditorLaunch, Step: editorLaunch},
		{Name: PhaseEditorReady, Step: editorReady},
		{Name: PhaseInput, Step: input},
		{Name: PhaseSaveStop, Step: saveAndStop},
		{Name: PhaseCollect, Step: collect},
		{Name: PhaseVerify, Step: readBack, After: verify},
	}
}

func bootSync(ctx context.Context, _ *Run, a actor.Actor) error {
	return a.WaitForDisplay(ctx)
}

func recorderLaunch(ctx context.Context, run *Run, a actor.Actor) error {
	return a.RunDetached(ctx, run.Params.Recorder.Launch)
}

func recorderWarmup(ctx context.Context, run *Run, a actor.Actor) error {
	return a.Sleep(ctx, run.Params.RecorderWarmup)
}

// recordingStart polls because the recorder's control socket may not be
// attached yet even after the warm-up.
func recordingStart(ctx context.Context, run *Run, a actor.Actor) error {
	return a.WaitUntil(ctx, run.Params.RecorderStart(), run.Params.WaitTimeout)
}

func editorLaunch(ctx context.Context, run *Run, a actor.Actor) error {
	return a.RunDetached(ctx, run.Params.EditorLaunch())
}

func editorReady(ctx context.Context, run *Run, a actor.Actor) error {
	if err := a.WaitUntil(ctx, run.Params.EditorProbe(), run.Params.WaitTimeout); err != nil {
		return err
	}
	return a.Sleep(ctx, run.Params.EditorSettle)
}

func input(ctx context.Context, run *Run, a actor.Actor) error {
	p := run.Params
	if err := a.SendText(ctx, p.TextFor(a.Name()), p.TypingDelay); err != nil {
		return err
	}
	if err := a.SendKey(ctx, p.ModeExitKey); err != nil {
		return err
	}
	return a.Sleep(ctx, p.InputSettle)
}

func saveAndStop(ctx context.Context, run *Run, a actor.Actor) error {
	p := run.Params
	if err := a.SendText(ctx, p.SaveCommand, 0); err != nil {
		return err
	}
	if err := a.Sleep(ctx, p.SaveSettle); err != nil {
		return err
	}
	status, out, err := a.Execute(ctx, p.RecorderStop())
	if err != nil {
		return err
	}
	handle, err := recorder.ParseStopReply(out)
	if err != nil {
		return fmt.Errorf("recording stop exited %d: %w", status, err)
	}
	run.recordings[a.Name()] = handle
	return nil
}

func collect(ctx context.Context, run *Run, a actor.Actor) error {
	handle, ok := run.Recording(a.Name())
	if !ok {
		return fmt.Errorf("no recording captured for %s", a.Name())
	}
	if err := artifact.CheckDistinct(run.Params.DocumentPath, handle.Path); err != nil {
		return err
	}
	dir, err := run.Layout.Ensure(a.Name())
	if err != nil {
		return err
	}
	if err := a.WaitForFile(ctx, run.Params.DocumentPath); err != nil {
		return err
	}
	doc, err := a.FetchFile(ctx, run.Params.DocumentPath, dir)
	if err != nil {
		return err
	}
	rec, err := a.FetchFile(ctx, handle.Path, dir)
	if err != nil {
		return err
	}
	collected, err := artifact.Collect(a.Name(), doc, rec)
	if err != nil {
		return err
	}
	run.collected[a.Name()] = collected
	return nil
}

func readBack(_ context.Context, run *Run, a actor.Actor) error {
	c, ok := run.collected[a.Name()]
	if !ok {
		return fmt.Errorf("no collected document for %s", a.Name())
	}
	data, err := os.ReadFile(c.Document)
	if err != nil {
		return err
	}
	run.documents[a.Name()] = string(data)
	return nil
}

func verify(_ context.Context, run *Run) error {
	docs := make([]DocumentText, 0, len(run.Actors))
	for _, a := range run.Actors {
		docs = append(docs, DocumentText{Actor: a.Name(), Text: run.documents[a.Name()]})
	}
	return CheckConvergence(docs)
}
