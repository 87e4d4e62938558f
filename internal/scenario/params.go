package scenario

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/convergectl/internal/recorder"
	"github.com/danmuck/convergectl/internal/shell"
)

var ErrInvalidParams = errors.New("scenario: invalid params")

const (
	// ActorNameToken in Template is replaced by each actor's name.
	ActorNameToken = "{actor_name}"
	// DocumentToken in EditorCommand is replaced by the quoted document path.
	DocumentToken = "{document}"
)

// Params is the fixed procedure every actor runs. One value is shared by
// all actors of a run.
type Params struct {
	DocumentPath string
	// User is the unprivileged account that owns the recorder and editor.
	User string

	Template     string
	InsertPrefix string
	ModeExitKey  string
	SaveCommand  string
	// TypingDelay paces SendText; it changes timing, never content.
	TypingDelay time.Duration

	RecorderWarmup time.Duration
	EditorSettle   time.Duration
	InputSettle    time.Duration
	SaveSettle     time.Duration
	// WaitTimeout bounds each WaitUntil; zero defers to the actor default.
	WaitTimeout time.Duration

	Recorder      recorder.Commands
	EditorCommand string
	// EditorProcess is pgrep'd for readiness. It names the collaboration
	// client the editor spawns, which appears once the editor is attached
	// to the shared document.
	EditorProcess string

	OutputDir string
}

func DefaultParams() Params {
	return Params{
		DocumentPath:   "/home/alice/test.md",
		User:           "alice",
		Template:       "Hello! My name is " + ActorNameToken,
		InsertPrefix:   "o",
		ModeExitKey:    "esc",
		SaveCommand:    ":w\n",
		TypingDelay:    100 * time.Millisecond,
		RecorderWarmup: 5 * time.Second,
		EditorSettle:   time.Second,
		InputSettle:    3 * time.Second,
		SaveSettle:     time.Second,
		Recorder:       recorder.DefaultCommands(),
		EditorCommand:  "kitty -o font_size=12 --start-as=fullscreen -e hx " + DocumentToken,
		EditorProcess:  "client",
		OutputDir:      "out",
	}
}

func (p Params) Validate() error {
	required := []struct {
		name  string
		value string
	}{
		{"document_path", p.DocumentPath},
		{"template", p.Template},
		{"mode_exit_key", p.ModeExitKey},
		{"save_command", p.SaveCommand},
		{"recorder.launch", p.Recorder.Launch},
		{"recorder.start", p.Recorder.Start},
		{"recorder.stop", p.Recorder.Stop},
		{"editor_command", p.EditorCommand},
		{"editor_process", p.EditorProcess},
		{"output_dir", p.OutputDir},
	}
	for _, field := range required {
		if strings.TrimSpace(field.value) == "" {
			return fmt.Errorf("%w: missing %s", ErrInvalidParams, field.name)
		}
	}
	if !strings.HasPrefix(p.DocumentPath, "/") {
		return fmt.Errorf("%w: document_path %q must be absolute", ErrInvalidParams, p.DocumentPath)
	}
	durations := []struct {
		name  string
		value time.Duration
	}{
		{"typing_delay", p.TypingDelay},
		{"recorder_warmup", p.RecorderWarmup},
		{"editor_settle", p.EditorSettle},
		{"input_settle", p.InputSettle},
		{"save_settle", p.SaveSettle},
		{"wait_timeout", p.WaitTimeout},
	}
	for _, field := range durations {
		if field.value < 0 {
			return fmt.Errorf("%w: %s must not be negative", ErrInvalidParams, field.name)
		}
	}
	return nil
}

// TextFor is the line typed by the named actor.
func (p Params) TextFor(actorName string) string {
	return p.InsertPrefix + strings.ReplaceAll(p.Template, ActorNameToken, actorName)
}

// EditorLaunch is the editor command line with the document path filled in.
func (p Params) EditorLaunch() string {
	return strings.ReplaceAll(p.EditorCommand, DocumentToken, shell.Quote(p.DocumentPath))
}

// EditorProbe exits 0 once the editor process exists.
func (p Params) EditorProbe() string {
	return "pgrep " + shell.Quote(p.EditorProcess)
}

func (p Params) RecorderStart() string {
	return shell.AsUser(p.User, p.Recorder.Start)
}

func (p Params) RecorderStop() string {
	return shell.AsUser(p.User, p.Recorder.Stop)
}
