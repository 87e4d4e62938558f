// Package actortest provides a scripted in-memory actor for driver tests.
package actortest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/danmuck/convergectl/internal/actor"
)

const (
	OpWaitForDisplay = "wait_for_display"
	OpRunDetached    = "run_detached"
	OpSleep          = "sleep"
	OpWaitUntil      = "wait_until"
	OpSendText       = "send_text"
	OpSendKey        = "send_key"
	OpWaitForFile    = "wait_for_file"
	OpFetchFile      = "fetch_file"
	OpExecute        = "execute"
)

// Call is one capability invocation observed by a Fake.
type Call struct {
	Actor string
	Op    string
	Arg   string
	Delay time.Duration
}

func (c Call) String() string {
	return c.Actor + ":" + c.Op
}

// Journal records calls across every Fake sharing it, in global order.
type Journal struct {
	mu    sync.Mutex
	calls []Call
}

func (j *Journal) add(c Call) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.calls = append(j.calls, c)
}

func (j *Journal) Calls() []Call {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]Call, len(j.calls))
	copy(out, j.calls)
	return out
}

// Ops returns "actor:op" strings, optionally filtered to the given ops.
func (j *Journal) Ops(filter ...string) []string {
	keep := make(map[string]bool, len(filter))
	for _, op := range filter {
		keep[op] = true
	}
	var out []string
	for _, c := range j.Calls() {
		if len(keep) > 0 && !keep[c.Op] {
			continue
		}
		out = append(out, c.String())
	}
	return out
}

// EditorFunc renders the saved document from everything typed into the
// editor before the save command.
type EditorFunc func(actorName, typed string) string

// LiteralEditor saves the typed text verbatim, minus the leading
// open-line command, as a single line.
func LiteralEditor(_ string, typed string) string {
	return strings.TrimPrefix(typed, "o") + "\n"
}

// Config scripts a Fake.
type Config struct {
	Name    string
	Journal *Journal
	// DocPath marks RunDetached commands that open the editor.
	DocPath       string
	SaveCommand   string
	Editor        EditorFunc
	RecordingPath string
	// StopReply overrides the recorder stop output.
	StopReply string
	// Errors fails the named op (one of the Op constants).
	Errors map[string]error
}

// Fake is an actor.Actor with a simulated editor, recorder and filesystem.
type Fake struct {
	cfg Config

	mu         sync.Mutex
	files      map[string][]byte
	editorOpen bool
	typed      strings.Builder
	sleeps     []time.Duration
	delays     []time.Duration
}

var _ actor.Actor = (*Fake)(nil)

func New(cfg Config) *Fake {
	if cfg.Journal == nil {
		cfg.Journal = &Journal{}
	}
	if cfg.SaveCommand == "" {
		cfg.SaveCommand = ":w\n"
	}
	if cfg.Editor == nil {
		cfg.Editor = LiteralEditor
	}
	if cfg.RecordingPath == "" {
		cfg.RecordingPath = "/home/alice/" + cfg.Name + "-recording.mkv"
	}
	if cfg.StopReply == "" {
		cfg.StopReply = fmt.Sprintf("Result: Ok(StopRecording { output_path: %q })\n", cfg.RecordingPath)
	}
	return &Fake{cfg: cfg, files: make(map[string][]byte)}
}

func (f *Fake) Name() string {
	return f.cfg.Name
}

// File returns the simulated content at path.
func (f *Fake) File(path string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path]
	return data, ok
}

// Sleeps returns every Sleep duration requested so far.
func (f *Fake) Sleeps() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.sleeps...)
}

// TypingDelays returns the delay passed to each SendText call.
func (f *Fake) TypingDelays() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.delays...)
}

func (f *Fake) record(op, arg string, delay time.Duration) error {
	f.cfg.Journal.add(Call{Actor: f.cfg.Name, Op: op, Arg: arg, Delay: delay})
	if err, ok := f.cfg.Errors[op]; ok {
		return err
	}
	return nil
}

func (f *Fake) WaitForDisplay(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.record(OpWaitForDisplay, "", 0)
}

func (f *Fake) RunDetached(ctx context.Context, command string) error {
	if err := f.record(OpRunDetached, command, 0); err != nil {
		return err
	}
	if f.cfg.DocPath != "" && strings.Contains(command, f.cfg.DocPath) {
		f.mu.Lock()
		f.editorOpen = true
		f.mu.Unlock()
	}
	return ctx.Err()
}

func (f *Fake) Sleep(ctx context.Context, d time.Duration) error {
	if err := f.record(OpSleep, d.String(), d); err != nil {
		return err
	}
	f.mu.Lock()
	f.sleeps = append(f.sleeps, d)
	f.mu.Unlock()
	return ctx.Err()
}

func (f *Fake) WaitUntil(ctx context.Context, command string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return f.record(OpWaitUntil, command, timeout)
}

func (f *Fake) SendText(ctx context.Context, text string, delay time.Duration) error {
	if err := f.record(OpSendText, text, delay); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delays = append(f.delays, delay)
	if !f.editorOpen {
		return ctx.Err()
	}
	if text == f.cfg.SaveCommand {
		f.files[f.cfg.DocPath] = []byte(f.cfg.Editor(f.cfg.Name, f.typed.String()))
		return ctx.Err()
	}
	f.typed.WriteString(text)
	return ctx.Err()
}

func (f *Fake) SendKey(ctx context.Context, key string) error {
	if err := f.record(OpSendKey, key, 0); err != nil {
		return err
	}
	if _, err := actor.LookupKey(key); err != nil {
		return err
	}
	return ctx.Err()
}

func (f *Fake) WaitForFile(ctx context.Context, path string) error {
	if err := f.record(OpWaitForFile, path, 0); err != nil {
		return err
	}
	if _, ok := f.File(path); !ok {
		return &actor.TimeoutError{Actor: f.cfg.Name, Waiting: "file " + path, Attempts: 1}
	}
	return ctx.Err()
}

func (f *Fake) FetchFile(ctx context.Context, remotePath, localDir string) (string, error) {
	if err := f.record(OpFetchFile, remotePath, 0); err != nil {
		return "", err
	}
	data, ok := f.File(remotePath)
	if !ok {
		return "", fmt.Errorf("actor %s: fetch %s: %w", f.cfg.Name, remotePath, os.ErrNotExist)
	}
	if err := os.MkdirAll(localDir, 0o755); err != nil {
		return "", err
	}
	dest := filepath.Join(localDir, filepath.Base(remotePath))
	if err := os.WriteFile(dest, data, 0o644); err != nil {
		return "", err
	}
	return dest, ctx.Err()
}

// Execute answers recorder stop commands with StopReply and materializes
// the recording file; every other command exits 0 with no output.
func (f *Fake) Execute(ctx context.Context, command string) (int, string, error) {
	if err := f.record(OpExecute, command, 0); err != nil {
		return 0, "", err
	}
	if strings.Contains(command, "recording stop") {
		f.mu.Lock()
		f.files[f.cfg.RecordingPath] = []byte("recording of " + f.cfg.Name)
		f.mu.Unlock()
		return 0, f.cfg.StopReply, ctx.Err()
	}
	return 0, "", ctx.Err()
}
