package recorder

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoQuotedPath = errors.New("recorder: stop reply has no quoted path")
	ErrEmptyPath    = errors.New("recorder: stop reply path is empty")
)

const (
	DefaultLaunch = "obs"
	DefaultStart  = "obs-cmd recording start"
	DefaultStop   = "obs-cmd recording stop"
)

// Commands are the recorder control lines run inside an actor.
type Commands struct {
	Launch string
	Start  string
	Stop   string
}

func DefaultCommands() Commands {
	return Commands{
		Launch: DefaultLaunch,
		Start:  DefaultStart,
		Stop:   DefaultStop,
	}
}

// WithDefaults fills blank commands from DefaultCommands.
func (c Commands) WithDefaults() Commands {
	def := DefaultCommands()
	if strings.TrimSpace(c.Launch) == "" {
		c.Launch = def.Launch
	}
	if strings.TrimSpace(c.Start) == "" {
		c.Start = def.Start
	}
	if strings.TrimSpace(c.Stop) == "" {
		c.Stop = def.Stop
	}
	return c
}

// Handle identifies one finished recording on an actor's filesystem.
type Handle struct {
	Path string
}

// ParseStopReply extracts the recording path from the stop command output.
//
// The recorder CLI replies with text whose first double-quoted field is
// the output file, e.g.
//
//	Result: Ok(StopRecording { output_path: "/home/alice/2024-01-01 10-00-00.mkv" })
//
// Only the first quoted field is read; everything around it is ignored.
func ParseStopReply(output string) (Handle, error) {
	_, rest, ok := strings.Cut(output, `"`)
	if !ok {
		return Handle{}, fmt.Errorf("%w: %q", ErrNoQuotedPath, abbreviate(output))
	}
	path, _, ok := strings.Cut(rest, `"`)
	if !ok {
		return Handle{}, fmt.Errorf("%w: unterminated quote in %q", ErrNoQuotedPath, abbreviate(output))
	}
	if path == "" {
		return Handle{}, ErrEmptyPath
	}
	return Handle{Path: path}, nil
}

func abbreviate(s string) string {
	s = strings.TrimSpace(s)
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
