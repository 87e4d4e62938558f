package actor

import (
	"fmt"
	"strings"
)

// Key is one named key event in both X keysym and terminal byte form.
type Key struct {
	Name   string
	Keysym string
	Bytes  []byte
}

var namedKeys = map[string]Key{
	"esc":       {Name: "esc", Keysym: "Escape", Bytes: []byte{0x1b}},
	"ret":       {Name: "ret", Keysym: "Return", Bytes: []byte{'\r'}},
	"tab":       {Name: "tab", Keysym: "Tab", Bytes: []byte{'\t'}},
	"backspace": {Name: "backspace", Keysym: "BackSpace", Bytes: []byte{0x7f}},
	"delete":    {Name: "delete", Keysym: "Delete", Bytes: []byte("\x1b[3~")},
	"space":     {Name: "space", Keysym: "space", Bytes: []byte{' '}},
	"up":        {Name: "up", Keysym: "Up", Bytes: []byte("\x1b[A")},
	"down":      {Name: "down", Keysym: "Down", Bytes: []byte("\x1b[B")},
	"right":     {Name: "right", Keysym: "Right", Bytes: []byte("\x1b[C")},
	"left":      {Name: "left", Keysym: "Left", Bytes: []byte("\x1b[D")},
	"home":      {Name: "home", Keysym: "Home", Bytes: []byte("\x1b[H")},
	"end":       {Name: "end", Keysym: "End", Bytes: []byte("\x1b[F")},
}

var keyAliases = map[string]string{
	"escape":    "esc",
	"enter":     "ret",
	"return":    "ret",
	"bs":        "backspace",
	"del":       "delete",
	"spacebar":  "space",
	"arrowup":   "up",
	"arrowdown": "down",
}

// LookupKey resolves a key name such as "esc", "ret" or "ctrl-s".
func LookupKey(name string) (Key, error) {
	norm := strings.ToLower(strings.TrimSpace(name))
	if alias, ok := keyAliases[norm]; ok {
		norm = alias
	}
	if key, ok := namedKeys[norm]; ok {
		return key, nil
	}
	if letter, ok := ctrlLetter(norm); ok {
		return Key{
			Name:   "ctrl-" + string(letter),
			Keysym: "ctrl+" + string(letter),
			Bytes:  []byte{letter - 'a' + 1},
		}, nil
	}
	return Key{}, fmt.Errorf("%w: %q", ErrUnknownKey, name)
}

func ctrlLetter(norm string) (byte, bool) {
	for _, prefix := range []string{"ctrl-", "ctrl+", "c-"} {
		rest, ok := strings.CutPrefix(norm, prefix)
		if !ok {
			continue
		}
		if len(rest) == 1 && rest[0] >= 'a' && rest[0] <= 'z' {
			return rest[0], true
		}
	}
	return 0, false
}
