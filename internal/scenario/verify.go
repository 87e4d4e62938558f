package scenario

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// DocumentText is one actor's collected document as read on the host.
type DocumentText struct {
	Actor string
	Text  string
}

// AssertionError reports actors whose documents did not converge. It
// carries every actor's full literal content.
type AssertionError struct {
	Documents []DocumentText
}

func (e *AssertionError) Error() string {
	var b strings.Builder
	b.WriteString("clients got a different text file:")
	for _, doc := range e.Documents {
		fmt.Fprintf(&b, "\n%s: %q", doc.Actor, doc.Text)
	}
	if len(e.Documents) == 0 {
		return b.String()
	}
	base := e.Documents[0]
	for _, doc := range e.Documents[1:] {
		if doc.Text == base.Text {
			continue
		}
		fmt.Fprintf(&b, "\n--- %s\n+++ %s\n%s", base.Actor, doc.Actor, lineDiff(base.Text, doc.Text))
	}
	return b.String()
}

// Divergent lists actors whose document differs from the first actor's.
func (e *AssertionError) Divergent() []string {
	if len(e.Documents) == 0 {
		return nil
	}
	var out []string
	for _, doc := range e.Documents[1:] {
		if doc.Text != e.Documents[0].Text {
			out = append(out, doc.Actor)
		}
	}
	return out
}

// CheckConvergence returns nil when every document is identical and an
// *AssertionError otherwise.
func CheckConvergence(docs []DocumentText) error {
	for _, doc := range docs[min(1, len(docs)):] {
		if doc.Text != docs[0].Text {
			return &AssertionError{Documents: append([]DocumentText(nil), docs...)}
		}
	}
	return nil
}

func lineDiff(a, b string) string {
	dmp := diffmatchpatch.New()
	ca, cb, lines := dmp.DiffLinesToChars(a, b)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(ca, cb, false), lines)

	var out strings.Builder
	for _, d := range diffs {
		prefix := " "
		switch d.Type {
		case diffmatchpatch.DiffDelete:
			prefix = "-"
		case diffmatchpatch.DiffInsert:
			prefix = "+"
		}
		for _, line := range strings.SplitAfter(d.Text, "\n") {
			if line == "" {
				continue
			}
			out.WriteString(prefix)
			out.WriteString(line)
			if !strings.HasSuffix(line, "\n") {
				out.WriteString("\n\\ no newline at end of file\n")
			}
		}
	}
	return strings.TrimSuffix(out.String(), "\n")
}
