package brain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNoMatch is returned by Brain.Match when no trigger accepts the input.
var ErrNoMatch = errors.New("no trigger matched")

// Issue is one problem found while building a brain. The offending trigger
// or definition was skipped; everything else was kept.
type Issue struct {
	File    string
	Line    int
	Topic   string
	Pattern string
	Err     error
}

func (i Issue) Error() string {
	var b strings.Builder
	if i.File != "" {
		b.WriteString(i.File)
		if i.Line > 0 {
			fmt.Fprintf(&b, ":%d", i.Line)
		}
		b.WriteString(": ")
	}
	if i.Topic != "" {
		fmt.Fprintf(&b, "topic %q: ", i.Topic)
	}
	b.WriteString(i.Err.Error())
	return b.String()
}

func (i Issue) Unwrap() error {
	return i.Err
}

// CompileErrors lists every issue of a build.
type CompileErrors struct {
	Issues []Issue
}

func (e *CompileErrors) Error() string {
	if len(e.Issues) == 1 {
		return e.Issues[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d script issues:", len(e.Issues))
	for _, i := range e.Issues {
		b.WriteString("\n  ")
		b.WriteString(i.Error())
	}
	return b.String()
}

// Unwrap exposes the individual issues to errors.Is and errors.As.
func (e *CompileErrors) Unwrap() []error {
	out := make([]error, len(e.Issues))
	for i, issue := range e.Issues {
		out[i] = issue.Err
	}
	return out
}

func (e *CompileErrors) add(issue Issue) {
	e.Issues = append(e.Issues, issue)
}

func (e *CompileErrors) errOrNil() error {
	if e == nil || len(e.Issues) == 0 {
		return nil
	}
	return e
}
