// Package presenter delivers the rendered summary text to the user, either
// on a terminal or through a native dialog box. The text itself is never
// modified, both sinks receive the same canonical artifact.
package presenter

import (
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Presenter delivers one summary text to the user.
type Presenter interface {
	Present(text string) error
}

// PresentationError means the sink could not display the text. Callers are
// expected to fall back to a terminal sink so the summary is never lost.
type PresentationError struct {
	Reason string
	Err    error
}

func (e *PresentationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PresentationError) Unwrap() error {
	return e.Err
}

// Terminal writes the text unmodified to W.
type Terminal struct {
	W io.Writer
}

func (t Terminal) Present(text string) error {
	if _, err := io.WriteString(t.W, text); err != nil {
		return &PresentationError{Reason: "could not write to output", Err: err}
	}
	return nil
}

// Dialog shows the text in a persistent, user-dismissable dialog box via
// osascript.
type Dialog struct{}

func (Dialog) Present(text string) error {
	cmd := exec.Command("osascript", "-e", dialogScript(text)) // nolint: gosec
	if out, err := cmd.CombinedOutput(); err != nil {
		return &PresentationError{
			Reason: fmt.Sprintf("could not display dialog (output: %s)", strings.TrimSpace(string(out))),
			Err:    err,
		}
	}
	return nil
}

var dialogEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// dialogScript builds the AppleScript statement for the dialog. Backslashes
// and double quotes are the only characters AppleScript string literals
// treat specially.
func dialogScript(text string) string {
	return `display dialog "` + dialogEscaper.Replace(text) + `" buttons {"OK"} default button "OK"`
}
