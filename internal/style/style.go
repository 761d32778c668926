// Package style provides shared lipgloss styles for the doctor report.
//
// Styling is applied only when the target writer is a terminal; piped
// output stays plain so it can be captured and compared in tests.
package style

import (
	"io"
	"os"

	"github.com/charmbracelet/colorprofile"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Report colors
var (
	// Warning is used for problem headers and summary lines (yellow)
	Warning lipgloss.TerminalColor = lipgloss.Color("11")

	// Success is used for fix outcomes (green)
	Success lipgloss.TerminalColor = lipgloss.Color("82")

	// Error is used for failed fixes (red)
	Error lipgloss.TerminalColor = lipgloss.Color("196")
)

var (
	warningStyle = lipgloss.NewStyle().Foreground(Warning)
	successStyle = lipgloss.NewStyle().Foreground(Success)
	errorStyle   = lipgloss.NewStyle().Foreground(Error)
)

// Renderer styles strings for a specific writer, degrading to plain
// text when the writer is not a color-capable terminal.
type Renderer struct {
	enabled bool
}

// NewRenderer detects the color capability of w.
func NewRenderer(w io.Writer) *Renderer {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return &Renderer{}
	}
	p := colorprofile.Detect(w, os.Environ())
	return &Renderer{enabled: p != colorprofile.Ascii && p != colorprofile.NoTTY}
}

// Plain returns a renderer that never styles. Used by tests and --quiet.
func Plain() *Renderer {
	return &Renderer{}
}

// Warning styles s in the warning color.
func (r *Renderer) Warning(s string) string {
	if !r.enabled {
		return s
	}
	return warningStyle.Render(s)
}

// Success styles s in the success color.
func (r *Renderer) Success(s string) string {
	if !r.enabled {
		return s
	}
	return successStyle.Render(s)
}

// Error styles s in the error color.
func (r *Renderer) Error(s string) string {
	if !r.enabled {
		return s
	}
	return errorStyle.Render(s)
}
