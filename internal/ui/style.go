package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	headingStyle = lipgloss.NewStyle().Bold(true)
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("3"))
	errStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	faintStyle   = lipgloss.NewStyle().Faint(true)
)

// Printer writes user facing messages. Styling is only applied when the
// output is a terminal.
type Printer struct {
	out    io.Writer
	styled bool
}

// NewPrinter creates a printer for out.
func NewPrinter(out io.Writer) *Printer {
	styled := false
	if f, ok := out.(*os.File); ok {
		styled = term.IsTerminal(int(f.Fd()))
	}
	return &Printer{out: out, styled: styled}
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.out
}

func (p *Printer) render(style lipgloss.Style, s string) string {
	if !p.styled {
		return s
	}
	return style.Render(s)
}

// Heading prints a bold line.
func (p *Printer) Heading(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.render(headingStyle, fmt.Sprintf(format, args...)))
}

// Step prints a labelled progress line like "[pull] fast-forward".
func (p *Printer) Step(label, format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, "%s %s\n", p.render(faintStyle, "["+label+"]"), fmt.Sprintf(format, args...))
}

// Success prints a green line.
func (p *Printer) Success(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.render(okStyle, fmt.Sprintf(format, args...)))
}

// Warn prints a yellow line.
func (p *Printer) Warn(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.render(warnStyle, fmt.Sprintf(format, args...)))
}

// Error prints a red line.
func (p *Printer) Error(format string, args ...any) {
	_, _ = fmt.Fprintln(p.out, p.render(errStyle, fmt.Sprintf(format, args...)))
}

// Faint renders s dimmed, for inline use.
func (p *Printer) Faint(s string) string {
	return p.render(faintStyle, s)
}
