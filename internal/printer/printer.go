// Package printer writes human-facing command output with consistent
// status prefixes. Color is used only when the writer is a terminal.
package printer

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

type ctxKey struct{}

// Printer formats status lines.
type Printer struct {
	out   io.Writer
	color bool

	success lipgloss.Style
	info    lipgloss.Style
	warn    lipgloss.Style
	err     lipgloss.Style
	muted   lipgloss.Style
}

// New creates a printer writing to out.
func New(out io.Writer) *Printer {
	p := &Printer{
		out:     out,
		color:   isTerminal(out),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("#9ece6a")).Bold(true),
		info:    lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7")).Bold(true),
		warn:    lipgloss.NewStyle().Foreground(lipgloss.Color("#e0af68")).Bold(true),
		err:     lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e")).Bold(true),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89")),
	}
	return p
}

// NewContext returns a context carrying p.
func NewContext(ctx context.Context, p *Printer) context.Context {
	return context.WithValue(ctx, ctxKey{}, p)
}

// Ctx returns the printer stored in ctx, or one writing to stderr.
func Ctx(ctx context.Context) *Printer {
	if p, ok := ctx.Value(ctxKey{}).(*Printer); ok && p != nil {
		return p
	}
	return New(os.Stderr)
}

func (p *Printer) Printf(format string, args ...any) {
	_, _ = fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Successf(format string, args ...any) {
	p.status(p.success, "✔", format, args...)
}

func (p *Printer) Infof(format string, args ...any) {
	p.status(p.info, "•", format, args...)
}

func (p *Printer) Warnf(format string, args ...any) {
	p.status(p.warn, "!", format, args...)
}

func (p *Printer) Errorf(format string, args ...any) {
	p.status(p.err, "✘", format, args...)
}

// Mutedf prints secondary detail.
func (p *Printer) Mutedf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	if p.color {
		line = p.muted.Render(line)
	}
	_, _ = fmt.Fprintln(p.out, line)
}

// Lines prints each line with prefix. Used for conflict sides.
func (p *Printer) Lines(prefix string, lines []string) {
	var sb strings.Builder
	for _, l := range lines {
		sb.WriteString(prefix)
		sb.WriteString(l)
		sb.WriteByte('\n')
	}
	_, _ = io.WriteString(p.out, sb.String())
}

func (p *Printer) status(style lipgloss.Style, icon, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if p.color {
		icon = style.Render(icon)
	}
	_, _ = fmt.Fprintf(p.out, "%s %s\n", icon, msg)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
