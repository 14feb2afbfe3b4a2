// Package ui renders terminal output for scrape runs.
package ui

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))             // green
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))             // red
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))            // yellow
	detailStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))           // grey
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69")) // purple
)

// RunSummary is one engine's contribution to the final report.
type RunSummary struct {
	Engine      string
	Saved       int
	Skipped     int
	Errors      int
	Destination string
	Duration    time.Duration
	Failed      bool
	FailReason  string
}

// Printer writes styled run output. A quiet Printer suppresses everything
// except errors.
type Printer struct {
	out   io.Writer
	quiet bool
}

// NewPrinter creates a Printer writing to stdout.
func NewPrinter(quiet bool) *Printer {
	return &Printer{out: os.Stdout, quiet: quiet}
}

// NewPrinterTo creates a Printer writing to w.
func NewPrinterTo(w io.Writer, quiet bool) *Printer {
	return &Printer{out: w, quiet: quiet}
}

// Header announces the start of a scrape run.
func (p *Printer) Header(query string, engines []string) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, headerStyle.Render(fmt.Sprintf("Scraping %q", query)))
	fmt.Fprintln(p.out, detailStyle.Render(fmt.Sprintf("engines: %s", join(engines))))
}

// EngineStart announces one engine run.
func (p *Printer) EngineStart(engine string, count int) {
	if p.quiet {
		return
	}
	fmt.Fprintln(p.out, detailStyle.Render(fmt.Sprintf("→ %s: fetching up to %d images", engine, count)))
}

// Summary prints the per-engine results and totals.
func (p *Printer) Summary(summaries []RunSummary) {
	if p.quiet {
		p.quietSummary(summaries)
		return
	}

	fmt.Fprintln(p.out)
	totalSaved := 0
	for _, s := range summaries {
		if s.Failed {
			fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("✗ %s: %s", s.Engine, s.FailReason)))
			continue
		}
		totalSaved += s.Saved
		line := fmt.Sprintf("✓ %s: %d saved, %d skipped", s.Engine, s.Saved, s.Skipped)
		if s.Errors > 0 {
			line += fmt.Sprintf(", %d failed", s.Errors)
		}
		line += fmt.Sprintf(" (%s)", s.Duration.Round(time.Millisecond))
		if s.Errors > 0 {
			fmt.Fprintln(p.out, warningStyle.Render(line))
		} else {
			fmt.Fprintln(p.out, successStyle.Render(line))
		}
		fmt.Fprintln(p.out, detailStyle.Render("  "+s.Destination))
	}

	fmt.Fprintln(p.out, headerStyle.Render(fmt.Sprintf("%d images saved", totalSaved)))
}

// quietSummary only reports engines that failed outright.
func (p *Printer) quietSummary(summaries []RunSummary) {
	for _, s := range summaries {
		if s.Failed {
			fmt.Fprintln(p.out, errorStyle.Render(fmt.Sprintf("✗ %s: %s", s.Engine, s.FailReason)))
		}
	}
}

// Error prints an error line regardless of quiet mode.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.out, errorStyle.Render("✗ "+msg))
}

func join(items []string) string {
	out := ""
	for i, item := range items {
		if i > 0 {
			out += ", "
		}
		out += item
	}
	return out
}
