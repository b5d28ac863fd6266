// Package output renders per-file progress and batch summaries for people.
package output

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/dunamismax/webopt/internal/domain"
	"github.com/fatih/color"
)

// Printer is safe for concurrent use; each line is written whole.
type Printer struct {
	mu        sync.Mutex
	out       io.Writer
	err       io.Writer
	useColors bool
}

// NewPrinter honours NO_COLOR and dumb terminals regardless of useColors.
func NewPrinter(out, errOut io.Writer, useColors bool) *Printer {
	if _, ok := os.LookupEnv("NO_COLOR"); ok || os.Getenv("TERM") == "dumb" {
		useColors = false
	}
	return &Printer{out: out, err: errOut, useColors: useColors}
}

func (p *Printer) Info(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useColors {
		color.New(color.FgCyan).Fprintf(p.out, format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, format+"\n", args...)
}

func (p *Printer) Success(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useColors {
		color.New(color.FgGreen).Fprintf(p.out, "✓ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.out, "[OK] "+format+"\n", args...)
}

func (p *Printer) Error(format string, args ...any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.useColors {
		color.New(color.FgRed).Fprintf(p.err, "✗ "+format+"\n", args...)
		return
	}
	fmt.Fprintf(p.err, "[ERROR] "+format+"\n", args...)
}

// FileDone prints the per-file line: dimensions on success, cause on failure.
func (p *Printer) FileDone(r domain.FileResult) {
	if !r.OK() {
		p.Error("Error processing %s: %s", r.Name, r.Error)
		return
	}
	p.Success("Optimized: %s (Original: %dx%d, New: %dx%d)", r.Name, r.OrigWidth, r.OrigHeight, r.Width, r.Height)
}

func (p *Printer) Summary(s domain.Summary) {
	if s.Failed == 0 {
		p.Info("All images have been optimized! %d file(s) in %s", s.Succeeded, s.Duration.Round(time.Millisecond))
	} else {
		p.Info("Finished: %d optimized, %d failed of %d in %s", s.Succeeded, s.Failed, s.Attempted, s.Duration.Round(time.Millisecond))
	}

	failures := s.Failures()
	if len(failures) == 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	table := NewTable(p.out, []string{"File", "Reason", "Error"})
	for _, r := range failures {
		table.AddRow([]string{r.Name, r.Reason, r.Error})
	}
	table.Render()
}
