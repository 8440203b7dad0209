package log

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Progress reports advancement of a long run (optimizer evaluations,
// rebalancing periods) to the logger and, optionally, as a bar on out.
type Progress struct {
	mu        sync.Mutex
	name      string
	total     int
	current   int
	startTime time.Time
	out       io.Writer
}

// NewProgress creates a progress reporter for total steps. A nil out
// disables the bar and keeps only log lines.
func NewProgress(name string, total int, out io.Writer) *Progress {
	return &Progress{
		name:      name,
		total:     total,
		startTime: time.Now(),
		out:       out,
	}
}

// Increment advances progress by one step with an optional message
func (p *Progress) Increment(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.current++
	evt := log.Debug().
		Str("task", p.name).
		Int("step", p.current).
		Int("total", p.total)
	if eta, ok := p.eta(); ok {
		evt = evt.Dur("eta", eta)
	}
	if message != "" {
		evt = evt.Str("detail", message)
	}
	evt.Msg("Progress")

	if p.out != nil {
		fmt.Fprint(p.out, p.render(message))
	}
}

// Current returns the number of completed steps.
func (p *Progress) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Finish logs the total duration.
func (p *Progress) Finish() {
	p.mu.Lock()
	defer p.mu.Unlock()

	d := time.Since(p.startTime)
	if p.out != nil {
		fmt.Fprintf(p.out, "\r\033[K%s completed (%d steps, %v)\n", p.name, p.current, d.Round(time.Millisecond))
	}
	log.Info().
		Str("task", p.name).
		Int("steps", p.current).
		Dur("duration", d).
		Msg("Task completed")
}

func (p *Progress) eta() (time.Duration, bool) {
	if p.total <= 0 || p.current == 0 || p.current >= p.total {
		return 0, false
	}
	perStep := time.Since(p.startTime) / time.Duration(p.current)
	return perStep * time.Duration(p.total-p.current), true
}

func (p *Progress) render(message string) string {
	var b strings.Builder
	b.WriteString("\r\033[K")
	b.WriteString(p.name)
	if p.total > 0 {
		const width = 20
		filled := width * p.current / p.total
		if filled > width {
			filled = width
		}
		b.WriteString(" [")
		b.WriteString(strings.Repeat("█", filled))
		b.WriteString(strings.Repeat("░", width-filled))
		fmt.Fprintf(&b, "] %d/%d (%.1f%%)", p.current, p.total, float64(p.current)/float64(p.total)*100)
	} else {
		fmt.Fprintf(&b, " (%d)", p.current)
	}
	if eta, ok := p.eta(); ok {
		fmt.Fprintf(&b, " ETA: %v", eta.Round(time.Second))
	}
	if message != "" {
		b.WriteString(" - ")
		b.WriteString(message)
	}
	return b.String()
}
