package commands

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/vulntor/batchq/pkg/queue"
	"github.com/vulntor/batchq/pkg/runexec"
)

var (
	titleStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("170"))
	subtleStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	successStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203")).Bold(true)
	infoStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("75"))
	statusBarStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("57")).Padding(0, 1)
)

// newProgressSink picks a live status line for terminals and structured
// log lines otherwise.
func newProgressSink(out *os.File, logger zerolog.Logger, color bool) runexec.ProgressSink {
	if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
		return &progressLine{out: out, color: color}
	}
	return &progressLogger{logger: logger}
}

// progressLogger writes one log entry per item transition.
type progressLogger struct {
	logger zerolog.Logger
}

func (p *progressLogger) OnEvent(ev queue.Event) {
	if ev.Item == nil {
		return
	}
	entry := p.logger.Info().
		Str("item_id", ev.Item.ID).
		Str("status", ev.Item.Status.String()).
		Int("attempts", ev.Item.Attempts).
		Int("done", ev.Stats.Done()).
		Int("total", ev.Stats.Total)
	if ev.Item.Error != "" {
		entry = entry.Str("error", ev.Item.Error)
	}
	if ev.Stats.ETAKnown {
		entry = entry.Dur("eta", ev.Stats.EstimatedTimeRemaining)
	}
	entry.Msg("item progress")
}

// progressLine redraws a single status line in place. Failed items are
// printed above it so they stay visible.
type progressLine struct {
	out   io.Writer
	color bool

	mu      sync.Mutex
	version uint64
	width   int
}

func (p *progressLine) OnEvent(ev queue.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Snapshots from concurrent workers can arrive out of order.
	if ev.Stats.Version < p.version {
		return
	}
	p.version = ev.Stats.Version

	if ev.Topic == queue.TopicItemFailed && ev.Item != nil {
		p.clear()
		msg := fmt.Sprintf("✗ %s: %s", ev.Item.ID, ev.Item.Error)
		if p.color {
			msg = errorStyle.Render(msg)
		}
		_, _ = fmt.Fprintln(p.out, msg)
	}

	line := renderStatus(ev.Stats, p.color)
	pad := p.width - lipgloss.Width(line)
	if pad < 0 {
		pad = 0
	}
	_, _ = fmt.Fprintf(p.out, "\r%s%s", line, strings.Repeat(" ", pad))
	p.width = lipgloss.Width(line)

	switch ev.Topic {
	case queue.TopicDrained, queue.TopicStopped:
		_, _ = fmt.Fprintln(p.out)
		p.width = 0
	}
}

func (p *progressLine) clear() {
	if p.width == 0 {
		return
	}
	_, _ = fmt.Fprintf(p.out, "\r%s\r", strings.Repeat(" ", p.width))
	p.width = 0
}

// renderStatus formats a stats snapshot as a one-line progress summary.
func renderStatus(s queue.Stats, color bool) string {
	style := func(st lipgloss.Style, text string) string {
		if color {
			return st.Render(text)
		}
		return text
	}

	parts := []string{
		style(titleStyle, fmt.Sprintf("%3.0f%%", s.Progress()*100)),
		style(subtleStyle, fmt.Sprintf("%d/%d", s.Done(), s.Total)),
		style(successStyle, fmt.Sprintf("✓ %d", s.Completed)),
		style(errorStyle, fmt.Sprintf("✗ %d", s.Failed)),
		style(warnStyle, fmt.Sprintf("↻ %d", s.Retrying)),
		style(infoStyle, fmt.Sprintf("▶ %d", s.Processing)),
	}

	switch {
	case s.IsPaused:
		parts = append(parts, style(warnStyle, "paused"))
	case s.ETAKnown:
		parts = append(parts, style(statusBarStyle, "ETA "+s.EstimatedTimeRemaining.Round(time.Second).String()))
	case s.Remaining() > 0:
		parts = append(parts, style(subtleStyle, "ETA --"))
	}
	return strings.Join(parts, "  ")
}
