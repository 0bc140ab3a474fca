package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/prbarcelon/astrbotctl/internal/protocol"
)

type styles struct {
	title    lipgloss.Style
	label    lipgloss.Style
	active   lipgloss.Style
	inactive lipgloss.Style
	muted    lipgloss.Style
}

func newStyles(r *lipgloss.Renderer) styles {
	return styles{
		title:    r.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE")),
		label:    r.NewStyle().Foreground(lipgloss.Color("#A6ADC8")),
		active:   r.NewStyle().Foreground(lipgloss.Color("#A6E3A1")),
		inactive: r.NewStyle().Foreground(lipgloss.Color("#F38BA8")),
		muted:    r.NewStyle().Foreground(lipgloss.Color("#6C7086")),
	}
}

func (s styles) activated(on bool) string {
	if on {
		return s.active.Render("true")
	}
	return s.inactive.Render("false")
}

func renderPlugins(w io.Writer, s styles, plugins []protocol.Plugin) {
	if len(plugins) == 0 {
		fmt.Fprintln(w, s.muted.Render("no plugins installed"))
		return
	}
	for _, p := range plugins {
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Name(id):"), s.title.Render(p.Name))
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Version:"), p.Version)
		fmt.Fprintf(w, "%s %s\n", s.label.Render("Activated:"), s.activated(p.Activated))
		if p.Author != "" {
			fmt.Fprintf(w, "%s %s\n", s.label.Render("Author:"), p.Author)
		}
		if desc := strings.TrimSpace(p.Desc); desc != "" {
			fmt.Fprintf(w, "%s %s\n", s.label.Render("Description:"), desc)
		}
		fmt.Fprintln(w)
	}
}

// formatTimestamp renders unix seconds as UTC "2006-01-02 15:04:05".
func formatTimestamp(secs int64) string {
	return time.Unix(secs, 0).UTC().Format("2006-01-02 15:04:05")
}

// memory figures are reported in megabytes.
func formatMegabytes(mb int64) string {
	if mb < 0 {
		return fmt.Sprintf("%d MB", mb)
	}
	return humanize.IBytes(uint64(mb) * 1024 * 1024)
}

func renderStat(w io.Writer, s styles, stat *protocol.Stat) {
	fmt.Fprintf(w, "%s %s %s\n",
		s.label.Render("Started:"),
		formatTimestamp(stat.StartTime),
		s.muted.Render("("+humanize.Time(time.Unix(stat.StartTime, 0))+")"),
	)
	fmt.Fprintln(w, s.label.Render("Platforms:"))
	for _, p := range stat.Platform {
		fmt.Fprintf(w, "  %s: %s %s\n",
			s.title.Render(p.Name),
			humanize.Comma(p.Count),
			s.muted.Render("(last update "+formatTimestamp(int64(p.Timestamp))+")"),
		)
	}
	fmt.Fprintf(w, "%s %s\n", s.label.Render("Messages:"), humanize.Comma(stat.MessageCount))
	fmt.Fprintf(w, "%s %d\n", s.label.Render("Plugins:"), stat.PluginCount)
	fmt.Fprintf(w, "%s %dh%dm%ds\n", s.label.Render("Uptime:"), stat.Running.Hours, stat.Running.Minutes, stat.Running.Seconds)
	fmt.Fprintln(w, s.label.Render("Memory:"))
	fmt.Fprintf(w, "  process: %s\n", formatMegabytes(stat.Memory.Process))
	fmt.Fprintf(w, "  system: %s\n", formatMegabytes(stat.Memory.System))
	fmt.Fprintf(w, "%s %.1f%%\n", s.label.Render("CPU:"), stat.CPUPercent)
	if stat.ThreadCount > 0 {
		fmt.Fprintf(w, "%s %d\n", s.label.Render("Threads:"), stat.ThreadCount)
	}
}

func renderHistory(w io.Writer, s styles, items []protocol.HistoryItem) {
	for _, h := range items {
		status := s.active.Render("ok")
		if !h.Success {
			status = s.inactive.Render("error")
		}
		fmt.Fprintf(w, "%s %s %s %d %s (%dms)\n",
			h.At.Format(time.RFC3339), h.Method, h.Path, h.StatusCode, status, h.DurationMs)
		if !h.Success && h.Error != "" {
			fmt.Fprintf(w, "  error: %s\n", h.Error)
		}
	}
}
