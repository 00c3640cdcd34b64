// Package tui renders the terminal output of the CLI: styled headers,
// per-cycle census tables, run summaries and progress bars.
package tui

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/schollz/progressbar/v3"

	"github.com/epiflow/epiflow/internal/model"
)

// Colors (Swiss minimal)
var (
	accent  = lipgloss.Color("#FF0000")
	muted   = lipgloss.Color("#666666")
	success = lipgloss.Color("#00CC66")
	white   = lipgloss.Color("#FFFFFF")
)

// Styles
var (
	titleStyle   = lipgloss.NewStyle().Bold(true).Foreground(white)
	accentStyle  = lipgloss.NewStyle().Foreground(accent).Bold(true)
	mutedStyle   = lipgloss.NewStyle().Foreground(muted)
	successStyle = lipgloss.NewStyle().Foreground(success).Bold(true)
	codeStyle    = lipgloss.NewStyle().Background(lipgloss.Color("#1a1a1a")).Foreground(white).Padding(0, 1)
)

// healthStyles colors each status in tables.
var healthStyles = map[model.HealthStatus]lipgloss.Style{
	model.Healthy:   successStyle,
	model.Infected:  accentStyle,
	model.Recovered: titleStyle,
	model.Dead:      mutedStyle,
}

// Version is printed in the header.
var Version = "0.1.0"

// PrintHeader prints the program banner.
func PrintHeader(w io.Writer) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, titleStyle.Render("  EPIFLOW")+mutedStyle.Render(" v"+Version))
	fmt.Fprintln(w, mutedStyle.Render("  Agent-based epidemic simulator"))
	fmt.Fprintln(w)
}

// PrintSection prints an accented section heading.
func PrintSection(w io.Writer, title string) {
	fmt.Fprintln(w)
	fmt.Fprintln(w, accentStyle.Render("▸ "+title))
}

// PrintField prints one muted label with a bold value.
func PrintField(w io.Writer, label string, value interface{}) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(label+":"), titleStyle.Render(fmt.Sprint(value)))
}

// PrintPath prints a label with a code-styled path.
func PrintPath(w io.Writer, label, path string) {
	fmt.Fprintf(w, "  %s %s\n", mutedStyle.Render(label+":"), codeStyle.Render(path))
}

// PrintError prints a failure line.
func PrintError(w io.Writer, err error) {
	fmt.Fprintln(w, accentStyle.Render("  ✗ "+err.Error()))
}

// RenderCensus renders one cycle's census as a table with a row per
// health status in display order.
func RenderCensus(cycle uint32, counts model.HealthCounts) string {
	total := counts.Total()
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("STATUS", "AGENTS", "SHARE").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1)
		})
	for _, s := range model.AllHealthStatuses {
		t.Row(healthStyles[s].Render(s.String()), strconv.Itoa(counts[s]), formatShare(counts[s], total))
	}
	return fmt.Sprintf(" Cycle: %d\n%s", cycle, t.Render())
}

// RunSummary holds everything printed after a run.
type RunSummary struct {
	RunID                string
	Seed                 uint64
	Population           int
	Locations            int
	Cycles               int
	Final                model.HealthCounts
	PeakInfected         int
	PeakCycle            int
	Duration             time.Duration
	CyclesPerSecond      float64
	AgentCyclesPerSecond float64
	Interrupted          bool
}

// PrintRunSummary prints the final state and throughput of a run.
func PrintRunSummary(w io.Writer, s *RunSummary) {
	fmt.Fprintln(w)
	if s.Interrupted {
		fmt.Fprintln(w, accentStyle.Render("  ✗ SIMULATION INTERRUPTED"))
	} else {
		fmt.Fprintln(w, successStyle.Render("  ✓ SIMULATION COMPLETE"))
	}
	fmt.Fprintln(w)
	if s.RunID != "" {
		PrintField(w, "Run", s.RunID)
	}
	PrintField(w, "Seed", s.Seed)
	PrintField(w, "Population", formatNumber(int64(s.Population)))
	PrintField(w, "Locations", formatNumber(int64(s.Locations)))
	PrintField(w, "Cycles", s.Cycles)
	PrintField(w, "Peak infected", fmt.Sprintf("%s (cycle %d)", formatNumber(int64(s.PeakInfected)), s.PeakCycle))
	fmt.Fprintf(w, "  %s %s %s\n",
		mutedStyle.Render("Total time:"),
		titleStyle.Render(formatDuration(s.Duration)),
		mutedStyle.Render(fmt.Sprintf("(%s cycles/sec, %s people/sec)",
			formatNumber(int64(s.CyclesPerSecond)), formatNumber(int64(s.AgentCyclesPerSecond)))))

	fmt.Fprintln(w)
	fmt.Fprintln(w, mutedStyle.Render("  --- Final State ---"))
	total := s.Final.Total()
	for _, st := range model.AllHealthStatuses {
		fmt.Fprintf(w, "  %s %s %s\n",
			healthStyles[st].Render(fmt.Sprintf("%-10s", st.String())),
			titleStyle.Render(fmt.Sprintf("%8d", s.Final[st])),
			mutedStyle.Render(formatShare(s.Final[st], total)))
	}
	fmt.Fprintln(w)
}

// KV is one labelled value of a key/value table.
type KV struct {
	Key   string
	Value string
}

// RenderKV renders a two-column table.
func RenderKV(rows []KV) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return mutedStyle.Padding(0, 1)
			}
			return titleStyle.Padding(0, 1)
		})
	for _, r := range rows {
		t.Row(r.Key, r.Value)
	}
	return t.Render()
}

// StatRow is one aggregated statistic across trials.
type StatRow struct {
	Name string
	Min  float64
	Mean float64
	Max  float64
}

// RenderStats renders min/mean/max rows as a table.
func RenderStats(rows []StatRow) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(mutedStyle).
		Headers("METRIC", "MIN", "MEAN", "MAX").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return titleStyle.Padding(0, 1)
			}
			if col == 0 {
				return mutedStyle.Padding(0, 1)
			}
			return lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
		})
	for _, r := range rows {
		t.Row(r.Name, formatFloat(r.Min), formatFloat(r.Mean), formatFloat(r.Max))
	}
	return t.Render()
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.1fs", d.Seconds())
	}
	return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
}

func formatNumber(n int64) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	if n < 1000000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%.1fM", float64(n)/1000000)
}

func formatShare(n, total int) string {
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", 100*float64(n)/float64(total))
}

func formatFloat(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', 2, 64)
}

// ShowProgress creates a progress bar over cycles.
func ShowProgress(w io.Writer, total int64, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "",
			BarEnd:        "",
		}),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionClearOnFinish(),
	)
}
