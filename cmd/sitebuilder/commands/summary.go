package commands

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/eventstore"
	"git.home.luguber.info/inful/sitebuilder/internal/revision"
	"git.home.luguber.info/inful/sitebuilder/internal/site"
)

var (
	headStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#5B8DEF"))
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))
	okStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	failStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF6B6B"))
	boxStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444444")).Padding(0, 1)
)

func status(ok bool) string {
	if ok {
		return okStyle.Render("ok")
	}
	return failStyle.Render("FAILED")
}

func cell(s string, width int) string {
	return lipgloss.NewStyle().Width(width).Render(s)
}

func row(cols ...string) string {
	widths := []int{10, 8, 10, 8, 8, 8, 10}
	var b strings.Builder
	for i, c := range cols {
		w := 12
		if i < len(widths) {
			w = widths[i]
		}
		b.WriteString(cell(c, w))
	}
	return strings.TrimRight(b.String(), " ")
}

func stepHeader() string {
	return headStyle.Render(row("step", "status", "processed", "cached", "written", "removed", "time"))
}

func stepRow(step string, ok bool, r site.Report, d time.Duration) string {
	return row(step, status(ok),
		fmt.Sprint(r.Processed), fmt.Sprint(r.Cached), fmt.Sprint(r.Written), fmt.Sprint(r.Removed),
		d.Round(time.Millisecond).String())
}

func renderSteps(steps []events.StepFinished) string {
	lines := []string{stepHeader()}
	for _, s := range steps {
		lines = append(lines, stepRow(s.Category.Step(), s.Succeeded(), s.Report, s.Duration))
		if !s.Succeeded() {
			lines = append(lines, failStyle.Render("  "+s.Err))
		}
	}
	return strings.Join(lines, "\n")
}

func renderBuild(b events.BuildFinished) string {
	title := fmt.Sprintf("Build %s  %s  %s", short(b.BuildID), b.Mode, status(b.Succeeded()))
	lines := []string{headStyle.Render(title)}
	if b.Revision != "" {
		lines = append(lines, dimStyle.Render("revision "+revision.Short(b.Revision)))
	}
	lines = append(lines, "", renderSteps(b.Steps), "",
		dimStyle.Render("finished in "+b.Duration.Round(time.Millisecond).String()))
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderHistory(builds []eventstore.BuildRecord) string {
	if len(builds) == 0 {
		return dimStyle.Render("No builds recorded yet")
	}
	lines := []string{headStyle.Render(fmt.Sprintf("%-38s %-20s %-12s %-9s %-8s %s",
		"build", "finished", "mode", "revision", "status", "time"))}
	for _, b := range builds {
		lines = append(lines, fmt.Sprintf("%-38s %-20s %-12s %-9s %-8s %s",
			b.ID,
			b.FinishedAt.Local().Format("2006-01-02 15:04:05"),
			b.Mode,
			revision.Short(b.Revision),
			status(b.Err == ""),
			b.Duration.Round(time.Millisecond)))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func renderStepRecords(steps []eventstore.StepRecord) string {
	lines := []string{stepHeader()}
	for _, s := range steps {
		lines = append(lines, stepRow(s.Step, s.Err == "", s.Report, s.Duration))
		if s.Err != "" {
			lines = append(lines, failStyle.Render("  "+s.Err))
		}
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
