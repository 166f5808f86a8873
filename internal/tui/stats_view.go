package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"vibemon/internal/stats"
	"vibemon/internal/ui"
)

// renderSummary renders the aggregate cards for the selected window.
func (m Model) renderSummary(width int) string {
	st := m.summary
	window := fmt.Sprintf("%s: %s", m.t("window_label"), st.Window)
	title := m.styles.section.Render(window)
	if st.Loading {
		title += " " + m.spin.View()
	}

	if st.Summary == nil {
		body := m.styles.muted.Render(m.t("loading"))
		if st.Err != nil {
			body = m.styles.err.Render(m.tr.T("fetch_error", map[string]any{"Error": st.Err}))
		}
		return title + "\n" + body
	}

	s := st.Summary
	cards := []struct{ label, value string }{
		{m.t("summary_requests"), fmt.Sprintf("%d", s.TotalCount)},
		{m.t("summary_success_rate"), ui.FormatPercent(s.SuccessRate())},
		{m.t("summary_failures"), fmt.Sprintf("%d", s.FailureCount)},
		{m.t("summary_cost"), ui.FormatCost(s.TotalCost)},
		{m.t("summary_tokens"), ui.FormatTokens(s.TotalTokens)},
	}
	cardWidth := max(12, (width-len(cards)*4)/len(cards))
	rendered := make([]string, len(cards))
	for i, c := range cards {
		rendered[i] = m.styles.card.Width(cardWidth).Render(
			m.styles.cardLabel.Render(c.label) + "\n" + m.styles.cardValue.Render(c.value))
	}
	out := title + "\n" + lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
	if st.Err != nil {
		out += "\n" + m.styles.err.Render(m.tr.T("fetch_error", map[string]any{"Error": st.Err}))
	}
	return out
}

// renderBreakdown renders per-model cost bars.
func (m Model) renderBreakdown(b *strings.Builder, entries []stats.ModelCost, total float64, barWidth, maxEntries int) {
	if len(entries) > maxEntries {
		entries = entries[:maxEntries]
	}

	maxNameLen := 0
	for _, e := range entries {
		maxNameLen = max(maxNameLen, len(ui.ShortenModel(e.Model)))
	}
	maxNameLen = min(maxNameLen, 20)

	for _, e := range entries {
		pct := 0.0
		filled := 0
		if total > 0 {
			pct = e.Cost / total * 100
			filled = int(math.Round(float64(barWidth) * e.Cost / total))
		}
		filled = min(max(filled, 0), barWidth)

		bar := m.styles.barFilled.Render(strings.Repeat("█", filled)) +
			m.styles.barEmpty.Render(strings.Repeat("░", barWidth-filled))

		name := ui.ShortenModel(e.Model)
		if len(name) > maxNameLen {
			name = name[:maxNameLen]
		}
		fmt.Fprintf(b, "%s  %-*s  %8s  %s\n",
			bar,
			maxNameLen, name,
			ui.FormatCost(e.Cost),
			m.styles.muted.Render(fmt.Sprintf("(%4.1f%%)", pct)))
	}
}

func recordTime(r stats.Invocation) string {
	t := r.Time()
	if t.IsZero() {
		return r.OccurredAt
	}
	return t.In(time.Local).Format("15:04:05")
}

func shortModel(r stats.Invocation) string {
	if name := r.ModelName(); name != "" {
		return ui.ShortenModel(name)
	}
	return "-"
}

func formatTokens(n int64) string { return ui.FormatTokens(n) }

func formatCost(c float64) string { return ui.FormatCost(c) }

func formatLatency(r stats.Invocation) string {
	if r.Latency == nil {
		return "-"
	}
	return ui.FormatLatency(r.Latency.TotalMs)
}
