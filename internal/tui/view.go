package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"vibemon/internal/pushconn"
	"vibemon/internal/ui"
)

func (m Model) View() string {
	if m.width == 0 {
		return m.t("loading") + "..."
	}

	innerWidth := m.width - 4
	var b strings.Builder

	b.WriteString(m.renderHeader(innerWidth))
	b.WriteString("\n")
	if m.notice != "" {
		b.WriteString(m.styles.banner.Render(m.tr.T("update_available", map[string]any{"Version": m.notice})))
		b.WriteString("\n")
	}
	b.WriteString(m.renderSummary(innerWidth))
	b.WriteString("\n\n")

	records := m.renderRecords()
	if tw := m.tableWidth(); tw < innerWidth {
		side := innerWidth - tw - 2
		right := m.renderProxy(side) + "\n\n" + m.renderPricing(side)
		b.WriteString(lipgloss.JoinHorizontal(
			lipgloss.Top,
			lipgloss.NewStyle().Width(tw).Render(records),
			lipgloss.NewStyle().Width(side).MarginLeft(2).Render(right),
		))
	} else {
		b.WriteString(records)
		b.WriteString("\n\n")
		b.WriteString(m.renderProxy(innerWidth))
		b.WriteString("\n\n")
		b.WriteString(m.renderPricing(innerWidth))
	}

	b.WriteString("\n")
	b.WriteString(m.styles.help.Render(m.help.View(m.keys)))
	return m.styles.app.Render(b.String())
}

func (m Model) renderHeader(width int) string {
	title := m.styles.title.Render(" ◉ " + m.t("app_title") + " ")
	badge := m.statusBadge()
	gap := strings.Repeat(" ", max(0, width-lipgloss.Width(title)-lipgloss.Width(badge)))
	return title + gap + badge
}

func (m Model) statusBadge() string {
	switch m.status {
	case pushconn.StatusOpen:
		return m.styles.ok.Render("● " + m.t("status_open"))
	case pushconn.StatusConnecting:
		return m.styles.warn.Render(m.spin.View() + " " + m.t("status_connecting"))
	case pushconn.StatusDisabled:
		return m.styles.err.Render("● " + m.t("status_disabled"))
	}
	return m.styles.warn.Render("○ " + m.t("status_closed"))
}

func (m Model) renderRecords() string {
	var b strings.Builder
	filter := statusFilters[m.filter]
	if filter == "" {
		filter = m.t("filter_all")
	}
	title := m.styles.section.Render(m.t("records_title"))
	meta := fmt.Sprintf("  %s: %s", m.t("filter_label"), filter)
	if m.modelFilter != "" {
		meta += " · " + m.modelFilter
	}
	meta += "  " + m.tr.N("records_count", len(m.stream.Records), nil)
	b.WriteString(title + m.styles.muted.Render(meta))
	if m.stream.Loading {
		b.WriteString(" " + m.spin.View())
	}
	b.WriteString("\n")
	if m.editingModel {
		b.WriteString(m.t("model_filter_label") + ": " + m.input.View() + "\n")
	}

	switch {
	case m.stream.Err != nil && !m.stream.HasData:
		b.WriteString(m.styles.err.Render(m.tr.T("fetch_error", map[string]any{"Error": m.stream.Err})))
	case !m.stream.HasData && !m.stream.Loading:
		b.WriteString(m.styles.muted.Render(m.t("no_records")))
	default:
		b.WriteString(m.table.View())
	}
	return b.String()
}

func (m Model) renderProxy(width int) string {
	var b strings.Builder
	b.WriteString(m.styles.section.Render(m.t("proxy_title")))
	st := m.proxy
	if st.Loading {
		b.WriteString(" " + m.spin.View())
	}
	if st.Stats != nil && len(st.Stats.Nodes) > 0 {
		b.WriteString(m.styles.muted.Render("  " + m.tr.T("proxy_healthy", map[string]any{
			"Healthy": st.Stats.Healthy(),
			"Total":   len(st.Stats.Nodes),
		})))
	}
	b.WriteString("\n")

	if st.Err != nil {
		b.WriteString(m.styles.err.Render(m.tr.T("fetch_error", map[string]any{"Error": st.Err})))
		b.WriteString("\n")
	}
	if st.Stats == nil {
		if st.Err == nil {
			b.WriteString(m.styles.muted.Render(m.t("loading")))
		}
		return b.String()
	}
	if len(st.Stats.Nodes) == 0 {
		b.WriteString(m.styles.muted.Render(m.t("proxy_none")))
		return b.String()
	}

	nameWidth := max(8, min(24, width-30))
	for _, n := range st.Stats.Nodes {
		dot := m.styles.ok.Render("●")
		if !n.Healthy {
			dot = m.styles.err.Render("●")
		}
		name := n.Name
		if len(name) > nameWidth {
			name = name[:nameWidth]
		}
		fmt.Fprintf(&b, "%s %-*s %5d req %4d err %7s\n",
			dot, nameWidth, name, n.Requests1m, n.Failures1m, ui.FormatLatency(n.AvgLatencyMs))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m Model) renderPricing(width int) string {
	var b strings.Builder
	title := m.t("pricing_title")
	if m.focus == focusPricing {
		title = "▸ " + title
	}
	b.WriteString(m.styles.section.Render(title))
	if m.pricing.Saving {
		b.WriteString(" " + m.styles.warn.Render(m.t("pricing_saving")))
	}
	b.WriteString("\n")
	if m.pricing.Err != nil {
		b.WriteString(m.styles.err.Render(m.tr.T("fetch_error", map[string]any{"Error": m.pricing.Err})))
		b.WriteString("\n")
	}

	entries := m.pricing.Draft.Entries
	if len(entries) == 0 {
		b.WriteString(m.styles.muted.Render(m.t("pricing_empty")))
	}
	nameWidth := max(8, min(24, width-24))
	for i, e := range entries {
		name := e.Model
		if len(name) > nameWidth {
			name = name[:nameWidth]
		}
		line := fmt.Sprintf("%-*s %9s %9s", nameWidth, name,
			fmt.Sprintf("$%.4g", e.InputPer1M), fmt.Sprintf("$%.4g", e.OutputPer1M))
		if m.focus == focusPricing && i == m.priceCursor {
			line = m.styles.selected.Render(line)
		}
		b.WriteString(line + "\n")
	}

	if s := m.summary.Summary; s != nil && len(s.ByModel) > 0 {
		b.WriteString("\n")
		m.renderBreakdown(&b, s.ByModel, s.TotalCost, max(6, min(width-40, 20)), 6)
	}
	return strings.TrimRight(b.String(), "\n")
}
