package tui

import (
	"log/slog"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"vibemon/internal/i18n"
	"vibemon/internal/livesync"
	"vibemon/internal/prefs"
	"vibemon/internal/pushconn"
	"vibemon/internal/stats"
	"vibemon/internal/update"
)

// Options wires the dashboard to the live feeds. Any feed may be nil.
type Options struct {
	Stream   *livesync.InvocationStream
	Summary  *livesync.SummaryFeed
	Proxy    *livesync.ForwardProxyFeed
	Pricing  *livesync.PricingEditor
	Push     pushconn.Source
	Prefs    *prefs.Store
	Notifier *update.Notifier
	Tr       *i18n.Translator
	Limit    int
	Logger   *slog.Logger
}

type panelFocus int

const (
	focusRecords panelFocus = iota
	focusPricing
)

// Feed snapshots delivered from OnChange callbacks.
type (
	streamMsg  livesync.StreamState
	summaryMsg livesync.SummaryState
	proxyMsg   livesync.ForwardProxyState
	pricingMsg livesync.PricingState
	statusMsg  pushconn.Status
	noticeMsg  struct{}
)

var statusFilters = []string{"", "success", "failed"}

// Model is the dashboard.
type Model struct {
	opts   Options
	tr     *i18n.Translator
	prefs  prefs.Prefs
	keys   keyMap
	styles styles
	help   help.Model
	spin   spinner.Model
	table  table.Model
	input  textinput.Model
	logger *slog.Logger

	width, height int
	focus         panelFocus
	priceCursor   int
	filter        int
	modelFilter   string
	editingModel  bool

	status  pushconn.Status
	stream  livesync.StreamState
	summary livesync.SummaryState
	proxy   livesync.ForwardProxyState
	pricing livesync.PricingState
	notice  string
}

// NewModel builds the dashboard with its initial state.
func NewModel(opts Options) Model {
	p := prefs.Default()
	if opts.Prefs != nil {
		p = opts.Prefs.Load()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m := Model{
		opts:   opts,
		tr:     opts.Tr,
		prefs:  p,
		help:   help.New(),
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		logger: logger,
		status: pushconn.StatusClosed,
	}
	if opts.Push != nil {
		m.status = opts.Push.Status()
	}
	if m.tr != nil && m.tr.Lang() != p.Locale {
		if err := m.tr.SetLanguage(p.Locale); err != nil {
			logger.Warn("locale unavailable", "locale", p.Locale, "error", err)
		}
	}
	m.styles = newStyles(p.Theme)
	m.keys = newKeyMap(m.t)
	m.input = textinput.New()
	m.input.Placeholder = m.t("model_filter_placeholder")
	m.input.CharLimit = 100
	m.table = table.New(
		table.WithColumns(m.columns(80)),
		table.WithFocused(true),
		table.WithHeight(10),
		table.WithStyles(m.styles.table),
	)
	m.snapshot()
	return m
}

// snapshot pulls the current state of every feed.
func (m *Model) snapshot() {
	if m.opts.Stream != nil {
		m.stream = m.opts.Stream.State()
		m.table.SetRows(m.rows())
	}
	if m.opts.Summary != nil {
		m.summary = m.opts.Summary.State()
	}
	if m.opts.Proxy != nil {
		m.proxy = m.opts.Proxy.State()
	}
	if m.opts.Pricing != nil {
		m.pricing = m.opts.Pricing.State()
	}
	if m.opts.Notifier != nil {
		m.notice, _ = m.opts.Notifier.Notice()
	}
}

func (m Model) Init() tea.Cmd {
	return m.spin.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.resize()
		return m, nil

	case tea.FocusMsg:
		if m.opts.Stream != nil {
			m.opts.Stream.SetVisible(true)
		}
		return m, nil

	case tea.BlurMsg:
		if m.opts.Stream != nil {
			m.opts.Stream.SetVisible(false)
		}
		return m, nil

	case streamMsg:
		m.stream = livesync.StreamState(msg)
		m.table.SetRows(m.rows())
		return m, nil

	case summaryMsg:
		m.summary = livesync.SummaryState(msg)
		return m, nil

	case proxyMsg:
		m.proxy = livesync.ForwardProxyState(msg)
		return m, nil

	case pricingMsg:
		m.pricing = livesync.PricingState(msg)
		m.priceCursor = clamp(m.priceCursor, 0, len(m.pricing.Draft.Entries)-1)
		// Costs shown in the table depend on the draft.
		m.table.SetRows(m.rows())
		return m, nil

	case statusMsg:
		m.status = pushconn.Status(msg)
		return m, nil

	case noticeMsg:
		if m.opts.Notifier != nil {
			m.notice, _ = m.opts.Notifier.Notice()
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.editingModel {
		return m.updateModelInput(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
		m.resize()

	case key.Matches(msg, m.keys.Window):
		next := nextOf(livesync.Windows, m.summary.Window)
		m.summary.Window = next
		if m.opts.Summary != nil {
			m.opts.Summary.SetWindow(next)
		}

	case key.Matches(msg, m.keys.Filter):
		m.filter = (m.filter + 1) % len(statusFilters)
		m.applyFilter()

	case key.Matches(msg, m.keys.ModelFilter):
		m.editingModel = true
		m.input.SetValue(m.modelFilter)
		m.input.CursorEnd()
		cmd := m.input.Focus()
		return m, cmd

	case key.Matches(msg, m.keys.Refresh):
		if m.opts.Stream != nil {
			m.opts.Stream.Refresh()
		}
		if m.opts.Summary != nil {
			m.opts.Summary.Refresh()
		}
		if m.opts.Proxy != nil {
			m.opts.Proxy.Refresh()
		}

	case key.Matches(msg, m.keys.Pricing):
		if m.focus == focusPricing {
			m.focus = focusRecords
			m.table.Focus()
		} else {
			m.focus = focusPricing
			m.table.Blur()
		}

	case key.Matches(msg, m.keys.PriceUp):
		m.adjustPrice(1.1)

	case key.Matches(msg, m.keys.PriceDown):
		m.adjustPrice(1 / 1.1)

	case key.Matches(msg, m.keys.Theme):
		m.prefs.Theme = nextOf([]string{prefs.ThemeSystem, prefs.ThemeLight, prefs.ThemeDark}, m.prefs.Theme)
		m.styles = newStyles(m.prefs.Theme)
		m.table.SetStyles(m.styles.table)
		m.savePrefs()

	case key.Matches(msg, m.keys.Locale):
		m.prefs.Locale = nextOf([]string{prefs.LocaleEnglish, prefs.LocaleChinese}, m.prefs.Locale)
		if m.tr != nil {
			if err := m.tr.SetLanguage(m.prefs.Locale); err != nil {
				m.logger.Warn("switch locale", "error", err)
			}
		}
		m.keys = newKeyMap(m.t)
		m.input.Placeholder = m.t("model_filter_placeholder")
		m.table.SetColumns(m.columns(m.width))
		m.savePrefs()

	case key.Matches(msg, m.keys.Dismiss):
		if m.notice != "" && m.opts.Notifier != nil {
			m.prefs.DismissedUpdateVersion = m.opts.Notifier.Dismiss()
			m.notice = ""
			m.savePrefs()
		}

	case m.focus == focusPricing:
		switch msg.String() {
		case "up", "k":
			m.priceCursor = clamp(m.priceCursor-1, 0, len(m.pricing.Draft.Entries)-1)
		case "down", "j":
			m.priceCursor = clamp(m.priceCursor+1, 0, len(m.pricing.Draft.Entries)-1)
		}

	default:
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd
	}
	return m, nil
}

// updateModelInput edits the model filter; enter applies it, esc
// leaves the current filter in place.
func (m Model) updateModelInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		m.modelFilter = strings.TrimSpace(m.input.Value())
		m.editingModel = false
		m.input.Blur()
		m.applyFilter()
		return m, nil
	case tea.KeyEsc:
		m.editingModel = false
		m.input.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) applyFilter() {
	if m.opts.Stream != nil {
		m.opts.Stream.SetQuery(m.opts.Limit, m.currentFilter())
	}
}

func (m Model) currentFilter() livesync.Filter {
	return livesync.Filter{Model: m.modelFilter, Status: statusFilters[m.filter]}
}

// adjustPrice scales the selected entry's prices and saves the table.
func (m *Model) adjustPrice(factor float64) {
	if m.focus != focusPricing || m.opts.Pricing == nil {
		return
	}
	entries := m.pricing.Draft.Entries
	if m.priceCursor < 0 || m.priceCursor >= len(entries) {
		return
	}
	e := entries[m.priceCursor]
	e.InputPer1M = roundPrice(e.InputPer1M * factor)
	e.OutputPer1M = roundPrice(e.OutputPer1M * factor)
	if e.CacheInputPer1M != nil {
		v := roundPrice(*e.CacheInputPer1M * factor)
		e.CacheInputPer1M = &v
	}
	if e.ReasoningPer1M != nil {
		v := roundPrice(*e.ReasoningPer1M * factor)
		e.ReasoningPer1M = &v
	}
	next := m.pricing.Draft.Upsert(e)
	// The editor applies the draft optimistically; mirror it so the
	// next keypress builds on it.
	m.pricing.Draft = next
	m.opts.Pricing.Save(next)
}

func (m *Model) savePrefs() {
	if m.opts.Prefs == nil {
		return
	}
	if err := m.opts.Prefs.Save(m.prefs); err != nil {
		m.logger.Warn("save prefs", "error", err)
	}
}

func (m *Model) resize() {
	innerWidth := m.width - 4
	m.help.Width = innerWidth
	m.table.SetColumns(m.columns(m.tableWidth()))
	// header(1) + banner(1) + cards(4) + gaps(3) + help(2) + app padding(2)
	h := m.height - 13
	if m.help.ShowAll {
		h -= 3
	}
	m.table.SetHeight(max(3, h))
}

func (m Model) tableWidth() int {
	w := m.width - 4
	if w >= 100 {
		return w * 3 / 5
	}
	return w
}

func (m Model) columns(width int) []table.Column {
	if width <= 0 {
		width = 80
	}
	fixed := 10 + 10 + 9 + 10 + 9
	model := max(12, width-fixed-12)
	return []table.Column{
		{Title: m.t("col_time"), Width: 10},
		{Title: m.t("col_model"), Width: model},
		{Title: m.t("col_status"), Width: 10},
		{Title: m.t("col_tokens"), Width: 9},
		{Title: m.t("col_cost"), Width: 10},
		{Title: m.t("col_latency"), Width: 9},
	}
}

func (m Model) rows() []table.Row {
	pricing := m.pricing.Draft
	rows := make([]table.Row, 0, len(m.stream.Records))
	for _, r := range m.stream.Records {
		rows = append(rows, table.Row{
			recordTime(r),
			shortModel(r),
			r.StatusName(),
			formatTokens(r.Tokens()),
			formatCost(stats.CostOf(r, &pricing)),
			formatLatency(r),
		})
	}
	return rows
}

func (m Model) t(id string) string { return m.tr.T(id, nil) }

func nextOf(list []string, cur string) string {
	for i, v := range list {
		if v == cur {
			return list[(i+1)%len(list)]
		}
	}
	return list[0]
}

func clamp(v, lo, hi int) int {
	if hi < lo {
		return lo
	}
	return min(max(v, lo), hi)
}

func roundPrice(v float64) float64 {
	return math.Round(v*10000) / 10000
}
