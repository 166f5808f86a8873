package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Window      key.Binding
	Filter      key.Binding
	ModelFilter key.Binding
	Refresh     key.Binding
	Pricing     key.Binding
	PriceUp     key.Binding
	PriceDown   key.Binding
	Theme       key.Binding
	Locale      key.Binding
	Dismiss     key.Binding
	Help        key.Binding
	Quit        key.Binding
}

// newKeyMap builds the bindings with help text looked up through t.
func newKeyMap(t func(id string) string) keyMap {
	bind := func(help, id string, keys ...string) key.Binding {
		return key.NewBinding(key.WithKeys(keys...), key.WithHelp(help, t(id)))
	}
	return keyMap{
		Window:      bind("w", "key_window", "w"),
		Filter:      bind("f", "key_filter", "f"),
		ModelFilter: bind("/", "key_model_filter", "/", "m"),
		Refresh:     bind("r", "key_refresh", "r"),
		Pricing:     bind("p", "key_pricing", "p", "tab"),
		PriceUp:     bind("+", "key_price_up", "+", "="),
		PriceDown:   bind("-", "key_price_down", "-", "_"),
		Theme:       bind("t", "key_theme", "t"),
		Locale:      bind("l", "key_locale", "l"),
		Dismiss:     bind("d", "key_dismiss", "d"),
		Help:        bind("?", "key_help", "?"),
		Quit:        bind("q", "key_quit", "q", "ctrl+c"),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Window, k.Filter, k.Refresh, k.Pricing, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Window, k.Filter, k.ModelFilter, k.Refresh},
		{k.Pricing, k.PriceUp, k.PriceDown},
		{k.Theme, k.Locale, k.Dismiss},
		{k.Help, k.Quit},
	}
}
