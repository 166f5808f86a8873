// Package i18n localizes dashboard labels.
package i18n

import (
	"embed"
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"
)

//go:embed locales/*.toml
var localeFS embed.FS

var localeFiles = []string{"locales/active.en.toml", "locales/active.zh.toml"}

// Translator looks up messages for the active language.
type Translator struct {
	bundle *i18n.Bundle

	mu        sync.RWMutex
	lang      string
	localizer *i18n.Localizer
}

// New loads the embedded message files and selects lang.
func New(lang string) (*Translator, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)
	for _, f := range localeFiles {
		if _, err := bundle.LoadMessageFileFS(localeFS, f); err != nil {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	t := &Translator{bundle: bundle}
	if err := t.SetLanguage(lang); err != nil {
		return nil, err
	}
	return t, nil
}

// SetLanguage switches to lang, which must be one of Languages.
func (t *Translator) SetLanguage(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return fmt.Errorf("language %q: %w", lang, err)
	}
	for _, supported := range t.bundle.LanguageTags() {
		base, _ := supported.Base()
		want, _ := tag.Base()
		if base == want {
			t.mu.Lock()
			t.lang = base.String()
			t.localizer = i18n.NewLocalizer(t.bundle, supported.String())
			t.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("language %q not supported", lang)
}

// Lang returns the active base language, e.g. "zh".
func (t *Translator) Lang() string {
	if t == nil {
		return ""
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.lang
}

// Languages lists the loaded languages.
func (t *Translator) Languages() []string {
	var out []string
	for _, tag := range t.bundle.LanguageTags() {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

// T returns the message id rendered with data. Unknown ids, and any id
// on a nil Translator, render as the id itself.
func (t *Translator) T(id string, data map[string]any) string {
	if t == nil {
		return id
	}
	t.mu.RLock()
	loc := t.localizer
	t.mu.RUnlock()

	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, TemplateData: data})
	if err != nil || msg == "" {
		return id
	}
	return msg
}

// N is T for plural messages; count is also available as {{.Count}}.
func (t *Translator) N(id string, count int, data map[string]any) string {
	if t == nil {
		return id
	}
	t.mu.RLock()
	loc := t.localizer
	t.mu.RUnlock()

	if data == nil {
		data = map[string]any{}
	}
	data["Count"] = count
	msg, err := loc.Localize(&i18n.LocalizeConfig{MessageID: id, PluralCount: count, TemplateData: data})
	if err != nil || msg == "" {
		return id
	}
	return msg
}
