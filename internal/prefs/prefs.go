// Package prefs persists the dashboard's client-side preferences.
package prefs

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Supported values.
const (
	LocaleEnglish = "en"
	LocaleChinese = "zh"

	ThemeSystem = "system"
	ThemeLight  = "light"
	ThemeDark   = "dark"
)

// Prefs is the content of prefs.yaml.
type Prefs struct {
	Locale                 string `yaml:"locale" json:"locale"`
	Theme                  string `yaml:"theme" json:"theme"`
	DismissedUpdateVersion string `yaml:"dismissedUpdateVersion,omitempty" json:"dismissedUpdateVersion,omitempty"`
}

// Default returns English with the system theme.
func Default() Prefs {
	return Prefs{Locale: LocaleEnglish, Theme: ThemeSystem}
}

// ValidLocale reports whether l is a supported locale.
func ValidLocale(l string) bool { return l == LocaleEnglish || l == LocaleChinese }

// ValidTheme reports whether t is a supported theme.
func ValidTheme(t string) bool { return t == ThemeSystem || t == ThemeLight || t == ThemeDark }

// Store reads and writes a prefs file.
type Store struct {
	path string
}

// NewStore returns a store for the file at path.
func NewStore(path string) *Store { return &Store{path: path} }

// Path returns the file location.
func (s *Store) Path() string { return s.path }

// Load reads the file. Missing, unreadable or corrupt files yield the
// defaults, and unsupported values fall back field by field.
func (s *Store) Load() Prefs {
	p := Default()
	data, err := os.ReadFile(s.path)
	if err != nil {
		return p
	}
	var raw Prefs
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return p
	}
	if ValidLocale(raw.Locale) {
		p.Locale = raw.Locale
	}
	if ValidTheme(raw.Theme) {
		p.Theme = raw.Theme
	}
	p.DismissedUpdateVersion = raw.DismissedUpdateVersion
	return p
}

// Save writes p atomically.
func (s *Store) Save(p Prefs) error {
	if !ValidLocale(p.Locale) {
		return fmt.Errorf("unsupported locale %q", p.Locale)
	}
	if !ValidTheme(p.Theme) {
		return fmt.Errorf("unsupported theme %q", p.Theme)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create prefs dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".prefs-*.yaml")
	if err != nil {
		return fmt.Errorf("create temp prefs: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write prefs: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("replace prefs: %w", err)
	}
	return nil
}

// Update loads, applies fn and saves.
func (s *Store) Update(fn func(*Prefs)) (Prefs, error) {
	p := s.Load()
	fn(&p)
	return p, s.Save(p)
}
