package commands

import (
	"fmt"
	"path/filepath"

	"vibemon/internal/config"
	"vibemon/internal/output"
	"vibemon/internal/prefs"
	"vibemon/internal/ui"
)

// prefsStore returns the prefs file kept next to the config file.
func prefsStore() *prefs.Store {
	if ConfigFlag != "" {
		config.ConfigPath = ConfigFlag
	}
	return prefs.NewStore(filepath.Join(filepath.Dir(config.ConfigPath), "prefs.yaml"))
}

// RunPrefsShow prints the stored preferences.
func RunPrefsShow() {
	store := prefsStore()
	p := store.Load()
	output.Print(p, func() { printPrefs(store.Path(), p) })
}

// RunPrefsSetLocale persists the dashboard locale.
func RunPrefsSetLocale(locale string) {
	if !prefs.ValidLocale(locale) {
		output.PrintError(fmt.Errorf("unsupported locale %q (want %s or %s)", locale, prefs.LocaleEnglish, prefs.LocaleChinese))
		return
	}
	updatePrefs(func(p *prefs.Prefs) { p.Locale = locale })
}

// RunPrefsSetTheme persists the dashboard theme.
func RunPrefsSetTheme(theme string) {
	if !prefs.ValidTheme(theme) {
		output.PrintError(fmt.Errorf("unsupported theme %q (want system, light or dark)", theme))
		return
	}
	updatePrefs(func(p *prefs.Prefs) { p.Theme = theme })
}

func updatePrefs(fn func(*prefs.Prefs)) {
	store := prefsStore()
	p, err := store.Update(fn)
	if err != nil {
		output.PrintError(err)
		return
	}
	output.Print(p, func() {
		ui.ShowSuccess("Preferences saved")
		printPrefs(store.Path(), p)
	})
}

func printPrefs(path string, p prefs.Prefs) {
	ui.ShowHeader("Preferences")
	ui.ShowField("Locale", p.Locale)
	ui.ShowField("Theme", p.Theme)
	if p.DismissedUpdateVersion != "" {
		ui.ShowField("Dismissed update", p.DismissedUpdateVersion)
	}
	ui.ShowField("File", path)
}
