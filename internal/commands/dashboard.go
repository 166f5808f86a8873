package commands

import (
	"vibemon/internal/i18n"
	"vibemon/internal/livesync"
	"vibemon/internal/output"
	"vibemon/internal/tui"
	"vibemon/internal/update"
)

// RunDashboard opens the live dashboard until the user quits.
func RunDashboard() {
	a, err := loadApp(true)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	push, err := a.newPush()
	if err != nil {
		output.PrintError(err)
		return
	}
	defer push.Close()

	p := a.prefs.Load()
	tr, err := i18n.New(p.Locale)
	if err != nil {
		a.logger.Warn("translations unavailable", "error", err)
	}
	f := a.newFeeds(push, livesync.Filter{}, nil)

	defer a.startAlerts(false, push, f.stream, f.proxy)()

	err = tui.Run(tui.Options{
		Stream:   f.stream,
		Summary:  f.summary,
		Proxy:    f.proxy,
		Pricing:  f.pricing,
		Push:     push,
		Prefs:    a.prefs,
		Notifier: update.NewNotifier(Version, p.DismissedUpdateVersion),
		Tr:       tr,
		Limit:    a.cfg.Limit,
		Logger:   a.logger,
	})
	if err != nil {
		output.PrintError(err)
	}
}
