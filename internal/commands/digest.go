package commands

import (
	"context"
	"errors"

	"vibemon/internal/notify"
	"vibemon/internal/output"
	"vibemon/internal/ui"
)

// RunDigest sends the usage digest once through the configured senders.
func RunDigest(window string, desktop bool) {
	a, err := loadApp(false)
	if err != nil {
		output.PrintError(err)
		return
	}
	defer a.Close()

	sender := a.alertSender(desktop)
	if sender == nil {
		output.PrintError(errors.New("no notification sender configured (set notify.webhook, notify.script or notify.desktop, or pass --desktop)"))
		return
	}
	if window == "" {
		window = a.cfg.Notify.DigestWindow
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*a.cfg.RequestTimeout.D())
	defer cancel()
	if err := notify.NewDigest(a.client, sender, window, a.logger).Send(ctx); err != nil {
		output.PrintError(err)
		return
	}
	output.Print(map[string]string{"window": window, "sender": sender.Name()}, func() {
		ui.ShowSuccess("Digest for %s sent via %s", window, sender.Name())
	})
}
