package notify

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
)

// Desktop returns the desktop notification sender for this platform.
// Where no notification tool is known it sends nothing.
func Desktop() Sender {
	return desktopSender{goos: runtime.GOOS}
}

type desktopSender struct {
	goos string
}

func (d desktopSender) Name() string {
	if _, _, ok := desktopCommand(d.goos, Notification{}); !ok {
		return "noop"
	}
	return "desktop"
}

func (d desktopSender) Send(ctx context.Context, n Notification) error {
	name, args, ok := desktopCommand(d.goos, n)
	if !ok {
		return nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		slog.Debug("desktop notifier not found, skipping", "command", name)
		return nil
	}
	err = exec.CommandContext(ctx, path, args...).Run()
	if err != nil && d.goos == "windows" {
		// Toasts need the WinRT bindings of Windows 10 or later.
		slog.Debug("windows toast failed", "error", err)
		return nil
	}
	return err
}

const windowsToast = `
[Windows.UI.Notifications.ToastNotificationManager, Windows.UI.Notifications, ContentType = WindowsRuntime] > $null
$xml = [Windows.UI.Notifications.ToastNotificationManager]::GetTemplateContent([Windows.UI.Notifications.ToastTemplateType]::ToastText02)
$text = $xml.GetElementsByTagName("text")
$text.Item(0).AppendChild($xml.CreateTextNode(%s)) > $null
$text.Item(1).AppendChild($xml.CreateTextNode(%s)) > $null
[Windows.UI.Notifications.ToastNotificationManager]::CreateToastNotifier("vibemon").Show([Windows.UI.Notifications.ToastNotification]::new($xml))
`

// desktopCommand returns the command that shows n on goos, or false when
// goos has no supported notification tool.
func desktopCommand(goos string, n Notification) (name string, args []string, ok bool) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf("display notification %s with title %s", appleScriptString(n.Message), appleScriptString(n.Title))
		if n.Sound {
			script += ` sound name "Basso"`
		}
		return "osascript", []string{"-e", script}, true
	case "linux", "freebsd", "openbsd", "netbsd":
		args = []string{"--app-name=vibemon"}
		if n.Sound {
			args = append(args, "--hint=string:sound-name:dialog-warning")
		}
		return "notify-send", append(args, "--", n.Title, n.Message), true
	case "windows":
		script := fmt.Sprintf(windowsToast, powerShellString(n.Title), powerShellString(n.Message))
		return "powershell", []string{"-NoProfile", "-NonInteractive", "-Command", script}, true
	}
	return "", nil, false
}

var appleScriptEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

func appleScriptString(s string) string {
	return `"` + appleScriptEscaper.Replace(s) + `"`
}

// powerShellString quotes s as a verbatim single-quoted string.
func powerShellString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}
