package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Out is where the Show helpers write.
var Out io.Writer = os.Stdout

func ShowHeader(title string) {
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
	fmt.Fprintf(Out, " %s\n", title)
	fmt.Fprintf(Out, " %s\n", strings.Repeat("─", len(title)+2))
}

// ShowField prints an aligned label/value pair.
func ShowField(label, value string) {
	fmt.Fprintf(Out, "  %-16s %s\n", label+":", value)
}

func ShowSuccess(format string, args ...any) {
	fmt.Fprintf(Out, " ✓ %s\n", fmt.Sprintf(format, args...))
}

func ShowError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(Out, " ✗ %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(Out, " ✗ %s\n", msg)
	}
}

func ShowWarning(format string, args ...any) {
	fmt.Fprintf(Out, " ! %s\n", fmt.Sprintf(format, args...))
}

func ShowInfo(format string, args ...any) {
	fmt.Fprintf(Out, " ℹ %s\n", fmt.Sprintf(format, args...))
}

func FormatCost(cost float64) string {
	if cost > 0 && cost < 0.01 {
		return fmt.Sprintf("$%.4f", cost)
	}
	return fmt.Sprintf("$%.2f", cost)
}

func FormatTokens(n int64) string {
	if n >= 1_000_000 {
		return fmt.Sprintf("%.1fM", float64(n)/1_000_000)
	}
	if n >= 1_000 {
		return fmt.Sprintf("%.1fK", float64(n)/1_000)
	}
	return fmt.Sprintf("%d", n)
}

// FormatLatency renders milliseconds; nil renders as "-".
func FormatLatency(ms *float64) string {
	switch {
	case ms == nil:
		return "-"
	case *ms >= 1000:
		return fmt.Sprintf("%.1fs", *ms/1000)
	default:
		return fmt.Sprintf("%.0fms", *ms)
	}
}

// FormatPercent renders a 0..1 ratio.
func FormatPercent(r float64) string {
	return fmt.Sprintf("%.1f%%", r*100)
}

// ShortenModel strips vendor prefixes for narrow columns.
func ShortenModel(model string) string {
	for _, prefix := range []string{"openai/", "anthropic/", "models/"} {
		model = strings.TrimPrefix(model, prefix)
	}
	replacements := []struct{ prefix, short string }{
		{"claude-opus-4-", "opus-4-"},
		{"claude-sonnet-4-", "sonnet-4-"},
		{"claude-3-5-sonnet-", "sonnet-3.5-"},
		{"claude-3-5-haiku-", "haiku-3.5-"},
	}
	for _, r := range replacements {
		if strings.HasPrefix(model, r.prefix) {
			return r.short + model[len(r.prefix):]
		}
	}
	return model
}
