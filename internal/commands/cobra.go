package commands

import (
	"github.com/spf13/cobra"

	"vibemon/internal/livesync"
	"vibemon/internal/prefs"
	"vibemon/internal/stats"
)

// TailCmd represents the tail command
var TailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print invocations as they arrive",
	Long:  "Follow the live invocation stream and print each new record once. With --json every record is one JSON line.",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		model, _ := cmd.Flags().GetString("model")
		status, _ := cmd.Flags().GetString("status")
		limit, _ := cmd.Flags().GetInt("limit")
		alerts, _ := cmd.Flags().GetBool("notify")
		RunTail(TailOptions{Model: model, Status: status, Limit: limit, Notify: alerts})
	},
}

// SnapshotCmd represents the snapshot command
var SnapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Show usage, quota and forward-proxy stats once",
	Long:  "Fetch the usage summary for a window together with the latest quota and forward-proxy stats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		window, _ := cmd.Flags().GetString("window")
		RunSnapshot(window)
	},
}

// PricingCmd represents the pricing parent command
var PricingCmd = &cobra.Command{
	Use:   "pricing",
	Short: "Manage model pricing",
	Long:  "Show or edit the per-model prices used to estimate cost",
}

// PricingShowCmd represents the pricing show command
var PricingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the pricing table",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		RunPricingShow()
	},
}

// PricingSetCmd represents the pricing set command
var PricingSetCmd = &cobra.Command{
	Use:   "set <model>",
	Short: "Set the prices of a model",
	Long:  "Add or replace the pricing entry of a model. Prices are USD per 1M tokens.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		entry := stats.PricingEntry{Model: args[0]}
		entry.InputPer1M, _ = cmd.Flags().GetFloat64("input")
		entry.OutputPer1M, _ = cmd.Flags().GetFloat64("output")
		if cmd.Flags().Changed("cache") {
			v, _ := cmd.Flags().GetFloat64("cache")
			entry.CacheInputPer1M = &v
		}
		if cmd.Flags().Changed("reasoning") {
			v, _ := cmd.Flags().GetFloat64("reasoning")
			entry.ReasoningPer1M = &v
		}
		RunPricingSet(entry)
	},
}

// PrefsCmd represents the prefs parent command
var PrefsCmd = &cobra.Command{
	Use:   "prefs",
	Short: "Manage dashboard preferences",
	Long:  "Show or change the dashboard locale and theme",
}

// PrefsShowCmd represents the prefs show command
var PrefsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show preferences",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		RunPrefsShow()
	},
}

// PrefsSetLocaleCmd represents the prefs set-locale command
var PrefsSetLocaleCmd = &cobra.Command{
	Use:       "set-locale <locale>",
	Short:     "Set the dashboard locale",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{prefs.LocaleEnglish, prefs.LocaleChinese},
	Run: func(cmd *cobra.Command, args []string) {
		RunPrefsSetLocale(args[0])
	},
}

// PrefsSetThemeCmd represents the prefs set-theme command
var PrefsSetThemeCmd = &cobra.Command{
	Use:       "set-theme <theme>",
	Short:     "Set the dashboard theme",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{prefs.ThemeSystem, prefs.ThemeLight, prefs.ThemeDark},
	Run: func(cmd *cobra.Command, args []string) {
		RunPrefsSetTheme(args[0])
	},
}

// ValidateProxyCmd represents the validate-proxy command
var ValidateProxyCmd = &cobra.Command{
	Use:   "validate-proxy <url>",
	Short: "Check a forward proxy or subscription",
	Long:  "Ask the backend to probe a forward proxy (http, https, socks5) or, with --subscription, a subscription list",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		subscription, _ := cmd.Flags().GetBool("subscription")
		RunValidateProxy(args[0], subscription)
	},
}

// ForwardProxyCmd represents the forward-proxy parent command
var ForwardProxyCmd = &cobra.Command{
	Use:   "forward-proxy",
	Short: "Manage the backend's forward proxies",
	Long:  "Show or edit the upstream forward-proxy list, subscription and switch stored on the backend",
}

// ForwardProxyShowCmd represents the forward-proxy show command
var ForwardProxyShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show forward-proxy settings",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		RunForwardProxyShow()
	},
}

// ForwardProxySetCmd represents the forward-proxy set command
var ForwardProxySetCmd = &cobra.Command{
	Use:   "set",
	Short: "Edit forward-proxy settings",
	Long:  "Enable or disable the forward proxy, add or remove proxy URLs, or change the subscription",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		var ch ProxyChanges
		flags := cmd.Flags()
		if flags.Changed("enable") {
			v, _ := flags.GetBool("enable")
			ch.Enabled = &v
		}
		if flags.Changed("disable") {
			v, _ := flags.GetBool("disable")
			v = !v
			ch.Enabled = &v
		}
		ch.Add, _ = flags.GetStringSlice("add")
		ch.Remove, _ = flags.GetStringSlice("remove")
		if flags.Changed("subscription") {
			v, _ := flags.GetString("subscription")
			ch.SubscriptionURL = &v
		}
		if flags.Changed("refresh") {
			v, _ := flags.GetInt("refresh")
			ch.RefreshMinutes = &v
		}
		RunForwardProxySet(ch)
	},
}

// MCPCmd represents the mcp command
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the live state over MCP (stdio)",
	Long:  "Run an MCP server on stdin/stdout exposing recent invocations, usage summaries, connection status and forward-proxy stats",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		RunMCP()
	},
}

// DigestCmd represents the digest command
var DigestCmd = &cobra.Command{
	Use:   "digest",
	Short: "Send the usage digest now",
	Long:  "Summarize a window and send it through the configured notification senders, as the notify.digest schedule does",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		window, _ := cmd.Flags().GetString("window")
		desktop, _ := cmd.Flags().GetBool("desktop")
		RunDigest(window, desktop)
	},
}

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show vibemon version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		RunVersion()
	},
}

func init() {
	TailCmd.Flags().String("model", "", "Only show this model")
	TailCmd.Flags().String("status", "", "Only show this status (success, failed)")
	TailCmd.Flags().IntP("limit", "n", 0, "Records kept in the live view (default from config)")
	TailCmd.Flags().Bool("notify", false, "Show desktop notifications for failures and outages")

	SnapshotCmd.Flags().StringP("window", "w", "", "Summary window (default from config)")
	SnapshotCmd.RegisterFlagCompletionFunc("window", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return livesync.Windows, cobra.ShellCompDirectiveNoFileComp
	})

	PricingSetCmd.Flags().Float64("input", 0, "Input price per 1M tokens")
	PricingSetCmd.Flags().Float64("output", 0, "Output price per 1M tokens")
	PricingSetCmd.Flags().Float64("cache", 0, "Cached input price per 1M tokens (default 10% of input)")
	PricingSetCmd.Flags().Float64("reasoning", 0, "Reasoning price per 1M tokens (default output price)")
	PricingSetCmd.MarkFlagRequired("input")
	PricingSetCmd.MarkFlagRequired("output")
	PricingCmd.AddCommand(PricingShowCmd, PricingSetCmd)

	PrefsCmd.AddCommand(PrefsShowCmd, PrefsSetLocaleCmd, PrefsSetThemeCmd)

	ValidateProxyCmd.Flags().Bool("subscription", false, "Treat the URL as a subscription list")

	ForwardProxySetCmd.Flags().Bool("enable", false, "Route upstream traffic through the forward proxies")
	ForwardProxySetCmd.Flags().Bool("disable", false, "Stop using the forward proxies")
	ForwardProxySetCmd.Flags().StringSlice("add", nil, "Proxy URL to add (repeatable)")
	ForwardProxySetCmd.Flags().StringSlice("remove", nil, "Proxy URL to remove (repeatable)")
	ForwardProxySetCmd.Flags().String("subscription", "", "Subscription list URL (empty clears it)")
	ForwardProxySetCmd.Flags().Int("refresh", 0, "Subscription refresh interval in minutes")
	ForwardProxySetCmd.MarkFlagsMutuallyExclusive("enable", "disable")
	ForwardProxyCmd.AddCommand(ForwardProxyShowCmd, ForwardProxySetCmd)

	DigestCmd.Flags().StringP("window", "w", "", "Summary window (default notify.digestWindow)")
	DigestCmd.Flags().Bool("desktop", false, "Also send a desktop notification")
}
