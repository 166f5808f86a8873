package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"vibemon/internal/commands"
	"vibemon/internal/output"
)

var jsonFlag bool

var rootCmd = &cobra.Command{
	Use:   "vibemon",
	Short: "Live monitor for an LLM proxy",
	Long:  "Follow invocations, usage, quota and forward-proxy health of an LLM proxy as the backend pushes them",
	Args:  cobra.NoArgs,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonFlag, "json", false, "Output in JSON format")
	flags.StringVar(&commands.BaseURLFlag, "base-url", "", "Backend address (default from config)")
	flags.StringVar(&commands.TransportFlag, "transport", "", "Push transport: sse or websocket")
	flags.StringVar(&commands.ConfigFlag, "config", "", "Config file (default ~/.vibemon/config.yaml)")

	rootCmd.AddCommand(commands.TailCmd)
	rootCmd.AddCommand(commands.SnapshotCmd)
	rootCmd.AddCommand(commands.PricingCmd)
	rootCmd.AddCommand(commands.PrefsCmd)
	rootCmd.AddCommand(commands.ValidateProxyCmd)
	rootCmd.AddCommand(commands.ForwardProxyCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.DigestCmd)
	rootCmd.AddCommand(commands.VersionCmd)

	// Dashboard on a terminal, plain tail otherwise.
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		if jsonFlag || !term.IsTerminal(int(os.Stdout.Fd())) {
			commands.RunTail(commands.TailOptions{})
			return
		}
		commands.RunDashboard()
	}
}

func main() {
	// Propagate --json flag before execution
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		output.JSONMode = jsonFlag
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
