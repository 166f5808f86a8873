package commands

import (
	"fmt"

	"vibemon/internal/output"
)

// Version information, set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

func RunVersion() {
	output.Print(map[string]string{
		"version": Version,
		"commit":  Commit,
		"date":    Date,
	}, func() {
		fmt.Fprintf(output.Out, "vibemon version %s (commit %s, built %s)\n", Version, Commit, Date)
	})
}
