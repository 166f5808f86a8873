package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// JSONMode controls whether output is JSON or human-readable
var JSONMode bool

// Out and Err are where results and errors go.
var (
	Out io.Writer = os.Stdout
	Err io.Writer = os.Stderr
)

var exit = os.Exit

// Result represents a generic result for JSON output
type Result struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Print outputs data. In JSON mode, marshals to JSON. Otherwise calls the textFn.
func Print(data any, textFn func()) {
	if JSONMode {
		out, err := json.MarshalIndent(Result{Success: true, Data: data}, "", "  ")
		if err != nil {
			PrintError(err)
			return
		}
		fmt.Fprintln(Out, string(out))
		return
	}
	textFn()
}

// Line writes v as a single JSON line, for streamed output.
func Line(v any) error {
	out, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(Out, string(out))
	return err
}

// PrintError outputs an error and exits with status 1.
func PrintError(err error) {
	if JSONMode {
		out, _ := json.MarshalIndent(Result{Success: false, Error: err.Error()}, "", "  ")
		fmt.Fprintln(Out, string(out))
		exit(1)
		return
	}
	fmt.Fprintf(Err, "Error: %v\n", err)
	exit(1)
}
