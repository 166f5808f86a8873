package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

const scriptTimeout = 30 * time.Second

// Script runs a local program with the notification as JSON on stdin.
type Script struct {
	Path string
}

func (s Script) Send(ctx context.Context, n Notification) error {
	ctx, cancel := context.WithTimeout(ctx, scriptTimeout)
	defer cancel()

	data, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("script payload: %w", err)
	}
	cmd := exec.CommandContext(ctx, s.Path)
	cmd.Stdin = strings.NewReader(string(data))

	out, err := cmd.CombinedOutput()
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("script %s timed out after %s", s.Path, scriptTimeout)
	}
	if err != nil {
		return fmt.Errorf("script %s: %w (output: %s)", s.Path, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (s Script) Name() string { return "script" }
