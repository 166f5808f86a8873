// Package notify delivers alerts about the live feeds to the desktop, a
// chat webhook or a local script.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Notification is a single alert.
type Notification struct {
	Kind    string `json:"kind"`
	Title   string `json:"title"`
	Message string `json:"message"`
	Sound   bool   `json:"sound,omitempty"`
}

// Sender delivers notifications.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Name() string
}

// Multi sends every notification to all of its senders.
type Multi []Sender

// Send tries every sender and joins their errors.
func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Name() string {
	names := make([]string, len(m))
	for i, s := range m {
		names[i] = s.Name()
	}
	return "multi(" + strings.Join(names, ",") + ")"
}
