package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// recordingSender is a test helper.
type recordingSender struct {
	name string
	err  error
	sent chan Notification
}

func newRecordingSender(name string) *recordingSender {
	return &recordingSender{name: name, sent: make(chan Notification, 16)}
}

func (r *recordingSender) Send(ctx context.Context, n Notification) error {
	r.sent <- n
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestMultiSend(t *testing.T) {
	a := newRecordingSender("a")
	b := newRecordingSender("b")
	b.err = errors.New("offline")

	err := Multi{a, b}.Send(context.Background(), Notification{Title: "t", Message: "m"})
	if err == nil || !strings.Contains(err.Error(), "offline") {
		t.Errorf("Send error = %v, want offline", err)
	}
	if len(a.sent) != 1 || len(b.sent) != 1 {
		t.Errorf("sent = %d/%d, want 1/1", len(a.sent), len(b.sent))
	}
}

func TestMultiName(t *testing.T) {
	got := Multi{newRecordingSender("x"), newRecordingSender("y")}.Name()
	if got != "multi(x,y)" {
		t.Errorf("Name() = %q, want multi(x,y)", got)
	}
}

func webhookServer(t *testing.T, status int, into *map[string]any) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q, want application/json", ct)
		}
		if into != nil {
			json.NewDecoder(r.Body).Decode(into)
		}
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestWebhookFormats(t *testing.T) {
	n := Notification{Kind: KindProxyDown, Title: "proxy down", Message: "all 3 nodes"}

	tests := []struct {
		format string
		check  func(map[string]any) bool
	}{
		{FormatSlack, func(m map[string]any) bool {
			return m["text"] == "proxy down: all 3 nodes"
		}},
		{FormatFeishu, func(m map[string]any) bool {
			c, ok := m["content"].(map[string]any)
			return m["msg_type"] == "text" && ok && c["text"] == "proxy down: all 3 nodes"
		}},
		{FormatDingTalk, func(m map[string]any) bool {
			c, ok := m["text"].(map[string]any)
			return m["msgtype"] == "text" && ok && c["content"] == "proxy down: all 3 nodes"
		}},
	}
	for _, tt := range tests {
		var got map[string]any
		srv := webhookServer(t, http.StatusOK, &got)
		if err := NewWebhook(srv.URL, tt.format, "").Send(context.Background(), n); err != nil {
			t.Fatalf("%s: Send: %v", tt.format, err)
		}
		if !tt.check(got) {
			t.Errorf("%s: payload = %v", tt.format, got)
		}
	}
}

func TestWebhookCustomTemplate(t *testing.T) {
	var got map[string]any
	srv := webhookServer(t, http.StatusOK, &got)

	wh := NewWebhook(srv.URL, FormatCustom, `{"kind": "{{.Kind}}", "body": "{{.Title}} - {{.Message}}", "text": "{{.Text}}"}`)
	err := wh.Send(context.Background(), Notification{Kind: KindFailure, Title: "failed", Message: "o3"})
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got["kind"] != KindFailure || got["body"] != "failed - o3" || got["text"] != "failed: o3" {
		t.Errorf("payload = %v", got)
	}
}

func TestWebhookErrors(t *testing.T) {
	srv := webhookServer(t, http.StatusInternalServerError, nil)
	n := Notification{Title: "t", Message: "m"}

	if err := NewWebhook(srv.URL, FormatSlack, "").Send(context.Background(), n); err == nil {
		t.Error("Send to 500 = nil, want error")
	}
	if err := NewWebhook(srv.URL, FormatCustom, "").Send(context.Background(), n); err == nil {
		t.Error("Send with empty template = nil, want error")
	}
	if err := NewWebhook(srv.URL, FormatCustom, `{"text": {{.Text}}}`).Send(context.Background(), n); err == nil {
		t.Error("Send with invalid JSON template = nil, want error")
	}
}

func TestDesktop(t *testing.T) {
	s := Desktop()
	if s == nil || s.Name() == "" {
		t.Fatalf("Desktop() = %v, want a named sender", s)
	}
}

func TestDesktopCommand(t *testing.T) {
	tests := []struct {
		name     string
		goos     string
		n        Notification
		wantCmd  string
		wantArgs []string
		wantOK   bool
	}{
		{
			name:     "darwin",
			goos:     "darwin",
			n:        Notification{Title: "vibemon", Message: `cost "spike" \ 3x`, Sound: true},
			wantCmd:  "osascript",
			wantArgs: []string{"-e", `display notification "cost \"spike\" \\ 3x" with title "vibemon" sound name "Basso"`},
			wantOK:   true,
		},
		{
			name:     "linux keeps dashed title as text",
			goos:     "linux",
			n:        Notification{Title: "-5 errors", Message: "gpt-5"},
			wantCmd:  "notify-send",
			wantArgs: []string{"--app-name=vibemon", "--", "-5 errors", "gpt-5"},
			wantOK:   true,
		},
		{
			name:     "linux with sound",
			goos:     "freebsd",
			n:        Notification{Title: "t", Message: "m", Sound: true},
			wantCmd:  "notify-send",
			wantArgs: []string{"--app-name=vibemon", "--hint=string:sound-name:dialog-warning", "--", "t", "m"},
			wantOK:   true,
		},
		{
			name:   "unsupported",
			goos:   "plan9",
			n:      Notification{Title: "t", Message: "m"},
			wantOK: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, args, ok := desktopCommand(tt.goos, tt.n)
			if ok != tt.wantOK || cmd != tt.wantCmd {
				t.Fatalf("desktopCommand = %q, %v, want %q, %v", cmd, ok, tt.wantCmd, tt.wantOK)
			}
			if strings.Join(args, "\x00") != strings.Join(tt.wantArgs, "\x00") {
				t.Errorf("args = %q, want %q", args, tt.wantArgs)
			}
		})
	}
}

func TestDesktopCommandWindowsQuoting(t *testing.T) {
	cmd, args, ok := desktopCommand("windows", Notification{Title: "vibemon", Message: "it's $env:PATH"})
	if !ok || cmd != "powershell" {
		t.Fatalf("desktopCommand = %q, %v, want powershell", cmd, ok)
	}
	script := args[len(args)-1]
	if !strings.Contains(script, `CreateTextNode('it''s $env:PATH')`) {
		t.Errorf("script does not carry the message verbatim:\n%s", script)
	}
}

func TestDesktopSenderName(t *testing.T) {
	tests := []struct {
		goos string
		want string
	}{
		{"darwin", "desktop"},
		{"linux", "desktop"},
		{"windows", "desktop"},
		{"plan9", "noop"},
	}
	for _, tt := range tests {
		if got := (desktopSender{goos: tt.goos}).Name(); got != tt.want {
			t.Errorf("Name() on %s = %q, want %q", tt.goos, got, tt.want)
		}
	}
}
