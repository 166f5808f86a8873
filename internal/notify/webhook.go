package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
	"time"
)

// Webhook formats.
const (
	FormatSlack    = "slack"
	FormatFeishu   = "feishu"
	FormatDingTalk = "dingtalk"
	FormatCustom   = "custom"
)

// Webhook posts notifications to a chat webhook.
type Webhook struct {
	URL    string
	Format string
	// Template is the JSON body for FormatCustom. It sees .Kind, .Title,
	// .Message and .Text.
	Template string
	Client   *http.Client
}

// NewWebhook returns a webhook sender with a 10s request timeout.
func NewWebhook(url, format, tmpl string) *Webhook {
	return &Webhook{
		URL:      url,
		Format:   format,
		Template: tmpl,
		Client:   &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts n in the configured format.
func (w *Webhook) Send(ctx context.Context, n Notification) error {
	body, err := w.payload(n)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	client := w.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *Webhook) Name() string { return "webhook" }

func (w *Webhook) payload(n Notification) ([]byte, error) {
	text := fmt.Sprintf("%s: %s", n.Title, n.Message)

	var payload any
	switch w.Format {
	case FormatFeishu:
		payload = map[string]any{
			"msg_type": "text",
			"content":  map[string]string{"text": text},
		}
	case FormatDingTalk:
		payload = map[string]any{
			"msgtype": "text",
			"text":    map[string]string{"content": text},
		}
	case FormatCustom:
		if w.Template == "" {
			return nil, fmt.Errorf("webhook custom format: template is empty")
		}
		tmpl, err := template.New("webhook").Parse(w.Template)
		if err != nil {
			return nil, fmt.Errorf("webhook template: %w", err)
		}
		var buf bytes.Buffer
		data := map[string]string{"Kind": n.Kind, "Title": n.Title, "Message": n.Message, "Text": text}
		if err := tmpl.Execute(&buf, data); err != nil {
			return nil, fmt.Errorf("webhook template: %w", err)
		}
		if !json.Valid(buf.Bytes()) {
			return nil, fmt.Errorf("webhook template produced invalid JSON")
		}
		return buf.Bytes(), nil
	default:
		payload = map[string]string{"text": text}
	}
	return json.Marshal(payload)
}
