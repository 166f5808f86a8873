package i18n

import (
	"sort"
	"testing"
)

func TestTranslate(t *testing.T) {
	tr, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tests := []struct {
		lang string
		id   string
		data map[string]any
		want string
	}{
		{"en", "status_open", nil, "live"},
		{"zh", "status_open", nil, "实时"},
		{"en", "proxy_healthy", map[string]any{"Healthy": 2, "Total": 3}, "2/3 healthy"},
		{"zh", "update_available", map[string]any{"Version": "v1.2.0"}, "新版本 v1.2.0 可用"},
		{"en", "no_such_message", nil, "no_such_message"},
	}
	for _, tt := range tests {
		if err := tr.SetLanguage(tt.lang); err != nil {
			t.Fatalf("SetLanguage(%q): %v", tt.lang, err)
		}
		if got := tr.T(tt.id, tt.data); got != tt.want {
			t.Errorf("[%s] T(%q) = %q, want %q", tt.lang, tt.id, got, tt.want)
		}
	}
}

func TestPlural(t *testing.T) {
	tr, err := New("en")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := tr.N("records_count", 1, nil); got != "1 record" {
		t.Errorf("N(1) = %q", got)
	}
	if got := tr.N("records_count", 12, nil); got != "12 records" {
		t.Errorf("N(12) = %q", got)
	}
}

func TestSetLanguage(t *testing.T) {
	tr, err := New("zh-CN")
	if err != nil {
		t.Fatalf("New(zh-CN): %v", err)
	}
	if tr.Lang() != "zh" {
		t.Errorf("Lang() = %q, want zh", tr.Lang())
	}
	if err := tr.SetLanguage("fr"); err == nil {
		t.Error("SetLanguage(fr) succeeded")
	}
	if tr.Lang() != "zh" {
		t.Errorf("failed switch changed language to %q", tr.Lang())
	}
	if _, err := New("not a tag!"); err == nil {
		t.Error("New accepted an invalid tag")
	}

	langs := tr.Languages()
	sort.Strings(langs)
	if len(langs) != 2 || langs[0] != "en" || langs[1] != "zh" {
		t.Errorf("Languages() = %v", langs)
	}
}

func TestNilTranslator(t *testing.T) {
	var tr *Translator
	if got := tr.T("status_open", nil); got != "status_open" {
		t.Errorf("nil T() = %q", got)
	}
	if got := tr.N("records_count", 2, nil); got != "records_count" {
		t.Errorf("nil N() = %q", got)
	}
}
