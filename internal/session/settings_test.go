package session

import (
	"path/filepath"
	"reflect"
	"testing"

	"github.com/matheus3301/wppbridge/internal/webhook"
)

func TestSettingsRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s1", "config.json")

	empty, err := LoadSettings(path)
	if err != nil {
		t.Fatalf("LoadSettings on missing file: %v", err)
	}
	if empty.AutoMarkRead || len(empty.Webhooks) != 0 {
		t.Errorf("missing file settings = %+v", empty)
	}

	want := Settings{
		Metadata:     map[string]any{"footerName": "Acme"},
		Webhooks:     []webhook.Hook{{URL: "http://hook", Events: []string{"message"}}},
		AutoReply:    "away",
		AutoMarkRead: true,
	}
	if err := SaveSettings(path, want); err != nil {
		t.Fatal(err)
	}
	got, err := LoadSettings(path)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("round trip = %+v, want %+v", got, want)
	}
}

func TestSettingsApply(t *testing.T) {
	base := Settings{
		Metadata: map[string]any{"a": 1, "b": 2},
		Webhooks: []webhook.Hook{{URL: "http://old", Events: []string{"all"}}},
	}
	on := true
	got := base.Apply(Patch{
		Metadata:     map[string]any{"b": 3},
		Webhooks:     []webhook.Hook{{URL: "http://new"}, {URL: ""}},
		AutoMarkRead: &on,
	})

	if got.Metadata["a"] != 1 || got.Metadata["b"] != 3 {
		t.Errorf("metadata = %v, want merged", got.Metadata)
	}
	wantHooks := []webhook.Hook{{URL: "http://new", Events: []string{webhook.EventAll}}}
	if !reflect.DeepEqual(got.Webhooks, wantHooks) {
		t.Errorf("webhooks = %+v, want %+v", got.Webhooks, wantHooks)
	}
	if !got.AutoMarkRead {
		t.Error("AutoMarkRead not applied")
	}
	if base.Metadata["b"] != 2 {
		t.Error("Apply mutated the receiver")
	}
}

func TestAddAndRemoveWebhook(t *testing.T) {
	s := Settings{}.AddWebhook("http://a", nil)
	s = s.AddWebhook("http://b", []string{"message"})
	s = s.AddWebhook("http://a", []string{"qr"})

	want := []webhook.Hook{
		{URL: "http://a", Events: []string{"qr"}},
		{URL: "http://b", Events: []string{"message"}},
	}
	if !reflect.DeepEqual(s.Webhooks, want) {
		t.Fatalf("webhooks = %+v, want %+v", s.Webhooks, want)
	}

	s = s.RemoveWebhook("http://a")
	if len(s.Webhooks) != 1 || s.Webhooks[0].URL != "http://b" {
		t.Errorf("after remove = %+v", s.Webhooks)
	}
}
