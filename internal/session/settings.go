package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/matheus3301/wppbridge/internal/webhook"
)

// Settings is the durable per-session configuration kept in config.json.
// It survives reconnects and is removed only with the session.
type Settings struct {
	Metadata     map[string]any `json:"metadata"`
	Webhooks     []webhook.Hook `json:"webhooks"`
	AutoReply    string         `json:"autoReply,omitempty"`
	AutoMarkRead bool           `json:"autoMarkRead"`
	DeviceName   string         `json:"deviceName,omitempty"`
}

// Patch is a partial settings update. Nil fields are left unchanged.
type Patch struct {
	Metadata     map[string]any `json:"metadata,omitempty"`
	Webhooks     []webhook.Hook `json:"webhooks,omitempty"`
	AutoReply    *string        `json:"autoReply,omitempty"`
	AutoMarkRead *bool          `json:"autoMarkRead,omitempty"`
	DeviceName   *string        `json:"deviceName,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Metadata == nil && p.Webhooks == nil && p.AutoReply == nil && p.AutoMarkRead == nil && p.DeviceName == nil
}

// Apply merges metadata keys and replaces the webhook list when one is given.
func (s Settings) Apply(p Patch) Settings {
	out := s.clone()
	if p.Metadata != nil {
		if out.Metadata == nil {
			out.Metadata = make(map[string]any, len(p.Metadata))
		}
		maps.Copy(out.Metadata, p.Metadata)
	}
	if p.Webhooks != nil {
		out.Webhooks = normalizeHooks(p.Webhooks)
	}
	if p.AutoReply != nil {
		out.AutoReply = *p.AutoReply
	}
	if p.AutoMarkRead != nil {
		out.AutoMarkRead = *p.AutoMarkRead
	}
	if p.DeviceName != nil {
		out.DeviceName = *p.DeviceName
	}
	return out
}

// AddWebhook subscribes url to events, defaulting to every event. An existing
// url keeps its position and has its events replaced.
func (s Settings) AddWebhook(url string, events []string) Settings {
	out := s.clone()
	if len(events) == 0 {
		events = []string{webhook.EventAll}
	}
	for i, h := range out.Webhooks {
		if h.URL == url {
			out.Webhooks[i].Events = events
			return out
		}
	}
	out.Webhooks = append(out.Webhooks, webhook.Hook{URL: url, Events: events})
	return out
}

// RemoveWebhook drops every hook posting to url.
func (s Settings) RemoveWebhook(url string) Settings {
	out := s.clone()
	kept := out.Webhooks[:0]
	for _, h := range out.Webhooks {
		if h.URL != url {
			kept = append(kept, h)
		}
	}
	out.Webhooks = kept
	return out
}

func (s Settings) clone() Settings {
	s.Metadata = maps.Clone(s.Metadata)
	s.Webhooks = append([]webhook.Hook(nil), s.Webhooks...)
	return s
}

func normalizeHooks(hooks []webhook.Hook) []webhook.Hook {
	out := make([]webhook.Hook, 0, len(hooks))
	for _, h := range hooks {
		if h.URL == "" {
			continue
		}
		if len(h.Events) == 0 {
			h.Events = []string{webhook.EventAll}
		}
		out = append(out, h)
	}
	return out
}

// LoadSettings reads config.json. A missing file yields zero settings.
func LoadSettings(path string) (Settings, error) {
	var s Settings
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return s, err
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return s, nil
}

// SaveSettings writes config.json atomically.
func SaveSettings(path string, s Settings) error {
	if s.Metadata == nil {
		s.Metadata = map[string]any{}
	}
	if s.Webhooks == nil {
		s.Webhooks = []webhook.Hook{}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
