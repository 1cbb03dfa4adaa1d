// Package webhook delivers session events to subscriber URLs.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"
)

// EventAll subscribes a hook to every event.
const EventAll = "all"

// Source is sent in the X-Webhook-Source header.
const Source = "wppbridge"

// Hook is one subscriber URL with its event filter.
type Hook struct {
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

// Wants reports whether the hook subscribes to event.
func (h Hook) Wants(event string) bool {
	return slices.Contains(h.Events, EventAll) || slices.Contains(h.Events, event)
}

// Envelope is the JSON body posted to each hook.
type Envelope struct {
	Event     string         `json:"event"`
	SessionID string         `json:"sessionId"`
	Metadata  map[string]any `json:"metadata"`
	Data      any            `json:"data"`
	Timestamp string         `json:"timestamp"`
}

// Notifier posts envelopes asynchronously. Failures are logged and dropped.
type Notifier struct {
	client *http.Client
	logger *zap.Logger
	wg     sync.WaitGroup
}

// NewNotifier creates a Notifier whose requests time out after timeout.
func NewNotifier(timeout time.Duration, logger *zap.Logger) *Notifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Notifier{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Notify sends event to every hook whose filter matches. It returns
// immediately; delivery happens on background goroutines.
func (n *Notifier) Notify(sessionID string, metadata map[string]any, hooks []Hook, event string, data any) {
	env := Envelope{
		Event:     event,
		SessionID: sessionID,
		Metadata:  metadata,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	var body []byte
	for _, h := range hooks {
		if h.URL == "" || !h.Wants(event) {
			continue
		}
		if body == nil {
			var err error
			body, err = json.Marshal(env)
			if err != nil {
				n.logger.Warn("encode webhook envelope", zap.String("event", event), zap.Error(err))
				return
			}
		}
		n.wg.Add(1)
		go func(url string) {
			defer n.wg.Done()
			if err := n.post(context.Background(), url, sessionID, event, body); err != nil {
				n.logger.Warn("webhook delivery failed",
					zap.String("session", sessionID),
					zap.String("event", event),
					zap.String("url", url),
					zap.Error(err),
				)
			}
		}(h.URL)
	}
}

func (n *Notifier) post(ctx context.Context, url, sessionID, event string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Source", Source)
	req.Header.Set("X-Session-Id", sessionID)
	req.Header.Set("X-Webhook-Event", event)

	resp, err := n.client.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook non-2xx: %d", resp.StatusCode)
	}
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
