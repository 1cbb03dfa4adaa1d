package webhook

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
)

type captured struct {
	header http.Header
	env    Envelope
}

func recorder(t *testing.T) (*httptest.Server, func() []captured) {
	t.Helper()
	var mu sync.Mutex
	var got []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var env Envelope
		if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
			t.Errorf("decode body: %v", err)
		}
		mu.Lock()
		got = append(got, captured{header: r.Header.Clone(), env: env})
		mu.Unlock()
	}))
	t.Cleanup(srv.Close)
	return srv, func() []captured {
		mu.Lock()
		defer mu.Unlock()
		return append([]captured(nil), got...)
	}
}

func TestNotifyDeliversEnvelope(t *testing.T) {
	srv, got := recorder(t)
	n := NewNotifier(time.Second, zap.NewNop())

	n.Notify("s1", map[string]any{"tenant": "acme"}, []Hook{{URL: srv.URL, Events: []string{EventAll}}}, "message", map[string]string{"id": "m1"})
	n.Wait()

	calls := got()
	if len(calls) != 1 {
		t.Fatalf("deliveries = %d, want 1", len(calls))
	}
	c := calls[0]
	if c.env.Event != "message" || c.env.SessionID != "s1" {
		t.Errorf("envelope = %+v", c.env)
	}
	if c.env.Metadata["tenant"] != "acme" {
		t.Errorf("metadata = %v", c.env.Metadata)
	}
	if _, err := time.Parse(time.RFC3339, c.env.Timestamp); err != nil {
		t.Errorf("timestamp %q not RFC3339: %v", c.env.Timestamp, err)
	}
	for k, want := range map[string]string{
		"Content-Type":     "application/json",
		"X-Webhook-Source": Source,
		"X-Session-Id":     "s1",
		"X-Webhook-Event":  "message",
	} {
		if v := c.header.Get(k); v != want {
			t.Errorf("header %s = %q, want %q", k, v, want)
		}
	}
}

func TestNotifyFiltersByEvent(t *testing.T) {
	srv, got := recorder(t)
	n := NewNotifier(time.Second, zap.NewNop())
	hooks := []Hook{
		{URL: srv.URL, Events: []string{"qr"}},
		{URL: srv.URL, Events: []string{"message", "call"}},
	}

	n.Notify("s1", nil, hooks, "call", nil)
	n.Wait()

	if calls := got(); len(calls) != 1 {
		t.Errorf("deliveries = %d, want 1", len(calls))
	}
}

func TestNotifyFailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	n := NewNotifier(time.Second, zap.NewNop())

	done := make(chan struct{})
	go func() {
		n.Notify("s1", nil, []Hook{{URL: srv.URL, Events: []string{EventAll}}, {URL: "http://127.0.0.1:1", Events: []string{EventAll}}}, "qr", nil)
		n.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Notify did not finish")
	}
}

func TestHookWants(t *testing.T) {
	tests := []struct {
		events []string
		event  string
		want   bool
	}{
		{[]string{EventAll}, "qr", true},
		{[]string{"message"}, "message", true},
		{[]string{"message"}, "message.sent", false},
		{nil, "qr", false},
	}
	for _, tt := range tests {
		if got := (Hook{Events: tt.events}).Wants(tt.event); got != tt.want {
			t.Errorf("Wants(%v, %q) = %v, want %v", tt.events, tt.event, got, tt.want)
		}
	}
}
