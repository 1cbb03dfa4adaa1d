package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewNormalizesAddr(t *testing.T) {
	tests := []struct{ in, want string }{
		{"127.0.0.1:3000", "http://127.0.0.1:3000"},
		{"http://bridge:3000/", "http://bridge:3000"},
		{"https://bridge.example", "https://bridge.example"},
	}
	for _, tt := range tests {
		if got := New(tt.in, "").base; got != tt.want {
			t.Errorf("New(%q).base = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestSendTextRequest(t *testing.T) {
	var gotPath, gotKey string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath, gotKey = r.URL.Path, r.Header.Get("X-Api-Key")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_, _ = w.Write([]byte(`{"success":true,"message":"Message sent successfully","data":{"messageId":"M1","chatId":"628111111111@s.whatsapp.net"}}`))
	}))
	defer srv.Close()

	res, err := New(srv.URL, "secret").SendText(context.Background(), "sales", "628111111111", "hi")
	if err != nil {
		t.Fatalf("SendText() error = %v", err)
	}
	if gotPath != "/api/sessions/sales/messages/text" || gotKey != "secret" {
		t.Errorf("request = %s key=%q", gotPath, gotKey)
	}
	if gotBody["chatId"] != "628111111111" || gotBody["message"] != "hi" {
		t.Errorf("body = %v", gotBody)
	}
	if res.MessageID != "M1" {
		t.Errorf("result = %+v", res)
	}
}

func TestAPIErrorCarriesMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"success":false,"message":"Session not found"}`))
	}))
	defer srv.Close()

	_, err := New(srv.URL, "").Status(context.Background(), "ghost")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error = %T %v, want *APIError", err, err)
	}
	if apiErr.Status != http.StatusNotFound || apiErr.Message != "Session not found" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestConnectReportsConflict(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"message":"Session already connected","data":{"sessionId":"sales","isConnected":true}}`))
	}))
	defer srv.Close()

	msg, _, err := New(srv.URL, "").Connect(context.Background(), "sales")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusConflict {
		t.Fatalf("Connect() error = %v", err)
	}
	if msg != "Session already connected" {
		t.Errorf("message = %q", msg)
	}
}
