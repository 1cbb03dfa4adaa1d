// Package client talks to a running wppbridged over its HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/session"
)

// APIError is a non-2xx reply from the daemon.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("daemon returned HTTP %d", e.Status)
	}
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// Client wraps the daemon's REST surface.
type Client struct {
	base   string
	apiKey string
	http   *http.Client
}

// New creates a client for the daemon at addr ("host:port" or a full URL).
func New(addr, apiKey string) *Client {
	base := strings.TrimRight(addr, "/")
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	return &Client{base: base, apiKey: apiKey, http: &http.Client{Timeout: 60 * time.Second}}
}

type envelope struct {
	Success bool            `json:"success"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

// do sends a JSON request and decodes the envelope's data into out when set.
// It returns the envelope message.
func (c *Client) do(ctx context.Context, method, path string, body, out any) (string, error) {
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return "", err
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, r)
	if err != nil {
		return "", err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("cannot reach daemon at %s: %w", c.base, err)
	}
	defer func() { _ = resp.Body.Close() }()

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil && resp.StatusCode < 300 {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 300 {
		return env.Message, &APIError{Status: resp.StatusCode, Message: env.Message}
	}
	if out != nil && len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return env.Message, fmt.Errorf("decode data: %w", err)
		}
	}
	return env.Message, nil
}

func sessionPath(id string, parts ...string) string {
	p := "/api/sessions/" + url.PathEscape(id)
	for _, part := range parts {
		p += "/" + part
	}
	return p
}

// Sessions lists every live session.
func (c *Client) Sessions(ctx context.Context) ([]session.Info, error) {
	var out []session.Info
	_, err := c.do(ctx, http.MethodGet, "/api/sessions", nil, &out)
	return out, err
}

// Status returns one session's info.
func (c *Client) Status(ctx context.Context, id string) (session.Info, error) {
	var out session.Info
	_, err := c.do(ctx, http.MethodGet, sessionPath(id), nil, &out)
	return out, err
}

// Connect creates session id or reconnects it. An already connected session
// is reported as an *APIError with status 409.
func (c *Client) Connect(ctx context.Context, id string) (string, session.Info, error) {
	var out session.Info
	msg, err := c.do(ctx, http.MethodPost, "/api/sessions", map[string]string{"sessionId": id}, &out)
	return msg, out, err
}

// QR is the pending login code of a session.
type QR struct {
	Code    string `json:"qr"`
	DataURL string `json:"qrCode"`
}

// QR returns the pending QR login code.
func (c *Client) QR(ctx context.Context, id string) (QR, error) {
	var out QR
	_, err := c.do(ctx, http.MethodGet, sessionPath(id, "qr"), nil, &out)
	return out, err
}

// Pair requests a pairing code for phone.
func (c *Client) Pair(ctx context.Context, id, phone string) (session.PairResult, error) {
	var out session.PairResult
	_, err := c.do(ctx, http.MethodPost, sessionPath(id, "pair"), map[string]string{"phoneNumber": phone}, &out)
	return out, err
}

// SendText sends a text message to chat.
func (c *Client) SendText(ctx context.Context, id, chat, text string) (session.SendResult, error) {
	var out session.SendResult
	_, err := c.do(ctx, http.MethodPost, sessionPath(id, "messages", "text"),
		map[string]string{"chatId": chat, "message": text}, &out)
	return out, err
}

// Logout unlinks the device and tears the session down. Its config is kept.
func (c *Client) Logout(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, sessionPath(id, "logout"), nil, nil)
	return err
}

// Delete logs out and removes every file of the session.
func (c *Client) Delete(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, sessionPath(id), nil, nil)
	return err
}
