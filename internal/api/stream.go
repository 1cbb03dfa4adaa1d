package api

import (
	"context"
	"net/url"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/matheus3301/wppbridge/internal/bus"
	"go.uber.org/zap"
)

const (
	streamBuffer       = 64
	streamWriteTimeout = 10 * time.Second
)

// frame is one event as written to a websocket client.
type frame struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId"`
	Data      any    `json:"data"`
	Timestamp string `json:"timestamp"`
}

// stream upgrades to a websocket and relays bus events until the client goes
// away or the server closes. ?session= limits it to one session and ?prefix=
// to a kind namespace. A client that cannot keep up loses events.
func (s *Server) stream(c *gin.Context) {
	sessionID := c.Query("session")
	if sessionID != "" {
		if _, err := s.registry.Get(sessionID); err != nil {
			fail(c, err)
			return
		}
	}

	conn, err := websocket.Accept(c.Writer, c.Request, s.acceptOptions())
	if err != nil {
		s.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	defer func() { _ = conn.CloseNow() }()

	events, unsubscribe := s.bus.Subscribe(bus.Filter{Prefix: c.Query("prefix"), Session: sessionID}, streamBuffer)
	defer unsubscribe()

	// Nothing is expected from the client; CloseRead handles its close frame.
	ctx := conn.CloseRead(c.Request.Context())
	s.logger.Debug("stream client connected", zap.String("session", sessionID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closing:
			_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case evt, open := <-events:
			if !open {
				_ = conn.Close(websocket.StatusGoingAway, "")
				return
			}
			wctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := wsjson.Write(wctx, conn, frame{
				Event:     evt.Kind,
				SessionID: evt.Session,
				Data:      evt.Payload,
				Timestamp: evt.Timestamp.UTC().Format(time.RFC3339),
			})
			cancel()
			if err != nil {
				s.logger.Debug("stream write failed", zap.Error(err))
				return
			}
		}
	}
}

// acceptOptions derives the allowed websocket origins from the CORS list.
func (s *Server) acceptOptions() *websocket.AcceptOptions {
	if len(s.cfg.CORSOrigins) == 0 {
		return &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	patterns := make([]string, 0, len(s.cfg.CORSOrigins))
	for _, o := range s.cfg.CORSOrigins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
		} else {
			patterns = append(patterns, o)
		}
	}
	return &websocket.AcceptOptions{OriginPatterns: patterns}
}
