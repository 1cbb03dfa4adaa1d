package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.uber.org/zap"
)

// MaxMediaBytes caps attachments fetched by URL.
const MaxMediaBytes = 64 << 20

var mimeExtensions = map[string]string{
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
	"image/gif":       ".gif",
	"video/mp4":       ".mp4",
	"video/3gpp":      ".3gp",
	"audio/ogg":       ".ogg",
	"audio/mpeg":      ".mp3",
	"audio/mp4":       ".m4a",
	"application/pdf": ".pdf",
}

// defaultMimes fills in attachments that arrive without a mimetype.
var defaultMimes = map[string]string{
	wa.TypeImage:    "image/jpeg",
	wa.TypeAudio:    "audio/ogg",
	wa.TypeVoice:    "audio/ogg",
	wa.TypeDocument: "application/pdf",
	wa.TypeSticker:  "image/webp",
}

// extensionFor maps a mimetype to a file extension, falling back to the
// subtype and then to .bin.
func extensionFor(mime string) string {
	mime = strings.ToLower(strings.TrimSpace(strings.SplitN(mime, ";", 2)[0]))
	if ext, ok := mimeExtensions[mime]; ok {
		return ext
	}
	if _, sub, ok := strings.Cut(mime, "/"); ok && sub != "" && !strings.ContainsAny(sub, `/\.`) {
		return "." + sub
	}
	return ".bin"
}

// MediaPayload is the payload of message.media events.
type MediaPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	MimeType  string `json:"mimetype"`
	Path      string `json:"path"`
}

// saveMedia downloads the attachment of an inbound image, audio, document,
// or sticker into the session media tree, tracks it in the store, and emits
// message.media. Failures are logged only.
func (c *Controller) saveMedia(msg store.Message, raw *waE2E.Message) {
	def, ok := defaultMimes[msg.Type]
	if !ok || raw == nil {
		return
	}
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, time.Minute)
	defer cancel()
	data, err := eng.Download(ctx, raw)
	if err != nil {
		c.logger.Warn("media download failed", zap.String("msg", msg.ID), zap.Error(err))
		return
	}

	mime := msg.MimeType
	if mime == "" {
		mime = def
	}
	chatDir := strings.SplitN(msg.ChatID, "@", 2)[0]
	dir := filepath.Join(c.paths.MediaDir(c.id), filepath.Base(chatDir))
	if err := os.MkdirAll(dir, 0700); err != nil {
		c.logger.Warn("create media dir", zap.Error(err))
		return
	}
	path := filepath.Join(dir, filepath.Base(msg.ID)+extensionFor(mime))
	if err := os.WriteFile(path, data, 0600); err != nil {
		c.logger.Warn("write media file", zap.String("path", path), zap.Error(err))
		return
	}
	if c.Closed() || !c.store.RegisterMedia(msg.ChatID, msg.ID, path) {
		// The message was evicted or the session torn down mid-download.
		_ = os.Remove(path)
		return
	}
	c.logger.Debug("media saved", zap.String("path", path), zap.Int("bytes", len(data)))
	c.Emit(bus.KindMessageMedia, MediaPayload{MessageID: msg.ID, ChatID: msg.ChatID, MimeType: mime, Path: path})
}

// loadMedia returns the attachment bytes and mimetype, fetching by URL when
// no inline data is given.
func (c *Controller) loadMedia(ctx context.Context, m Media, fallbackMime string) ([]byte, string, error) {
	mime := m.MimeType
	if len(m.Data) > 0 {
		if mime == "" {
			mime = http.DetectContentType(m.Data)
		}
		if mime == "application/octet-stream" {
			mime = fallbackMime
		}
		return m.Data, mime, nil
	}
	if m.URL == "" {
		return nil, "", invalid("Media URL is required")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL, nil)
	if err != nil {
		return nil, "", invalid(fmt.Sprintf("Invalid media URL: %v", err))
	}
	resp, err := c.opts.HTTPClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("fetch media: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", fmt.Errorf("fetch media: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, MaxMediaBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("read media: %w", err)
	}
	if len(data) > MaxMediaBytes {
		return nil, "", invalid("Media exceeds 64 MiB")
	}
	if mime == "" {
		mime = strings.TrimSpace(strings.SplitN(resp.Header.Get("Content-Type"), ";", 2)[0])
	}
	if mime == "" || mime == "application/octet-stream" {
		mime = fallbackMime
	}
	return data, mime, nil
}
