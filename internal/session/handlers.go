package session

import (
	"context"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/otp"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// QRPayload is the payload of qr events.
type QRPayload struct {
	QR   string `json:"qr"`
	Code string `json:"code"`
}

// OTPPayload is the payload of message.otp events.
type OTPPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
	OTPCode   string `json:"otpCode"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp"`
}

// handle is the engine subscription. It runs on the engine's dispatch
// goroutine, so slow work is pushed to background goroutines.
func (c *Controller) handle(evt any) {
	if c.Closed() {
		return
	}
	switch evt := evt.(type) {
	case wa.QRCode:
		c.onQR(evt.Code)
	case wa.QRTimeout:
		c.mu.Lock()
		eng := c.engine
		c.mu.Unlock()
		if eng != nil {
			eng.Disconnect()
		}
		c.onLinkClosed("qr timeout")
	case wa.PairSuccess:
		c.logger.Info("device paired", zap.String("jid", evt.ID), zap.String("platform", evt.Platform))
	case wa.Connected:
		c.onConnected()
	case wa.Disconnected:
		c.onLinkClosed(evt.Reason)
	case wa.LoggedOut:
		c.onLoggedOut(evt.Reason)
	case wa.TemporaryBan:
		c.logger.Warn("temporary ban", zap.String("reason", evt.Reason), zap.Duration("expire", evt.Expire))
		c.transition(status.Error)
		c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{Status: string(status.Error), Reason: evt.Reason})
	case wa.IncomingMessage:
		c.onMessage(evt)
	default:
		if !c.ingest.Apply(evt) {
			c.logger.Debug("unhandled engine event", zap.Any("event", evt))
		}
	}
}

func (c *Controller) onQR(code string) {
	if c.machine.Current() == status.PairReady {
		c.logger.Debug("QR code ignored while a pairing code is pending")
		return
	}
	c.mu.Lock()
	c.qr = code
	c.pairCode = ""
	c.mu.Unlock()

	c.transition(status.QRReady)
	c.Emit(bus.KindQR, QRPayload{QR: qrDataURL(code, c.logger), Code: code})
}

func (c *Controller) onConnected() {
	c.mu.Lock()
	eng := c.engine
	c.stopReconnectLocked()
	c.mu.Unlock()
	if eng == nil {
		return
	}

	self := eng.Self()
	name := self.Name
	if name == "" {
		name = c.id
	}
	c.mu.Lock()
	c.phone, c.name = self.Phone, name
	c.qr, c.pairCode = "", ""
	c.mu.Unlock()

	c.transition(status.Connected)
	c.logger.Info("session connected", zap.String("phone", self.Phone))
	c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{
		Status:      string(status.Connected),
		PhoneNumber: self.Phone,
		Name:        name,
	})
	go c.afterLink(eng)
}

// afterLink re-resolves the display name, which the engine may not know at
// the moment of linking, and refreshes the joined-group cache.
func (c *Controller) afterLink(eng wa.Engine) {
	t := time.NewTimer(c.opts.ProfileNameDelay)
	defer t.Stop()
	select {
	case <-c.ctx.Done():
		return
	case <-t.C:
	}
	c.refreshProfileName(eng)

	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()
	infos, err := eng.JoinedGroups(ctx)
	if err != nil {
		c.logger.Warn("fetch joined groups", zap.Error(err))
		return
	}
	groups := make([]store.Group, 0, len(infos))
	for _, info := range infos {
		groups = append(groups, wa.GroupFromInfo(info))
	}
	c.recon.ReconcileGroups(groups)
}

func (c *Controller) refreshProfileName(eng wa.Engine) {
	self := eng.Self()
	name := self.Name
	if name == "" && self.Phone != "" {
		if ct, ok := c.store.Contact(wa.UserJID(self.Phone)); ok {
			name = ct.Name
			if name == "" {
				name = ct.PushName
			}
		}
	}

	c.mu.Lock()
	changed := name != "" && name != c.name && !c.closed
	if changed {
		c.name = name
	}
	phone := c.phone
	c.mu.Unlock()

	if changed && c.machine.Current() == status.Connected {
		c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{
			Status:      string(status.Connected),
			PhoneNumber: phone,
			Name:        name,
		})
	}
}

// onLinkClosed handles a transient closure: the session stays connecting and
// a reconnect is scheduled.
func (c *Controller) onLinkClosed(reason string) {
	c.mu.Lock()
	c.qr, c.pairCode = "", ""
	c.mu.Unlock()

	c.transition(status.Connecting)
	reconnect := true
	c.logger.Info("link closed", zap.String("reason", reason))
	c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{
		Status:          string(status.Disconnected),
		Reason:          reason,
		ShouldReconnect: &reconnect,
	})
	c.scheduleReconnect()
}

// onLoggedOut handles a logout forced by the phone or the server. Teardown
// runs off the dispatch goroutine because it closes the engine.
func (c *Controller) onLoggedOut(reason string) {
	c.logger.Warn("logged out by server", zap.String("reason", reason))
	go func() {
		c.teardown(context.Background(), false)
		reconnect := false
		c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{
			Status:          string(status.Disconnected),
			Reason:          reason,
			ShouldReconnect: &reconnect,
		})
		c.Emit(bus.KindLoggedOut, map[string]string{"reason": reason})
	}()
}

func (c *Controller) onMessage(evt wa.IncomingMessage) {
	msg := evt.Message
	if msg.ID == "" || msg.ChatID == "" {
		return
	}
	if msg.FromMe {
		c.ingest.IngestMessage(msg)
		c.Emit(bus.KindMessageSent, msg)
		return
	}

	c.ingest.IngestMessage(msg)
	if _, ok := defaultMimes[msg.Type]; ok && evt.Raw != nil {
		go c.saveMedia(msg, evt.Raw)
	}

	settings := c.Settings()
	if settings.AutoMarkRead {
		c.autoMarkRead(msg)
	}
	c.Emit(bus.KindMessage, msg)

	text := msg.Body
	if text == "" {
		text = msg.Caption
	}
	if code, ok := otp.Extract(text); ok {
		c.Emit(bus.KindMessageOTP, OTPPayload{
			MessageID: msg.ID,
			ChatID:    msg.ChatID,
			OTPCode:   code,
			Sender:    msg.SenderID,
			Timestamp: msg.Timestamp,
		})
	}

	if settings.AutoReply != "" && !wa.IsGroupID(msg.ChatID) && msg.ChatID != "status@broadcast" {
		go c.autoReply(msg.ChatID, settings.AutoReply)
	}
}

func (c *Controller) autoMarkRead(msg store.Message) {
	eng, err := c.requireEngine()
	if err != nil {
		return
	}
	chat, err := wa.ChatJID(msg.ChatID)
	if err != nil {
		return
	}
	sender, _ := wa.FormatJID(msg.SenderID, false)
	ctx, cancel := context.WithTimeout(c.ctx, 10*time.Second)
	defer cancel()
	if err := eng.MarkRead(ctx, chat, sender, []string{msg.ID}); err != nil {
		c.logger.Debug("auto mark read failed", zap.Error(err))
		return
	}
	c.store.MarkRead(msg.ChatID)
}

func (c *Controller) autoReply(chatID, text string) {
	ctx, cancel := context.WithTimeout(c.ctx, time.Minute)
	defer cancel()
	if _, err := c.SendText(ctx, chatID, text, SendOptions{TypingTime: time.Second, NoFooter: true}); err != nil {
		c.logger.Warn("auto reply failed", zap.String("chat", chatID), zap.Error(err))
	}
}
