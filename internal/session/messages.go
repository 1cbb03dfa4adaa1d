package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/matheus3301/wppbridge/internal/otp"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

// FooterKey is the session metadata key holding the footer name.
const FooterKey = "footerName"

// SendOptions are shared by every single-message send.
type SendOptions struct {
	// TypingTime shows a composing indicator for this long before sending.
	TypingTime time.Duration
	// Footer overrides the session and process footer names.
	Footer string
	// NoFooter suppresses the footer line entirely.
	NoFooter bool
	// Mentions are phone numbers mentioned in addition to inline @tokens.
	Mentions []string
	// CheckNumber verifies an individual recipient has an account first.
	CheckNumber bool

	jobID string
}

// SendResult identifies a sent message.
type SendResult struct {
	MessageID     string   `json:"messageId"`
	ChatID        string   `json:"chatId"`
	Timestamp     string   `json:"timestamp"`
	Mentions      []string `json:"mentions,omitempty"`
	IsGroup       bool     `json:"isGroup"`
	OTPCode       string   `json:"otpCode,omitempty"`
	ExpiryMinutes int      `json:"expiryMinutes,omitempty"`

	unixMilli int64
}

// Media is an attachment given either inline or by URL.
type Media struct {
	URL      string `json:"url,omitempty"`
	Data     []byte `json:"-"`
	Caption  string `json:"caption,omitempty"`
	FileName string `json:"fileName,omitempty"`
	MimeType string `json:"mimetype,omitempty"`
	ViewOnce bool   `json:"viewOnce,omitempty"`
}

// Location is a shared map pin.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Name      string  `json:"name,omitempty"`
	Address   string  `json:"address,omitempty"`
}

// ContactCard is a shared contact.
type ContactCard struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Buttons is a text with quick-reply buttons.
type Buttons struct {
	Text    string   `json:"text"`
	Footer  string   `json:"footer,omitempty"`
	Buttons []string `json:"buttons"`
}

// OTPRequest is a one-time code message.
type OTPRequest struct {
	Code          string `json:"code"`
	Template      string `json:"template,omitempty"`
	ExpiryMinutes int    `json:"expiryMinutes,omitempty"`
}

// footerLine returns the blockquoted footer for opts, or "" when none applies.
// A per-call footer beats the session metadata, which beats the process default.
func (c *Controller) footerLine(opts SendOptions) string {
	if opts.NoFooter {
		return ""
	}
	name := opts.Footer
	if name == "" {
		if v, ok := c.Settings().Metadata[FooterKey].(string); ok {
			name = v
		}
	}
	if name == "" {
		name = c.opts.Footer
	}
	if name == "" {
		return ""
	}
	return "\n\n> _" + name + "_"
}

// simulateTyping shows the composing indicator for d before a send.
func (c *Controller) simulateTyping(ctx context.Context, eng wa.Engine, to types.JID, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	if err := eng.SendChatPresence(ctx, to, true); err != nil {
		c.logger.Debug("composing presence failed", zap.Error(err))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := eng.SendChatPresence(ctx, to, false); err != nil {
		c.logger.Debug("paused presence failed", zap.Error(err))
	}
	return nil
}

// target validates the session and resolves chatID.
func (c *Controller) target(chatID string) (wa.Engine, types.JID, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return nil, types.EmptyJID, err
	}
	jid, err := c.chatID(chatID)
	if err != nil {
		return nil, types.EmptyJID, err
	}
	return eng, jid, nil
}

// deliver runs the shared send pipeline: existence check, typing, rate limit,
// ledger bookkeeping, the send itself, and recording the sent message.
func (c *Controller) deliver(ctx context.Context, eng wa.Engine, to types.JID, kind string, msg *waE2E.Message, opts SendOptions) (SendResult, error) {
	if opts.CheckNumber && to.Server == types.DefaultUserServer {
		reg, err := c.IsRegistered(ctx, to.User)
		if err != nil {
			return SendResult{}, err
		}
		if !reg.IsRegistered {
			return SendResult{}, invalid("Number not registered")
		}
	}
	if err := c.simulateTyping(ctx, eng, to, opts.TypingTime); err != nil {
		return SendResult{}, err
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return SendResult{}, err
	}

	recipient := to.String()
	entryID := c.recordDelivery(ctx, opts.jobID, recipient, kind)
	res, err := eng.Send(ctx, to, msg)
	if err != nil {
		c.markDelivery(ctx, entryID, "", err)
		return SendResult{}, err
	}
	c.markDelivery(ctx, entryID, res.ID, nil)

	if res.Timestamp.IsZero() {
		res.Timestamp = time.Now()
	}
	c.mu.Lock()
	phone := c.phone
	c.mu.Unlock()
	c.onMessage(wa.IncomingMessage{Message: wa.OutgoingMessage(to, phone, res, msg), Raw: msg})

	return SendResult{
		MessageID: res.ID,
		ChatID:    recipient,
		Timestamp: res.Timestamp.UTC().Format(time.RFC3339),
		IsGroup:   to.Server == types.GroupServer,
		unixMilli: res.Timestamp.UnixMilli(),
	}, nil
}

func (c *Controller) recordDelivery(ctx context.Context, jobID, recipient, kind string) string {
	if c.ledger == nil {
		return ""
	}
	id, err := c.ledger.Record(ctx, c.id, jobID, recipient, kind)
	if err != nil {
		c.logger.Warn("ledger record failed", zap.Error(err))
		return ""
	}
	return id
}

func (c *Controller) markDelivery(ctx context.Context, entryID, serverID string, sendErr error) {
	if c.ledger == nil || entryID == "" {
		return
	}
	var err error
	if sendErr != nil {
		err = c.ledger.MarkFailed(ctx, entryID, sendErr.Error())
	} else {
		err = c.ledger.MarkSent(ctx, entryID, serverID)
	}
	if err != nil {
		c.logger.Warn("ledger update failed", zap.Error(err))
	}
}

// SendText sends text with inline and explicit mentions resolved.
func (c *Controller) SendText(ctx context.Context, chatID, text string, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	if text == "" {
		return SendResult{}, invalid("Message text is required")
	}
	mentions := c.mentions.Resolve(ctx, to.String(), text, opts.Mentions)
	body := text + c.footerLine(opts)

	msg := &waE2E.Message{Conversation: proto.String(body)}
	if len(mentions) > 0 {
		msg = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{
			Text:        proto.String(body),
			ContextInfo: &waE2E.ContextInfo{MentionedJID: mentions},
		}}
	}
	res, err := c.deliver(ctx, eng, to, "text", msg, opts)
	if err != nil {
		return SendResult{}, err
	}
	res.Mentions = mentions
	return res, nil
}

// SendImage sends an image fetched from URL or given inline.
func (c *Controller) SendImage(ctx context.Context, chatID string, img Media, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	data, mime, err := c.loadMedia(ctx, img, "image/jpeg")
	if err != nil {
		return SendResult{}, err
	}
	up, err := eng.Upload(ctx, data, whatsmeow.MediaImage)
	if err != nil {
		return SendResult{}, fmt.Errorf("upload image: %w", err)
	}
	caption := img.Caption + c.footerLine(opts)
	msg := &waE2E.Message{ImageMessage: &waE2E.ImageMessage{
		Caption:       proto.String(caption),
		Mimetype:      proto.String(mime),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
		ViewOnce:      proto.Bool(img.ViewOnce),
	}}
	if mentions := c.mentions.Resolve(ctx, to.String(), img.Caption, opts.Mentions); len(mentions) > 0 {
		msg.ImageMessage.ContextInfo = &waE2E.ContextInfo{MentionedJID: mentions}
	}
	return c.deliver(ctx, eng, to, "image", msg, opts)
}

// SendDocument sends a file fetched from URL or given inline.
func (c *Controller) SendDocument(ctx context.Context, chatID string, doc Media, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	data, mime, err := c.loadMedia(ctx, doc, "application/pdf")
	if err != nil {
		return SendResult{}, err
	}
	if doc.MimeType != "" {
		mime = doc.MimeType
	}
	name := doc.FileName
	if name == "" {
		name = "document" + extensionFor(mime)
	}
	up, err := eng.Upload(ctx, data, whatsmeow.MediaDocument)
	if err != nil {
		return SendResult{}, fmt.Errorf("upload document: %w", err)
	}
	msg := &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{
		Title:         proto.String(name),
		FileName:      proto.String(name),
		Caption:       proto.String(doc.Caption + c.footerLine(opts)),
		Mimetype:      proto.String(mime),
		URL:           proto.String(up.URL),
		DirectPath:    proto.String(up.DirectPath),
		MediaKey:      up.MediaKey,
		FileEncSHA256: up.FileEncSHA256,
		FileSHA256:    up.FileSHA256,
		FileLength:    proto.Uint64(up.FileLength),
	}}
	return c.deliver(ctx, eng, to, "document", msg, opts)
}

// SendLocation shares a map pin. The footer is appended to the pin name.
func (c *Controller) SendLocation(ctx context.Context, chatID string, loc Location, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	if loc.Latitude < -90 || loc.Latitude > 90 || loc.Longitude < -180 || loc.Longitude > 180 {
		return SendResult{}, invalid("Latitude must be within [-90, 90] and longitude within [-180, 180]")
	}
	msg := &waE2E.Message{LocationMessage: &waE2E.LocationMessage{
		DegreesLatitude:  proto.Float64(loc.Latitude),
		DegreesLongitude: proto.Float64(loc.Longitude),
		Name:             proto.String(loc.Name + c.footerLine(opts)),
		Address:          proto.String(loc.Address),
	}}
	return c.deliver(ctx, eng, to, "location", msg, opts)
}

// VCard renders a single-number contact card.
func VCard(name, phone string) string {
	phone = wa.FormatPhone(phone)
	return "BEGIN:VCARD\nVERSION:3.0\nFN:" + name +
		"\nTEL;type=CELL;type=VOICE;waid=" + phone + ":+" + phone +
		"\nEND:VCARD"
}

// SendContact shares a contact card.
func (c *Controller) SendContact(ctx context.Context, chatID string, card ContactCard, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	if card.Name == "" || wa.Digits(card.Phone) == "" {
		return SendResult{}, invalid("Contact name and phone are required")
	}
	msg := &waE2E.Message{ContactMessage: &waE2E.ContactMessage{
		DisplayName: proto.String(card.Name),
		Vcard:       proto.String(VCard(card.Name, card.Phone)),
	}}
	return c.deliver(ctx, eng, to, "contact", msg, opts)
}

// SendButtons sends text with quick-reply buttons identified as btn_<index>.
func (c *Controller) SendButtons(ctx context.Context, chatID string, b Buttons, opts SendOptions) (SendResult, error) {
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	if b.Text == "" || len(b.Buttons) == 0 {
		return SendResult{}, invalid("Text and at least one button are required")
	}
	buttons := make([]*waE2E.ButtonsMessage_Button, 0, len(b.Buttons))
	for i, label := range b.Buttons {
		buttons = append(buttons, &waE2E.ButtonsMessage_Button{
			ButtonID:   proto.String(fmt.Sprintf("btn_%d", i)),
			ButtonText: &waE2E.ButtonsMessage_Button_ButtonText{DisplayText: proto.String(label)},
			Type:       waE2E.ButtonsMessage_Button_RESPONSE.Enum(),
		})
	}
	footer := strings.TrimPrefix(b.Footer+c.footerLine(opts), "\n\n")
	msg := &waE2E.Message{ButtonsMessage: &waE2E.ButtonsMessage{
		ContentText: proto.String(b.Text),
		FooterText:  proto.String(footer),
		Buttons:     buttons,
	}}
	return c.deliver(ctx, eng, to, "buttons", msg, opts)
}

// SendOTP formats and sends a one-time code. The code is validated before
// anything reaches the network.
func (c *Controller) SendOTP(ctx context.Context, chatID string, req OTPRequest, opts SendOptions) (SendResult, error) {
	if err := otp.Validate(req.Code); err != nil {
		return SendResult{}, invalid("Invalid OTP code. Must be 4-8 digits.")
	}
	expiry := req.ExpiryMinutes
	if expiry <= 0 {
		expiry = otp.DefaultExpiryMinutes
	}
	text, err := otp.Format(req.Code, req.Template, expiry)
	if err != nil {
		return SendResult{}, invalid(err.Error())
	}
	eng, to, err := c.target(chatID)
	if err != nil {
		return SendResult{}, err
	}
	msg := &waE2E.Message{Conversation: proto.String(text + c.footerLine(opts))}
	res, err := c.deliver(ctx, eng, to, "otp", msg, opts)
	if err != nil {
		return SendResult{}, err
	}
	res.OTPCode = req.Code
	res.ExpiryMinutes = expiry
	return res, nil
}

// Presence values accepted by SendPresence.
const (
	PresenceAvailable   = "available"
	PresenceUnavailable = "unavailable"
	PresenceComposing   = "composing"
	PresencePaused      = "paused"
)

// SendPresence updates global availability, or the typing state in chatID.
func (c *Controller) SendPresence(ctx context.Context, presence, chatID string) error {
	eng, err := c.requireEngine()
	if err != nil {
		return err
	}
	switch presence {
	case PresenceAvailable, PresenceUnavailable:
		return eng.SendPresence(ctx, presence == PresenceAvailable)
	case PresenceComposing, PresencePaused:
		_, to, err := c.target(chatID)
		if err != nil {
			return err
		}
		return eng.SendChatPresence(ctx, to, presence == PresenceComposing)
	}
	return invalid("Invalid presence. Use: available, unavailable, composing, paused")
}

// Registration reports whether a phone number has an account.
type Registration struct {
	Phone        string `json:"phone"`
	IsRegistered bool   `json:"isRegistered"`
	JID          string `json:"jid,omitempty"`
}

// IsRegistered checks phone against the network.
func (c *Controller) IsRegistered(ctx context.Context, phone string) (Registration, error) {
	eng, err := c.requireEngine()
	if err != nil {
		return Registration{}, err
	}
	digits := wa.FormatPhone(phone)
	if digits == "" {
		return Registration{}, invalid("Phone number is required")
	}
	regs, err := eng.IsOnWhatsApp(ctx, []string{digits})
	if err != nil {
		return Registration{}, fmt.Errorf("check number: %w", err)
	}
	out := Registration{Phone: digits}
	for _, r := range regs {
		if r.Registered {
			out.IsRegistered = true
			out.JID = r.JID.String()
			break
		}
	}
	return out, nil
}

// ProfilePicture returns the picture URL of a chat or phone. Lookup errors
// degrade to no picture.
func (c *Controller) ProfilePicture(ctx context.Context, id string) (string, error) {
	eng, jid, err := c.target(id)
	if err != nil {
		return "", err
	}
	url, err := eng.ProfilePictureURL(ctx, jid)
	if err != nil {
		c.logger.Debug("profile picture lookup failed", zap.String("jid", jid.String()), zap.Error(err))
		return "", nil
	}
	c.store.SetPicture(jid.String(), url)
	return url, nil
}
