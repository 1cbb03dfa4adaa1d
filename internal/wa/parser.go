package wa

import (
	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Message types carried in store.Message.Type.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeVideo    = "video"
	TypeAudio    = "audio"
	TypeVoice    = "ptt"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeLocation = "location"
	TypeContact  = "contact"
	TypeContacts = "contacts"
	TypeReaction = "reaction"
	TypeProtocol = "protocol"
	TypeUnknown  = "unknown"
)

// ParseLiveMessage normalizes a live message event.
func ParseLiveMessage(evt *events.Message) store.Message {
	m := parseContent(evt.Message)
	fillInfo(&m, evt.Info)
	return m
}

// OutgoingMessage builds the stored form of a message this device just sent.
func OutgoingMessage(to types.JID, selfPhone string, res SendResult, msg *waE2E.Message) store.Message {
	m := parseContent(msg)
	m.ID = res.ID
	m.ChatID = to.ToNonAD().String()
	m.FromMe = true
	if selfPhone != "" {
		m.SenderID = types.NewJID(selfPhone, types.DefaultUserServer).String()
	}
	m.Timestamp = res.Timestamp.UnixMilli()
	m.Status = "sent"
	return m
}

// ParseHistoryMessage normalizes one history sync entry of chatID.
func ParseHistoryMessage(chatID string, wmsg *waWeb.WebMessageInfo) (store.Message, bool) {
	if wmsg == nil || wmsg.GetMessage() == nil {
		return store.Message{}, false
	}
	key := wmsg.GetKey()
	m := parseContent(wmsg.GetMessage())
	m.ID = key.GetID()
	m.ChatID = chatID
	m.FromMe = key.GetFromMe()
	m.SenderID = key.GetParticipant()
	if m.SenderID == "" && !m.FromMe {
		m.SenderID = chatID
	}
	m.PushName = wmsg.GetPushName()
	m.Timestamp = int64(wmsg.GetMessageTimestamp()) * 1000
	m.Status = "received"
	if m.FromMe {
		m.Status = "sent"
	}
	return m, m.ID != ""
}

func fillInfo(m *store.Message, info types.MessageInfo) {
	m.ID = info.ID
	m.ChatID = info.Chat.ToNonAD().String()
	m.SenderID = info.Sender.ToNonAD().String()
	// Prefer the phone-number identity when the server addressed by LID.
	if info.Sender.Server == types.HiddenUserServer && !info.SenderAlt.IsEmpty() {
		if info.Chat.User == info.Sender.User {
			m.ChatID = info.SenderAlt.ToNonAD().String()
		}
		m.SenderID = info.SenderAlt.ToNonAD().String()
	}
	m.PushName = info.PushName
	m.FromMe = info.IsFromMe
	m.Timestamp = info.Timestamp.UnixMilli()
	m.Status = "received"
	if m.FromMe {
		m.Status = "sent"
	}
}

// unwrap strips ephemeral and view-once envelopes.
func unwrap(msg *waE2E.Message) *waE2E.Message {
	for msg != nil {
		switch {
		case msg.GetEphemeralMessage().GetMessage() != nil:
			msg = msg.GetEphemeralMessage().GetMessage()
		case msg.GetViewOnceMessage().GetMessage() != nil:
			msg = msg.GetViewOnceMessage().GetMessage()
		case msg.GetViewOnceMessageV2().GetMessage() != nil:
			msg = msg.GetViewOnceMessageV2().GetMessage()
		case msg.GetDocumentWithCaptionMessage().GetMessage() != nil:
			msg = msg.GetDocumentWithCaptionMessage().GetMessage()
		default:
			return msg
		}
	}
	return nil
}

func parseContent(raw *waE2E.Message) store.Message {
	msg := unwrap(raw)
	m := store.Message{Type: detectMessageType(msg), Body: extractTextBody(msg)}
	if msg == nil {
		return m
	}
	switch m.Type {
	case TypeImage:
		img := msg.GetImageMessage()
		m.Caption, m.MimeType = img.GetCaption(), img.GetMimetype()
		m.QuotedID = img.GetContextInfo().GetStanzaID()
	case TypeVideo:
		v := msg.GetVideoMessage()
		m.Caption, m.MimeType = v.GetCaption(), v.GetMimetype()
		m.QuotedID = v.GetContextInfo().GetStanzaID()
	case TypeAudio, TypeVoice:
		m.MimeType = msg.GetAudioMessage().GetMimetype()
	case TypeDocument:
		d := msg.GetDocumentMessage()
		m.Caption, m.MimeType, m.FileName = d.GetCaption(), d.GetMimetype(), d.GetFileName()
		if m.FileName == "" {
			m.FileName = d.GetTitle()
		}
	case TypeSticker:
		m.MimeType = msg.GetStickerMessage().GetMimetype()
	case TypeLocation:
		loc := msg.GetLocationMessage()
		m.Latitude, m.Longitude = loc.GetDegreesLatitude(), loc.GetDegreesLongitude()
		m.Body = loc.GetName()
	case TypeContact:
		m.ContactName = msg.GetContactMessage().GetDisplayName()
	case TypeContacts:
		m.ContactName = msg.GetContactsArrayMessage().GetDisplayName()
	case TypeReaction:
		r := msg.GetReactionMessage()
		m.Reaction, m.TargetID = r.GetText(), r.GetKey().GetID()
	case TypeProtocol:
		m.TargetID = msg.GetProtocolMessage().GetKey().GetID()
	case TypeText:
		m.QuotedID = msg.GetExtendedTextMessage().GetContextInfo().GetStanzaID()
	}
	return m
}

// IsRevoke reports whether msg deletes an earlier message for everyone.
func IsRevoke(msg *waE2E.Message) bool {
	p := unwrap(msg).GetProtocolMessage()
	return p != nil && p.GetType() == waE2E.ProtocolMessage_REVOKE
}

// MediaMessage reports whether msg carries a downloadable attachment.
func MediaMessage(msg *waE2E.Message) bool {
	msg = unwrap(msg)
	return msg.GetImageMessage() != nil || msg.GetVideoMessage() != nil ||
		msg.GetAudioMessage() != nil || msg.GetDocumentMessage() != nil ||
		msg.GetStickerMessage() != nil
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	return ""
}

// TextOf returns the readable text of msg: the body or a media caption.
func TextOf(msg *waE2E.Message) string {
	msg = unwrap(msg)
	if body := extractTextBody(msg); body != "" {
		return body
	}
	switch {
	case msg.GetImageMessage() != nil:
		return msg.GetImageMessage().GetCaption()
	case msg.GetVideoMessage() != nil:
		return msg.GetVideoMessage().GetCaption()
	case msg.GetDocumentMessage() != nil:
		return msg.GetDocumentMessage().GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return TypeUnknown
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return TypeText
	case msg.GetImageMessage() != nil:
		return TypeImage
	case msg.GetVideoMessage() != nil:
		return TypeVideo
	case msg.GetAudioMessage() != nil:
		if msg.GetAudioMessage().GetPTT() {
			return TypeVoice
		}
		return TypeAudio
	case msg.GetDocumentMessage() != nil:
		return TypeDocument
	case msg.GetStickerMessage() != nil:
		return TypeSticker
	case msg.GetContactMessage() != nil:
		return TypeContact
	case msg.GetContactsArrayMessage() != nil:
		return TypeContacts
	case msg.GetLocationMessage() != nil:
		return TypeLocation
	case msg.GetReactionMessage() != nil:
		return TypeReaction
	case msg.GetProtocolMessage() != nil:
		return TypeProtocol
	default:
		return TypeUnknown
	}
}
