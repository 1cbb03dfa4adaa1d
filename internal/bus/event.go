package bus

import "time"

// Event represents an outward event published on the bus.
type Event struct {
	Kind      string
	Session   string
	Timestamp time.Time
	Payload   any
}

// Outward event kinds. Kinds are dot-namespaced so subscribers can filter by prefix.
const (
	KindQR                = "qr"
	KindPairCode          = "pair.code"
	KindConnectionUpdate  = "connection.update"
	KindStatusChanged     = "session.status_changed"
	KindLoggedOut         = "logged.out"
	KindMessage           = "message"
	KindMessageSent       = "message.sent"
	KindMessageUpdate     = "message.update"
	KindMessageReaction   = "message.reaction"
	KindMessageOTP        = "message.otp"
	KindMessageMedia      = "message.media"
	KindChatUpsert        = "chat.upsert"
	KindChatUpdate        = "chat.update"
	KindChatDelete        = "chat.delete"
	KindContactUpdate     = "contact.update"
	KindPresenceUpdate    = "presence.update"
	KindGroupParticipants = "group.participants"
	KindGroupUpdate       = "group.update"
	KindCall              = "call"
)
