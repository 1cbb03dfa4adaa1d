package wa

import (
	"context"
	"time"

	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
)

// Engine is the capability a Session Controller drives: one live connection
// to the chat network. Events are delivered to subscribers sequentially.
type Engine interface {
	Connection
	Messenger
	Groups
}

// Connection covers the link lifecycle.
type Connection interface {
	// Connect opens the link. Without credentials QR codes are delivered as
	// QRCode events until the device is paired.
	Connect(ctx context.Context) error
	Disconnect()
	// Close disconnects and releases the credential store.
	Close() error
	Logout(ctx context.Context) error
	// DeleteCredentials removes the persisted device identity.
	DeleteCredentials(ctx context.Context) error
	IsConnected() bool
	IsLoggedIn() bool
	Self() SelfInfo
	// PairPhone requests a pairing code for the given international phone digits.
	PairPhone(ctx context.Context, phone string) (string, error)
	// Subscribe registers fn for every translated event and returns a function
	// that removes it.
	Subscribe(fn func(evt any)) (unsubscribe func())
}

// Messenger covers sends and account queries.
type Messenger interface {
	Send(ctx context.Context, to types.JID, msg *waE2E.Message) (SendResult, error)
	SendChatPresence(ctx context.Context, to types.JID, composing bool) error
	SendPresence(ctx context.Context, available bool) error
	IsOnWhatsApp(ctx context.Context, phones []string) ([]Registration, error)
	ProfilePictureURL(ctx context.Context, jid types.JID) (string, error)
	MarkRead(ctx context.Context, chat, sender types.JID, ids []string) error
	Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error)
	Download(ctx context.Context, msg *waE2E.Message) ([]byte, error)
}

// Groups covers group management pass-throughs.
type Groups interface {
	GroupInfo(ctx context.Context, group types.JID) (*types.GroupInfo, error)
	JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error)
	CreateGroup(ctx context.Context, name string, participants []types.JID) (*types.GroupInfo, error)
	UpdateParticipants(ctx context.Context, group types.JID, participants []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error)
	SetGroupName(ctx context.Context, group types.JID, name string) error
	SetGroupTopic(ctx context.Context, group types.JID, topic string) error
	SetGroupAnnounce(ctx context.Context, group types.JID, announce bool) error
	SetGroupLocked(ctx context.Context, group types.JID, locked bool) error
	SetGroupPhoto(ctx context.Context, group types.JID, jpeg []byte) (string, error)
	LeaveGroup(ctx context.Context, group types.JID) error
	JoinGroupWithLink(ctx context.Context, code string) (types.JID, error)
	GroupInviteLink(ctx context.Context, group types.JID, reset bool) (string, error)
}

// SelfInfo identifies the linked account.
type SelfInfo struct {
	Phone string
	Name  string
}

// SendResult is the server acknowledgement of a sent message.
type SendResult struct {
	ID        string
	Timestamp time.Time
}

// Registration reports whether a phone number has an account.
type Registration struct {
	Query      string
	JID        types.JID
	Registered bool
}

// Events delivered to Engine subscribers.
type (
	QRCode struct {
		Code string
	}
	QRTimeout   struct{}
	PairSuccess struct {
		ID       string
		Platform string
	}
	Connected    struct{}
	Disconnected struct {
		Reason string
	}
	LoggedOut struct {
		Reason    string
		OnConnect bool
	}
	TemporaryBan struct {
		Reason string
		Expire time.Duration
	}
	IncomingMessage struct {
		Message store.Message
		Raw     *waE2E.Message
	}
	MessageRevoked struct {
		ChatID   string
		TargetID string
		SenderID string
	}
	Reaction struct {
		ChatID    string
		TargetID  string
		SenderID  string
		Emoji     string
		FromMe    bool
		Timestamp int64
	}
	HistoryBatch struct {
		Chats []HistoryChat
	}
	Receipt struct {
		ChatID     string
		SenderID   string
		MessageIDs []string
		Status     string
		Timestamp  int64
	}
	Presence struct {
		From      string
		Available bool
		LastSeen  int64
	}
	ChatPresence struct {
		ChatID   string
		SenderID string
		State    string
		Media    string
	}
	GroupChange struct {
		GroupID   string
		Actor     string
		Name      *string
		Topic     *string
		Announce  *bool
		Locked    *bool
		Join      []string
		Leave     []string
		Promote   []string
		Demote    []string
		Timestamp int64
	}
	JoinedGroup struct {
		Group store.Group
	}
	ContactUpdate struct {
		Contact store.Contact
	}
	ChatDeleted struct {
		ChatID string
	}
	// ChatUpdate carries one app-state change to a chat. Only the changed
	// field is set.
	ChatUpdate struct {
		ChatID    string
		Archived  *bool
		Pinned    *bool
		Muted     *bool
		MuteEnd   int64
		Read      *bool
		Timestamp int64
	}
	Call struct {
		From      string
		CallID    string
		Timestamp int64
	}
)

// HistoryChat is one conversation from a history sync blob.
type HistoryChat struct {
	Chat     store.Chat
	Messages []store.Message
}
