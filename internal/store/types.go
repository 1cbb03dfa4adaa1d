// Package store is the per-session Conversation Store: chats, contacts,
// per-chat message logs, group metadata, and the derived chat overview.
package store

// Chat represents a conversation known to a session. MuteEnd is unix
// milliseconds; zero while Muted means indefinitely.
type Chat struct {
	ID                    string `json:"id"`
	Name                  string `json:"name,omitempty"`
	IsGroup               bool   `json:"isGroup"`
	UnreadCount           int    `json:"unreadCount"`
	ConversationTimestamp int64  `json:"conversationTimestamp"`
	Archived              bool   `json:"archived,omitempty"`
	Pinned                bool   `json:"pinned,omitempty"`
	Muted                 bool   `json:"muted,omitempty"`
	MuteEnd               int64  `json:"muteEndTimestamp,omitempty"`
}

// ChatPatch changes the flags that are non-nil.
type ChatPatch struct {
	Archived *bool
	Pinned   *bool
	Muted    *bool
	MuteEnd  int64
}

// Contact represents an individual account.
type Contact struct {
	ID           string `json:"id"`
	Name         string `json:"name,omitempty"`
	PushName     string `json:"notify,omitempty"`
	BusinessName string `json:"verifiedName,omitempty"`
}

// Message is a stored chat message. Timestamps are unix milliseconds.
type Message struct {
	ID          string  `json:"id"`
	ChatID      string  `json:"chatId"`
	SenderID    string  `json:"sender,omitempty"`
	PushName    string  `json:"pushName,omitempty"`
	FromMe      bool    `json:"fromMe"`
	Timestamp   int64   `json:"timestamp"`
	Type        string  `json:"type"`
	Body        string  `json:"body,omitempty"`
	Caption     string  `json:"caption,omitempty"`
	FileName    string  `json:"fileName,omitempty"`
	MimeType    string  `json:"mimetype,omitempty"`
	ContactName string  `json:"contactName,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
	Reaction    string  `json:"reaction,omitempty"`
	TargetID    string  `json:"targetId,omitempty"`
	QuotedID    string  `json:"quotedId,omitempty"`
	Status      string  `json:"status,omitempty"`
	MediaPath   string  `json:"mediaPath,omitempty"`
}

// Participant is one member of a group.
type Participant struct {
	ID           string `json:"id"`
	PhoneNumber  string `json:"phoneNumber,omitempty"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin"`
}

// Group holds cached group metadata.
type Group struct {
	ID           string        `json:"id"`
	Subject      string        `json:"subject"`
	Description  string        `json:"description,omitempty"`
	Owner        string        `json:"owner,omitempty"`
	CreatedAt    int64         `json:"creation,omitempty"`
	Participants []Participant `json:"participants"`
	Announce     bool          `json:"announce"`
	Restrict     bool          `json:"restrict"`
}

// LastMessage summarizes the newest message of a chat.
type LastMessage struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Preview   string `json:"preview"`
	FromMe    bool   `json:"fromMe"`
}

// OverviewEntry is one row of the recent-chats listing.
type OverviewEntry struct {
	ID                    string       `json:"id"`
	Name                  string       `json:"name"`
	IsGroup               bool         `json:"isGroup"`
	UnreadCount           int          `json:"unreadCount"`
	LastMessage           *LastMessage `json:"lastMessage"`
	ProfilePicture        string       `json:"profilePicture,omitempty"`
	ConversationTimestamp int64        `json:"conversationTimestamp"`
}

// ContactEntry is one row of the contacts listing.
type ContactEntry struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	PushName       string `json:"notify,omitempty"`
	BusinessName   string `json:"verifiedName,omitempty"`
	ProfilePicture string `json:"profilePicture,omitempty"`
}

// Stats counts what the store currently holds.
type Stats struct {
	Chats      int `json:"chats"`
	Contacts   int `json:"contacts"`
	Messages   int `json:"messages"`
	Groups     int `json:"groups"`
	MediaFiles int `json:"mediaFiles"`
}

// ChatFilter restricts overview listings by chat kind.
type ChatFilter string

const (
	FilterAll      ChatFilter = "all"
	FilterGroup    ChatFilter = "group"
	FilterPersonal ChatFilter = "personal"
)

// Page selects a window of a listing.
type Page struct {
	Offset int
	Limit  int
}
