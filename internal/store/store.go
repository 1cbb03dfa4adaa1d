package store

import (
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// DefaultRetention is the number of newest messages kept per chat.
const DefaultRetention = 100

const (
	userSuffix  = "@s.whatsapp.net"
	groupSuffix = "@g.us"
)

// Store is the authoritative in-memory record for one session. All mutation
// goes through its methods so the overview and media registry stay consistent.
type Store struct {
	mu        sync.Mutex
	retention int
	logger    *zap.Logger

	chats    map[string]*Chat
	contacts map[string]*Contact
	logs     map[string]*messageLog
	groups   map[string]*Group
	pictures map[string]string
	media    map[string]string // message id -> local file

	overview      map[string]*OverviewEntry
	overviewBuilt bool
	contactIndex  []ContactEntry // nil when invalidated
}

// messageLog keeps one chat's messages ordered by ascending timestamp.
type messageLog struct {
	msgs []*Message
	byID map[string]*Message
}

// New creates an empty store keeping at most retention messages per chat.
// A non-positive retention selects DefaultRetention.
func New(retention int, logger *zap.Logger) *Store {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{retention: retention, logger: logger}
	s.resetLocked()
	return s
}

func (s *Store) resetLocked() {
	s.chats = make(map[string]*Chat)
	s.contacts = make(map[string]*Contact)
	s.logs = make(map[string]*messageLog)
	s.groups = make(map[string]*Group)
	s.pictures = make(map[string]string)
	s.media = make(map[string]string)
	s.overview = make(map[string]*OverviewEntry)
	s.overviewBuilt = false
	s.contactIndex = nil
}

// UpsertMessage stores a live message and refreshes its chat's overview entry.
// A new inbound message increments the chat's unread count. Messages evicted by
// the retention cap are returned by id.
func (s *Store) UpsertMessage(msg Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	isNew := s.insertLocked(&msg)
	chat := s.chatLocked(msg.ChatID)
	if isNew && !msg.FromMe {
		chat.UnreadCount++
	}
	evicted := s.enforceRetentionLocked(msg.ChatID)
	s.refreshEntryLocked(msg.ChatID)
	return evicted
}

// UpsertMessages stores a batch for one chat, typically from history sync.
// Unread counts are left to UpsertChat.
func (s *Store) UpsertMessages(chatID string, msgs []Message) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.chatLocked(chatID)
	for i := range msgs {
		m := msgs[i]
		m.ChatID = chatID
		s.insertLocked(&m)
	}
	evicted := s.enforceRetentionLocked(chatID)
	s.refreshEntryLocked(chatID)
	return evicted
}

// UpdateMessageStatus sets the delivery status of a stored message.
func (s *Store) UpdateMessageStatus(chatID, msgID, status string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := s.logs[chatID]
	if log == nil {
		return false
	}
	m, ok := log.byID[msgID]
	if !ok {
		return false
	}
	m.Status = status
	return true
}

func (s *Store) insertLocked(msg *Message) bool {
	log := s.logs[msg.ChatID]
	if log == nil {
		log = &messageLog{byID: make(map[string]*Message)}
		s.logs[msg.ChatID] = log
	}
	m := *msg

	if existing, ok := log.byID[m.ID]; ok {
		if existing.MediaPath != "" && m.MediaPath == "" {
			m.MediaPath = existing.MediaPath
		}
		log.remove(existing)
		log.insert(&m)
		s.registerMediaLocked(&m)
		s.bumpConversationLocked(&m)
		return false
	}
	log.insert(&m)
	s.registerMediaLocked(&m)
	s.bumpConversationLocked(&m)
	return true
}

func (s *Store) bumpConversationLocked(m *Message) {
	chat := s.chatLocked(m.ChatID)
	if m.Timestamp > chat.ConversationTimestamp {
		chat.ConversationTimestamp = m.Timestamp
	}
}

func (s *Store) registerMediaLocked(m *Message) {
	if m.MediaPath != "" {
		s.media[m.ID] = m.MediaPath
	}
}

// enforceRetentionLocked evicts the oldest messages beyond the cap and
// deletes their media files.
func (s *Store) enforceRetentionLocked(chatID string) []string {
	log := s.logs[chatID]
	if log == nil || len(log.msgs) <= s.retention {
		return nil
	}
	n := len(log.msgs) - s.retention
	evicted := make([]string, 0, n)
	for _, m := range log.msgs[:n] {
		delete(log.byID, m.ID)
		s.removeMediaLocked(m.ID)
		evicted = append(evicted, m.ID)
	}
	log.msgs = append([]*Message(nil), log.msgs[n:]...)
	return evicted
}

// Prune applies the retention cap to every chat and returns how many
// messages were evicted.
func (s *Store) Prune() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for chatID := range s.logs {
		total += len(s.enforceRetentionLocked(chatID))
	}
	return total
}

// Message returns a stored message.
func (s *Store) Message(chatID, msgID string) (Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log := s.logs[chatID]; log != nil {
		if m, ok := log.byID[msgID]; ok {
			return *m, true
		}
	}
	return Message{}, false
}

// Messages returns up to limit messages of a chat in chronological order.
// When before is a known message id only older messages are returned.
func (s *Store) Messages(chatID, before string, limit int) []Message {
	if limit <= 0 {
		limit = 50
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[chatID]
	if log == nil {
		return nil
	}
	end := len(log.msgs)
	if before != "" {
		if idx := log.indexOf(before); idx >= 0 {
			end = idx
		}
	}
	start := max(end-limit, 0)
	out := make([]Message, 0, end-start)
	for _, m := range log.msgs[start:end] {
		out = append(out, *m)
	}
	return out
}

// DeleteMessage removes one message and its media file. The chat leaves the
// overview when its last message is removed.
func (s *Store) DeleteMessage(chatID, msgID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := s.logs[chatID]
	if log == nil {
		return false
	}
	m, ok := log.byID[msgID]
	if !ok {
		return false
	}
	log.remove(m)
	s.removeMediaLocked(msgID)
	if len(log.msgs) == 0 {
		delete(s.logs, chatID)
	}
	s.refreshEntryLocked(chatID)
	return true
}

// DeleteChat removes a chat, its message log, overview entry, and media.
func (s *Store) DeleteChat(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if log := s.logs[chatID]; log != nil {
		for _, m := range log.msgs {
			s.removeMediaLocked(m.ID)
		}
	}
	delete(s.logs, chatID)
	delete(s.chats, chatID)
	delete(s.overview, chatID)
}

// UpsertChat merges chat attributes. Empty names do not overwrite known ones
// and a negative UnreadCount leaves the count unchanged.
func (s *Store) UpsertChat(c Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.chatLocked(c.ID)
	if c.Name != "" {
		chat.Name = c.Name
	}
	if c.IsGroup {
		chat.IsGroup = true
	}
	if c.UnreadCount >= 0 {
		chat.UnreadCount = c.UnreadCount
	}
	if c.ConversationTimestamp > chat.ConversationTimestamp {
		chat.ConversationTimestamp = c.ConversationTimestamp
	}
	s.refreshEntryLocked(c.ID)
}

// PatchChat applies app-state flags to a chat, creating it when unknown.
func (s *Store) PatchChat(chatID string, p ChatPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat := s.chatLocked(chatID)
	if p.Archived != nil {
		chat.Archived = *p.Archived
	}
	if p.Pinned != nil {
		chat.Pinned = *p.Pinned
	}
	if p.Muted != nil {
		chat.Muted = *p.Muted
		chat.MuteEnd = 0
		if chat.Muted {
			chat.MuteEnd = p.MuteEnd
		}
	}
	s.refreshEntryLocked(chatID)
}

// MarkRead resets a chat's unread count.
func (s *Store) MarkRead(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if chat, ok := s.chats[chatID]; ok {
		chat.UnreadCount = 0
		s.refreshEntryLocked(chatID)
	}
}

// Chat returns a chat by id.
func (s *Store) Chat(chatID string) (Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[chatID]
	if !ok {
		return Chat{}, false
	}
	return *c, true
}

// ChatDetails describes one chat for the chat-info operation.
type ChatDetails struct {
	Chat
	DisplayName    string       `json:"displayName"`
	LastMessage    *LastMessage `json:"lastMessage,omitempty"`
	MessageCount   int          `json:"messageCount"`
	ProfilePicture string       `json:"profilePicture,omitempty"`
	Group          *Group       `json:"group,omitempty"`
}

// Details returns the merged view of a chat.
func (s *Store) Details(chatID string) (ChatDetails, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.chats[chatID]
	if !ok {
		return ChatDetails{}, false
	}
	d := ChatDetails{
		Chat:           *c,
		DisplayName:    s.resolveNameLocked(chatID),
		ProfilePicture: s.pictures[chatID],
	}
	if log := s.logs[chatID]; log != nil {
		d.MessageCount = len(log.msgs)
	}
	if e := s.overview[chatID]; e != nil && e.LastMessage != nil {
		lm := *e.LastMessage
		d.LastMessage = &lm
	}
	if g, ok := s.groups[chatID]; ok {
		cp := g.clone()
		d.Group = &cp
	}
	return d, true
}

func (s *Store) chatLocked(chatID string) *Chat {
	chat, ok := s.chats[chatID]
	if !ok {
		chat = &Chat{ID: chatID, IsGroup: strings.HasSuffix(chatID, groupSuffix)}
		s.chats[chatID] = chat
	}
	return chat
}

// UpsertGroup caches group metadata and refreshes the chat's display name.
func (s *Store) UpsertGroup(g Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := g.clone()
	s.groups[g.ID] = &cp
	if chat, ok := s.chats[g.ID]; ok {
		chat.IsGroup = true
	}
	s.refreshEntryLocked(g.ID)
}

// Group returns cached group metadata.
func (s *Store) Group(groupID string) (Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return Group{}, false
	}
	return g.clone(), true
}

// Groups returns every cached group sorted by subject.
func (s *Store) Groups() []Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Group, 0, len(s.groups))
	for _, g := range s.groups {
		out = append(out, g.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Subject < out[j].Subject })
	return out
}

// Stats reports store sizes.
func (s *Store) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Stats{
		Chats:      len(s.chats),
		Contacts:   len(s.contacts),
		Groups:     len(s.groups),
		MediaFiles: len(s.media),
	}
	for _, log := range s.logs {
		st.Messages += len(log.msgs)
	}
	return st
}

// Clear drops all state and deletes every tracked media file.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range s.media {
		s.removeMediaLocked(id)
	}
	s.resetLocked()
}

func (g Group) clone() Group {
	g.Participants = append([]Participant(nil), g.Participants...)
	return g
}

func (l *messageLog) insert(m *Message) {
	idx := sort.Search(len(l.msgs), func(i int) bool { return l.msgs[i].Timestamp > m.Timestamp })
	l.msgs = append(l.msgs, nil)
	copy(l.msgs[idx+1:], l.msgs[idx:])
	l.msgs[idx] = m
	l.byID[m.ID] = m
}

func (l *messageLog) remove(m *Message) {
	if idx := l.indexOf(m.ID); idx >= 0 {
		l.msgs = append(l.msgs[:idx], l.msgs[idx+1:]...)
	}
	delete(l.byID, m.ID)
}

func (l *messageLog) indexOf(msgID string) int {
	for i := len(l.msgs) - 1; i >= 0; i-- {
		if l.msgs[i].ID == msgID {
			return i
		}
	}
	return -1
}
