package store

import (
	"sort"
	"strings"
	"unicode/utf8"
)

// previewLimit caps text previews, counted in runes.
const previewLimit = 100

// Overview returns the recent-chats listing sorted by conversation timestamp
// (falling back to the last message timestamp) descending, plus the total
// number of entries matching filter.
func (s *Store) Overview(filter ChatFilter, page Page) ([]OverviewEntry, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.overview) == 0 && !s.overviewBuilt {
		s.rebuildOverviewLocked()
	}

	entries := make([]*OverviewEntry, 0, len(s.overview))
	for _, e := range s.overview {
		switch filter {
		case FilterGroup:
			if !e.IsGroup {
				continue
			}
		case FilterPersonal:
			if e.IsGroup {
				continue
			}
		}
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		a, b := orderTimestamp(entries[i]), orderTimestamp(entries[j])
		if a != b {
			return a > b
		}
		return entries[i].ID < entries[j].ID
	})

	total := len(entries)
	start := min(max(page.Offset, 0), total)
	end := total
	if page.Limit > 0 {
		end = min(start+page.Limit, total)
	}
	out := make([]OverviewEntry, 0, end-start)
	for _, e := range entries[start:end] {
		out = append(out, e.clone())
	}
	return out, total
}

func orderTimestamp(e *OverviewEntry) int64 {
	if e.ConversationTimestamp != 0 {
		return e.ConversationTimestamp
	}
	if e.LastMessage != nil {
		return e.LastMessage.Timestamp
	}
	return 0
}

// rebuildOverviewLocked recomputes every entry from the message logs. This is
// the only full scan and runs on cold start or after a snapshot restore.
func (s *Store) rebuildOverviewLocked() {
	s.overview = make(map[string]*OverviewEntry, len(s.logs))
	for chatID := range s.logs {
		s.refreshEntryLocked(chatID)
	}
	s.overviewBuilt = true
}

// refreshEntryLocked recomputes the single overview entry for chatID from the
// newest message in its log. Chats without messages are removed.
func (s *Store) refreshEntryLocked(chatID string) {
	log := s.logs[chatID]
	if log == nil || len(log.msgs) == 0 {
		delete(s.overview, chatID)
		return
	}
	latest := log.msgs[len(log.msgs)-1]
	chat := s.chatLocked(chatID)

	convTS := chat.ConversationTimestamp
	if convTS == 0 {
		convTS = latest.Timestamp
	}
	s.overview[chatID] = &OverviewEntry{
		ID:          chatID,
		Name:        s.resolveNameLocked(chatID),
		IsGroup:     chat.IsGroup,
		UnreadCount: chat.UnreadCount,
		LastMessage: &LastMessage{
			ID:        latest.ID,
			Timestamp: latest.Timestamp,
			Preview:   Preview(latest),
			FromMe:    latest.FromMe,
		},
		ProfilePicture:        s.pictures[chatID],
		ConversationTimestamp: convTS,
	}
}

// resolveNameLocked picks a display name: group subject, contact name,
// contact push name, chat name, then the bare id.
func (s *Store) resolveNameLocked(chatID string) string {
	if g, ok := s.groups[chatID]; ok && g.Subject != "" {
		return g.Subject
	}
	if c, ok := s.contacts[chatID]; ok {
		if c.Name != "" {
			return c.Name
		}
		if c.PushName != "" {
			return c.PushName
		}
	}
	if c, ok := s.chats[chatID]; ok && c.Name != "" {
		return c.Name
	}
	return bareID(chatID)
}

func bareID(id string) string {
	if i := strings.IndexByte(id, '@'); i >= 0 {
		return id[:i]
	}
	return id
}

// Preview derives the one-line overview text for a message.
func Preview(m *Message) string {
	switch m.Type {
	case "text":
		return truncate(m.Body, previewLimit)
	case "image":
		return "📷 Image"
	case "video":
		return "🎥 Video"
	case "audio", "ptt":
		return "🎵 Audio"
	case "document":
		if m.FileName != "" {
			return "📄 " + m.FileName
		}
		return "📄 Document"
	case "sticker":
		return "🎭 Sticker"
	case "contact", "contacts":
		return "👤 Contact: " + m.ContactName
	case "location":
		return "📍 Location"
	case "buttons":
		if m.Body != "" {
			return truncate(m.Body, previewLimit)
		}
		return "Buttons"
	case "template":
		return "Template Message"
	case "list":
		if m.Body != "" {
			return truncate(m.Body, previewLimit)
		}
		return "List"
	case "reaction":
		return "Reaction " + m.Reaction
	}
	return "Message"
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n])
}

func (e *OverviewEntry) clone() OverviewEntry {
	cp := *e
	if e.LastMessage != nil {
		lm := *e.LastMessage
		cp.LastMessage = &lm
	}
	return cp
}
