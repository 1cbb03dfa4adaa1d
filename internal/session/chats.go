package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// PictureBackfillLimit bounds concurrent profile-picture lookups per call.
const PictureBackfillLimit = 20

// Default page sizes.
const (
	DefaultOverviewLimit = 50
	DefaultContactsLimit = 100
	DefaultMessagesLimit = 50
)

// OverviewPage is one page of the recent-chats listing.
type OverviewPage struct {
	Total   int                   `json:"total"`
	Limit   int                   `json:"limit"`
	Offset  int                   `json:"offset"`
	HasMore bool                  `json:"hasMore"`
	Chats   []store.OverviewEntry `json:"chats"`
}

// ContactsPage is one page of the contacts listing.
type ContactsPage struct {
	Total    int                  `json:"total"`
	Limit    int                  `json:"limit"`
	Offset   int                  `json:"offset"`
	HasMore  bool                 `json:"hasMore"`
	Contacts []store.ContactEntry `json:"contacts"`
}

// MessagesPage is a window of one chat's messages in chronological order.
// Cursor is the oldest returned id; pass it as before to page backwards.
type MessagesPage struct {
	ChatID   string          `json:"chatId"`
	IsGroup  bool            `json:"isGroup"`
	Total    int             `json:"total"`
	Limit    int             `json:"limit"`
	Cursor   string          `json:"cursor,omitempty"`
	HasMore  bool            `json:"hasMore"`
	Messages []store.Message `json:"messages"`
}

// ChatInfo describes one chat.
type ChatInfo struct {
	ID             string             `json:"id"`
	Phone          string             `json:"phone,omitempty"`
	Name           string             `json:"name,omitempty"`
	IsGroup        bool               `json:"isGroup"`
	ProfilePicture string             `json:"profilePicture,omitempty"`
	IsRegistered   *bool              `json:"isRegistered,omitempty"`
	UnreadCount    int                `json:"unreadCount"`
	LastMessage    *store.LastMessage `json:"lastMessage,omitempty"`
	Group          *store.Group       `json:"group,omitempty"`
}

func normalizePage(p store.Page, def int) store.Page {
	if p.Limit <= 0 {
		p.Limit = def
	}
	p.Offset = max(p.Offset, 0)
	return p
}

// Overview lists recent chats. Entries without a cached picture are looked up
// when the session is connected.
func (c *Controller) Overview(ctx context.Context, filter store.ChatFilter, page store.Page) OverviewPage {
	page = normalizePage(page, DefaultOverviewLimit)
	entries, total := c.store.Overview(filter, page)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if c.backfillPictures(ctx, ids) {
		for i := range entries {
			entries[i].ProfilePicture, _ = c.store.Picture(entries[i].ID)
		}
	}
	return OverviewPage{
		Total:   total,
		Limit:   page.Limit,
		Offset:  page.Offset,
		HasMore: page.Offset+len(entries) < total,
		Chats:   entries,
	}
}

// Contacts lists individual contacts, optionally filtered by search.
func (c *Controller) Contacts(ctx context.Context, search string, page store.Page) ContactsPage {
	page = normalizePage(page, DefaultContactsLimit)
	entries, total := c.store.Contacts(search, page)

	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	if c.backfillPictures(ctx, ids) {
		for i := range entries {
			entries[i].ProfilePicture, _ = c.store.Picture(entries[i].ID)
		}
	}
	return ContactsPage{
		Total:    total,
		Limit:    page.Limit,
		Offset:   page.Offset,
		HasMore:  page.Offset+len(entries) < total,
		Contacts: entries,
	}
}

// backfillPictures looks up uncached pictures for ids, at most
// PictureBackfillLimit at a time. It reports whether any lookup ran.
func (c *Controller) backfillPictures(ctx context.Context, ids []string) bool {
	missing := c.store.MissingPictures(ids)
	if len(missing) == 0 {
		return false
	}
	eng, err := c.requireEngine()
	if err != nil {
		return false
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(PictureBackfillLimit)
	for _, id := range missing {
		g.Go(func() error {
			jid, err := types.ParseJID(id)
			if err != nil {
				return nil
			}
			url, err := eng.ProfilePictureURL(ctx, jid)
			if err != nil && ctx.Err() != nil {
				return nil
			}
			if err != nil {
				c.logger.Debug("picture backfill failed", zap.String("jid", id), zap.Error(err))
				url = ""
			}
			c.store.SetPicture(id, url)
			return nil
		})
	}
	_ = g.Wait()
	return true
}

// Messages returns up to limit messages of chatID older than before.
func (c *Controller) Messages(chatID, before string, limit int) (MessagesPage, error) {
	jid, err := c.chatID(chatID)
	if err != nil {
		return MessagesPage{}, err
	}
	if limit <= 0 {
		limit = DefaultMessagesLimit
	}
	id := jid.String()
	msgs := c.store.Messages(id, before, limit)
	if msgs == nil {
		msgs = []store.Message{}
	}
	page := MessagesPage{
		ChatID:   id,
		IsGroup:  jid.Server == types.GroupServer,
		Limit:    limit,
		Messages: msgs,
	}
	if d, ok := c.store.Details(id); ok {
		page.Total = d.MessageCount
	}
	if len(msgs) > 0 {
		page.Cursor = msgs[0].ID
		page.HasMore = len(c.store.Messages(id, page.Cursor, 1)) > 0
	}
	return page, nil
}

func (c *Controller) chatID(chatID string) (types.JID, error) {
	if strings.TrimSpace(chatID) == "" {
		return types.EmptyJID, invalid("Chat ID is required")
	}
	jid, err := wa.ChatJID(chatID)
	if err != nil {
		return types.EmptyJID, invalid(fmt.Sprintf("Invalid chat ID %q: %v", chatID, err))
	}
	return jid, nil
}

// ChatInfo merges stored details with live data: group metadata for groups,
// picture and registration for individuals.
func (c *Controller) ChatInfo(ctx context.Context, chatID string) (ChatInfo, error) {
	eng, jid, err := c.target(chatID)
	if err != nil {
		return ChatInfo{}, err
	}
	id := jid.String()
	info := ChatInfo{ID: id, IsGroup: jid.Server == types.GroupServer}
	if d, ok := c.store.Details(id); ok {
		info.Name = d.DisplayName
		info.UnreadCount = d.UnreadCount
		info.LastMessage = d.LastMessage
		info.ProfilePicture = d.ProfilePicture
	}

	if info.IsGroup {
		g, err := c.GroupMetadata(ctx, id)
		if err != nil {
			return ChatInfo{}, err
		}
		info.Group = &g
		if info.Name == "" {
			info.Name = g.Subject
		}
		return info, nil
	}

	info.Phone = jid.User
	if url, err := eng.ProfilePictureURL(ctx, jid); err == nil {
		info.ProfilePicture = url
		c.store.SetPicture(id, url)
	}
	if reg, err := c.IsRegistered(ctx, jid.User); err == nil {
		info.IsRegistered = &reg.IsRegistered
	}
	return info, nil
}

// MarkChatRead sends a read receipt for messageID, or for the newest inbound
// message when messageID is empty, and clears the unread count.
func (c *Controller) MarkChatRead(ctx context.Context, chatID, messageID string) error {
	eng, jid, err := c.target(chatID)
	if err != nil {
		return err
	}
	id := jid.String()

	sender := types.EmptyJID
	if messageID == "" {
		msgs := c.store.Messages(id, "", DefaultMessagesLimit)
		for i := len(msgs) - 1; i >= 0; i-- {
			if !msgs[i].FromMe {
				messageID = msgs[i].ID
				sender, _ = wa.FormatJID(msgs[i].SenderID, false)
				break
			}
		}
	} else if m, ok := c.store.Message(id, messageID); ok {
		sender, _ = wa.FormatJID(m.SenderID, false)
	}

	if messageID != "" {
		if jid.Server != types.GroupServer {
			sender = types.EmptyJID
		}
		if err := eng.MarkRead(ctx, jid, sender, []string{messageID}); err != nil {
			return fmt.Errorf("mark read: %w", err)
		}
	}
	c.store.MarkRead(id)
	return nil
}

// GroupMetadata fetches group metadata and caches it. When the fetch fails a
// cached copy is returned instead.
func (c *Controller) GroupMetadata(ctx context.Context, groupID string) (store.Group, error) {
	jid, err := groupJID(groupID)
	if err != nil {
		return store.Group{}, err
	}
	id := jid.String()

	eng, err := c.requireEngine()
	if err == nil {
		info, ferr := eng.GroupInfo(ctx, jid)
		if ferr == nil {
			g := wa.GroupFromInfo(info)
			c.store.UpsertGroup(g)
			return g, nil
		}
		err = fmt.Errorf("fetch group metadata: %w", ferr)
	}
	if g, ok := c.store.Group(id); ok {
		return g, nil
	}
	return store.Group{}, err
}

// Stats reports what the session's store holds.
func (c *Controller) Stats() store.Stats {
	return c.store.Stats()
}
