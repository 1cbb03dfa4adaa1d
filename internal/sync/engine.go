// Package sync applies translated protocol events to a session's
// Conversation Store and re-emits them as outward events.
package sync

import (
	"slices"
	"strings"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

// Emitter publishes an outward event for the session the engine serves.
type Emitter interface {
	Emit(kind string, payload any)
}

// Engine handles idempotent ingestion of protocol events into the store.
type Engine struct {
	store  *store.Store
	emit   Emitter
	logger *zap.Logger
}

// NewEngine creates a new sync engine.
func NewEngine(st *store.Store, emit Emitter, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, emit: emit, logger: logger}
}

// Outward payloads.
type (
	HistoryPayload struct {
		Chats    int `json:"chats"`
		Messages int `json:"messages"`
	}
	StatusPayload struct {
		ChatID     string   `json:"chatId"`
		MessageIDs []string `json:"messageIds"`
		Status     string   `json:"status"`
		Timestamp  int64    `json:"timestamp,omitempty"`
	}
	ParticipantsPayload struct {
		GroupID      string   `json:"id"`
		Participants []string `json:"participants"`
		Action       string   `json:"action"`
		Author       string   `json:"author,omitempty"`
	}
	ChatPayload struct {
		ID string `json:"id"`
	}
	ChatUpdatePayload struct {
		ID        string `json:"id"`
		Archived  *bool  `json:"archived,omitempty"`
		Pinned    *bool  `json:"pinned,omitempty"`
		Muted     *bool  `json:"muted,omitempty"`
		MuteEnd   int64  `json:"muteEndTimestamp,omitempty"`
		Read      *bool  `json:"read,omitempty"`
		Timestamp int64  `json:"timestamp,omitempty"`
	}
)

// IngestMessage stores a live message. It returns the ids evicted by the
// retention cap.
func (e *Engine) IngestMessage(msg store.Message) []string {
	evicted := e.store.UpsertMessage(msg)
	if len(evicted) > 0 {
		e.logger.Debug("retention evicted messages",
			zap.String("chat", msg.ChatID),
			zap.Int("count", len(evicted)),
		)
	}
	return evicted
}

// Apply handles one translated event and reports whether it was consumed.
// Connection lifecycle events and live messages are left to the caller.
func (e *Engine) Apply(evt any) bool {
	switch evt := evt.(type) {
	case wa.HistoryBatch:
		e.IngestHistoryBatch(evt)
	case wa.MessageRevoked:
		e.store.DeleteMessage(evt.ChatID, evt.TargetID)
		e.emit.Emit(bus.KindMessageUpdate, StatusPayload{
			ChatID:     evt.ChatID,
			MessageIDs: []string{evt.TargetID},
			Status:     "revoked",
		})
	case wa.Reaction:
		e.emit.Emit(bus.KindMessageReaction, evt)
	case wa.Receipt:
		for _, id := range evt.MessageIDs {
			e.store.UpdateMessageStatus(evt.ChatID, id, evt.Status)
		}
		e.emit.Emit(bus.KindMessageUpdate, StatusPayload{
			ChatID:     evt.ChatID,
			MessageIDs: evt.MessageIDs,
			Status:     evt.Status,
			Timestamp:  evt.Timestamp,
		})
	case wa.Presence, wa.ChatPresence:
		e.emit.Emit(bus.KindPresenceUpdate, evt)
	case wa.GroupChange:
		e.applyGroupChange(evt)
	case wa.JoinedGroup:
		e.store.UpsertGroup(evt.Group)
		e.store.UpsertChat(store.Chat{ID: evt.Group.ID, Name: evt.Group.Subject, IsGroup: true, UnreadCount: -1})
		e.emit.Emit(bus.KindChatUpsert, evt.Group)
	case wa.ContactUpdate:
		e.store.UpsertContact(evt.Contact)
		e.emit.Emit(bus.KindContactUpdate, evt.Contact)
	case wa.ChatUpdate:
		e.applyChatUpdate(evt)
	case wa.ChatDeleted:
		e.store.DeleteChat(evt.ChatID)
		e.emit.Emit(bus.KindChatDelete, ChatPayload{ID: evt.ChatID})
	case wa.Call:
		e.emit.Emit(bus.KindCall, evt)
	default:
		return false
	}
	return true
}

func (e *Engine) applyChatUpdate(u wa.ChatUpdate) {
	if u.ChatID == "" {
		return
	}
	if u.Archived != nil || u.Pinned != nil || u.Muted != nil {
		e.store.PatchChat(u.ChatID, store.ChatPatch{Archived: u.Archived, Pinned: u.Pinned, Muted: u.Muted, MuteEnd: u.MuteEnd})
	}
	if u.Read != nil && *u.Read {
		e.store.MarkRead(u.ChatID)
	}
	e.emit.Emit(bus.KindChatUpdate, ChatUpdatePayload{
		ID:        u.ChatID,
		Archived:  u.Archived,
		Pinned:    u.Pinned,
		Muted:     u.Muted,
		MuteEnd:   u.MuteEnd,
		Read:      u.Read,
		Timestamp: u.Timestamp,
	})
}

// IngestHistoryBatch stores every conversation of a history sync blob.
func (e *Engine) IngestHistoryBatch(batch wa.HistoryBatch) {
	msgs := 0
	for _, hc := range batch.Chats {
		e.store.UpsertChat(hc.Chat)
		if len(hc.Messages) > 0 {
			e.store.UpsertMessages(hc.Chat.ID, hc.Messages)
		}
		msgs += len(hc.Messages)
	}
	e.logger.Info("history batch ingested", zap.Int("chats", len(batch.Chats)), zap.Int("messages", msgs))
	e.emit.Emit(bus.KindChatUpsert, HistoryPayload{Chats: len(batch.Chats), Messages: msgs})
}

// applyGroupChange patches cached metadata in place. A group that is not
// cached yet is picked up on the next metadata fetch.
func (e *Engine) applyGroupChange(c wa.GroupChange) {
	g, cached := e.store.Group(c.GroupID)
	if c.Name != nil {
		g.Subject = *c.Name
		e.store.UpsertChat(store.Chat{ID: c.GroupID, Name: *c.Name, IsGroup: true, UnreadCount: -1})
	}
	if c.Topic != nil {
		g.Description = *c.Topic
	}
	if c.Announce != nil {
		g.Announce = *c.Announce
	}
	if c.Locked != nil {
		g.Restrict = *c.Locked
	}
	if c.Name != nil || c.Topic != nil || c.Announce != nil || c.Locked != nil {
		e.emit.Emit(bus.KindGroupUpdate, c)
	}

	for _, change := range []struct {
		action string
		ids    []string
	}{
		{"add", c.Join}, {"remove", c.Leave}, {"promote", c.Promote}, {"demote", c.Demote},
	} {
		if len(change.ids) == 0 {
			continue
		}
		g.Participants = patchParticipants(g.Participants, change.action, change.ids)
		e.emit.Emit(bus.KindGroupParticipants, ParticipantsPayload{
			GroupID:      c.GroupID,
			Participants: change.ids,
			Action:       change.action,
			Author:       c.Actor,
		})
	}

	if cached {
		e.store.UpsertGroup(g)
	}
}

func patchParticipants(ps []store.Participant, action string, ids []string) []store.Participant {
	switch action {
	case "add":
		for _, id := range ids {
			if slices.ContainsFunc(ps, func(p store.Participant) bool { return p.ID == id }) {
				continue
			}
			p := store.Participant{ID: id}
			if strings.HasSuffix(id, "@s.whatsapp.net") {
				p.PhoneNumber = id
			}
			ps = append(ps, p)
		}
	case "remove":
		ps = slices.DeleteFunc(ps, func(p store.Participant) bool { return slices.Contains(ids, p.ID) })
	case "promote", "demote":
		for i := range ps {
			if slices.Contains(ids, ps[i].ID) {
				ps[i].IsAdmin = action == "promote"
				if action == "demote" {
					ps[i].IsSuperAdmin = false
				}
			}
		}
	}
	return ps
}
