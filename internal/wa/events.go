package wa

import (
	"sync"

	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// Receipt statuses carried in Receipt.Status and store.Message.Status.
const (
	StatusDelivered = "delivered"
	StatusRead      = "read"
	StatusPlayed    = "played"
)

// Translate converts a raw whatsmeow event into the engine's own event
// types. It returns nil for events the bridge does not surface.
func Translate(rawEvt any) any {
	switch evt := rawEvt.(type) {
	case *events.Message:
		return translateMessage(evt)
	case *events.HistorySync:
		return translateHistory(evt)
	case *events.Connected:
		return Connected{}
	case *events.Disconnected:
		return Disconnected{Reason: "connection closed"}
	case *events.StreamReplaced:
		return Disconnected{Reason: "stream replaced"}
	case *events.LoggedOut:
		return LoggedOut{Reason: evt.Reason.String(), OnConnect: evt.OnConnect}
	case *events.ConnectFailure:
		if evt.Reason.IsLoggedOut() {
			return LoggedOut{Reason: evt.Reason.String(), OnConnect: true}
		}
		return Disconnected{Reason: evt.Reason.String()}
	case *events.TemporaryBan:
		return TemporaryBan{Reason: evt.Code.String(), Expire: evt.Expire}
	case *events.PairSuccess:
		return PairSuccess{ID: evt.ID.ToNonAD().String(), Platform: evt.Platform}
	case *events.Receipt:
		return translateReceipt(evt)
	case *events.Presence:
		p := Presence{From: evt.From.ToNonAD().String(), Available: !evt.Unavailable}
		if !evt.LastSeen.IsZero() {
			p.LastSeen = evt.LastSeen.UnixMilli()
		}
		return p
	case *events.ChatPresence:
		return ChatPresence{
			ChatID:   evt.Chat.ToNonAD().String(),
			SenderID: evt.Sender.ToNonAD().String(),
			State:    string(evt.State),
			Media:    string(evt.Media),
		}
	case *events.GroupInfo:
		return translateGroupInfo(evt)
	case *events.JoinedGroup:
		return JoinedGroup{Group: GroupFromInfo(&evt.GroupInfo)}
	case *events.Contact:
		name := evt.Action.GetFullName()
		if name == "" {
			name = evt.Action.GetFirstName()
		}
		return ContactUpdate{Contact: store.Contact{ID: evt.JID.ToNonAD().String(), Name: name}}
	case *events.PushName:
		return ContactUpdate{Contact: store.Contact{ID: evt.JID.ToNonAD().String(), PushName: evt.NewPushName}}
	case *events.BusinessName:
		return ContactUpdate{Contact: store.Contact{ID: evt.JID.ToNonAD().String(), BusinessName: evt.NewBusinessName}}
	case *events.DeleteChat:
		return ChatDeleted{ChatID: evt.JID.ToNonAD().String()}
	case *events.Archive:
		v := evt.Action.GetArchived()
		return ChatUpdate{ChatID: evt.JID.ToNonAD().String(), Archived: &v, Timestamp: evt.Timestamp.UnixMilli()}
	case *events.Pin:
		v := evt.Action.GetPinned()
		return ChatUpdate{ChatID: evt.JID.ToNonAD().String(), Pinned: &v, Timestamp: evt.Timestamp.UnixMilli()}
	case *events.Mute:
		v := evt.Action.GetMuted()
		u := ChatUpdate{ChatID: evt.JID.ToNonAD().String(), Muted: &v, Timestamp: evt.Timestamp.UnixMilli()}
		if end := evt.Action.GetMuteEndTimestamp(); v && end > 0 {
			u.MuteEnd = end * 1000
		}
		return u
	case *events.MarkChatAsRead:
		v := evt.Action.GetRead()
		return ChatUpdate{ChatID: evt.JID.ToNonAD().String(), Read: &v, Timestamp: evt.Timestamp.UnixMilli()}
	case *events.CallOffer:
		return Call{From: evt.From.ToNonAD().String(), CallID: evt.CallID, Timestamp: evt.Timestamp.UnixMilli()}
	}
	return nil
}

func translateMessage(evt *events.Message) any {
	if evt.Message == nil {
		return nil
	}
	msg := ParseLiveMessage(evt)
	switch {
	case IsRevoke(evt.Message):
		return MessageRevoked{ChatID: msg.ChatID, TargetID: msg.TargetID, SenderID: msg.SenderID}
	case msg.Type == TypeReaction:
		return Reaction{
			ChatID:    msg.ChatID,
			TargetID:  msg.TargetID,
			SenderID:  msg.SenderID,
			Emoji:     msg.Reaction,
			FromMe:    msg.FromMe,
			Timestamp: msg.Timestamp,
		}
	case msg.Type == TypeProtocol:
		return nil
	}
	return IncomingMessage{Message: msg, Raw: evt.Message}
}

func translateHistory(evt *events.HistorySync) any {
	data := evt.Data
	if data == nil {
		return nil
	}
	var batch HistoryBatch
	for _, conv := range data.GetConversations() {
		chatID := conv.GetID()
		if chatID == "" {
			continue
		}
		hc := HistoryChat{Chat: ChatFromID(chatID)}
		hc.Chat.Name = conv.GetName()
		hc.Chat.UnreadCount = int(conv.GetUnreadCount())
		hc.Chat.ConversationTimestamp = int64(conv.GetConversationTimestamp()) * 1000
		for _, hm := range conv.GetMessages() {
			if m, ok := ParseHistoryMessage(chatID, hm.GetMessage()); ok {
				hc.Messages = append(hc.Messages, m)
			}
		}
		batch.Chats = append(batch.Chats, hc)
	}
	if len(batch.Chats) == 0 {
		return nil
	}
	return batch
}

func translateReceipt(evt *events.Receipt) any {
	var status string
	switch evt.Type {
	case types.ReceiptTypeDelivered:
		status = StatusDelivered
	case types.ReceiptTypeRead, types.ReceiptTypeReadSelf:
		status = StatusRead
	case types.ReceiptTypePlayed, types.ReceiptTypePlayedSelf:
		status = StatusPlayed
	default:
		return nil
	}
	return Receipt{
		ChatID:     evt.Chat.ToNonAD().String(),
		SenderID:   evt.Sender.ToNonAD().String(),
		MessageIDs: append([]string(nil), evt.MessageIDs...),
		Status:     status,
		Timestamp:  evt.Timestamp.UnixMilli(),
	}
}

func translateGroupInfo(evt *events.GroupInfo) any {
	c := GroupChange{GroupID: evt.JID.ToNonAD().String(), Timestamp: evt.Timestamp.UnixMilli()}
	if evt.Sender != nil {
		c.Actor = evt.Sender.ToNonAD().String()
	}
	if evt.Name != nil {
		c.Name = &evt.Name.Name
	}
	if evt.Topic != nil {
		c.Topic = &evt.Topic.Topic
	}
	if evt.Announce != nil {
		c.Announce = &evt.Announce.IsAnnounce
	}
	if evt.Locked != nil {
		c.Locked = &evt.Locked.IsLocked
	}
	c.Join = jidStrings(evt.Join)
	c.Leave = jidStrings(evt.Leave)
	c.Promote = jidStrings(evt.Promote)
	c.Demote = jidStrings(evt.Demote)
	return c
}

func jidStrings(jids []types.JID) []string {
	if len(jids) == 0 {
		return nil
	}
	out := make([]string, len(jids))
	for i, j := range jids {
		out[i] = j.ToNonAD().String()
	}
	return out
}

// dispatcher fans translated events out to subscribers in registration order.
type dispatcher struct {
	mu     sync.Mutex
	nextID int
	subs   map[int]func(any)
	order  []int
}

func (d *dispatcher) subscribe(fn func(any)) func() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.subs == nil {
		d.subs = make(map[int]func(any))
	}
	id := d.nextID
	d.nextID++
	d.subs[id] = fn
	d.order = append(d.order, id)
	var once sync.Once
	return func() {
		once.Do(func() {
			d.mu.Lock()
			defer d.mu.Unlock()
			delete(d.subs, id)
			for i, v := range d.order {
				if v == id {
					d.order = append(d.order[:i], d.order[i+1:]...)
					break
				}
			}
		})
	}
}

func (d *dispatcher) emit(evt any) {
	if evt == nil {
		return
	}
	d.mu.Lock()
	fns := make([]func(any), 0, len(d.order))
	for _, id := range d.order {
		fns = append(fns, d.subs[id])
	}
	d.mu.Unlock()
	for _, fn := range fns {
		fn(evt)
	}
}
