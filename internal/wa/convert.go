package wa

import (
	"github.com/matheus3301/wppbridge/internal/store"
	"go.mau.fi/whatsmeow/types"
)

// ChatFromID builds an empty chat record for id, with the group flag derived
// from the server part.
func ChatFromID(id string) store.Chat {
	return store.Chat{ID: id, IsGroup: IsGroupID(id), UnreadCount: -1}
}

// GroupFromInfo converts protocol group metadata into the cached form.
func GroupFromInfo(info *types.GroupInfo) store.Group {
	if info == nil {
		return store.Group{}
	}
	g := store.Group{
		ID:           info.JID.ToNonAD().String(),
		Subject:      info.Name,
		Description:  info.Topic,
		Announce:     info.IsAnnounce,
		Restrict:     info.IsLocked,
		Participants: make([]store.Participant, 0, len(info.Participants)),
	}
	if !info.OwnerJID.IsEmpty() {
		g.Owner = info.OwnerJID.ToNonAD().String()
	}
	if !info.GroupCreated.IsZero() {
		g.CreatedAt = info.GroupCreated.UnixMilli()
	}
	for _, p := range info.Participants {
		sp := store.Participant{
			ID:           p.JID.ToNonAD().String(),
			IsAdmin:      p.IsAdmin || p.IsSuperAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		}
		if !p.PhoneNumber.IsEmpty() {
			sp.PhoneNumber = p.PhoneNumber.ToNonAD().String()
		} else if p.JID.Server == types.DefaultUserServer {
			sp.PhoneNumber = sp.ID
		}
		g.Participants = append(g.Participants, sp)
	}
	return g
}
