package sync

import (
	"testing"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/store"
	"github.com/matheus3301/wppbridge/internal/wa"
	"go.uber.org/zap"
)

type emitted struct {
	kind    string
	payload any
}

type recorder struct {
	events []emitted
}

func (r *recorder) Emit(kind string, payload any) {
	r.events = append(r.events, emitted{kind, payload})
}

func (r *recorder) kinds() []string {
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.kind
	}
	return out
}

func newEngine(t *testing.T) (*Engine, *store.Store, *recorder) {
	t.Helper()
	st := store.New(10, zap.NewNop())
	rec := &recorder{}
	return NewEngine(st, rec, zap.NewNop()), st, rec
}

func msg(chat, id string, ts int64) store.Message {
	return store.Message{ID: id, ChatID: chat, SenderID: chat, Timestamp: ts, Type: "text", Body: "hi " + id}
}

func TestEngineIngestMessage(t *testing.T) {
	e, st, _ := newEngine(t)

	e.IngestMessage(msg("a@s.whatsapp.net", "m1", 1000))

	chat, ok := st.Chat("a@s.whatsapp.net")
	if !ok {
		t.Fatal("chat not created")
	}
	if chat.UnreadCount != 1 {
		t.Errorf("UnreadCount = %d, want 1", chat.UnreadCount)
	}
	if got := st.Messages("a@s.whatsapp.net", "", 10); len(got) != 1 || got[0].Body != "hi m1" {
		t.Errorf("messages = %+v", got)
	}
}

func TestEngineIngestReportsEvictions(t *testing.T) {
	e, _, _ := newEngine(t)
	var evicted []string
	for i := range 12 {
		evicted = append(evicted, e.IngestMessage(msg("a@s.whatsapp.net", string(rune('a'+i)), int64(i)))...)
	}
	if len(evicted) != 2 {
		t.Errorf("evicted = %v, want the 2 oldest", evicted)
	}
}

func TestEngineHistoryBatch(t *testing.T) {
	e, st, rec := newEngine(t)

	e.Apply(wa.HistoryBatch{Chats: []wa.HistoryChat{
		{Chat: store.Chat{ID: "a@s.whatsapp.net", UnreadCount: 3}, Messages: []store.Message{msg("a@s.whatsapp.net", "m1", 1), msg("a@s.whatsapp.net", "m2", 2)}},
		{Chat: store.Chat{ID: "b@s.whatsapp.net", UnreadCount: -1}},
	}})

	entries, total := st.Overview(store.FilterAll, store.Page{Limit: 10})
	if total != 1 || entries[0].ID != "a@s.whatsapp.net" {
		t.Errorf("overview = %+v (total %d), want only the chat with messages", entries, total)
	}
	if entries[0].UnreadCount != 3 {
		t.Errorf("UnreadCount = %d, want 3 from the history chat", entries[0].UnreadCount)
	}
	if len(rec.events) != 1 || rec.events[0].kind != bus.KindChatUpsert {
		t.Fatalf("events = %v", rec.kinds())
	}
	if p := rec.events[0].payload.(HistoryPayload); p.Chats != 2 || p.Messages != 2 {
		t.Errorf("payload = %+v", p)
	}
}

func TestEngineRevokeAndReceipt(t *testing.T) {
	e, st, rec := newEngine(t)
	e.IngestMessage(msg("a@s.whatsapp.net", "m1", 1))
	e.IngestMessage(msg("a@s.whatsapp.net", "m2", 2))

	e.Apply(wa.Receipt{ChatID: "a@s.whatsapp.net", MessageIDs: []string{"m2"}, Status: wa.StatusRead})
	if m, _ := st.Message("a@s.whatsapp.net", "m2"); m.Status != wa.StatusRead {
		t.Errorf("status = %q, want read", m.Status)
	}

	e.Apply(wa.MessageRevoked{ChatID: "a@s.whatsapp.net", TargetID: "m1"})
	if _, ok := st.Message("a@s.whatsapp.net", "m1"); ok {
		t.Error("revoked message still stored")
	}

	want := []string{bus.KindMessageUpdate, bus.KindMessageUpdate}
	if got := rec.kinds(); len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("events = %v, want %v", got, want)
	}
}

func TestEngineChatDeleted(t *testing.T) {
	e, st, rec := newEngine(t)
	e.IngestMessage(msg("a@s.whatsapp.net", "m1", 1))

	e.Apply(wa.ChatDeleted{ChatID: "a@s.whatsapp.net"})

	if _, total := st.Overview(store.FilterAll, store.Page{Limit: 10}); total != 0 {
		t.Errorf("overview total = %d after delete", total)
	}
	if rec.kinds()[0] != bus.KindChatDelete {
		t.Errorf("events = %v", rec.kinds())
	}
}

func TestEngineGroupChange(t *testing.T) {
	e, st, rec := newEngine(t)
	st.UpsertGroup(store.Group{
		ID:      "g@g.us",
		Subject: "old",
		Participants: []store.Participant{
			{ID: "1@s.whatsapp.net"},
			{ID: "2@s.whatsapp.net", IsAdmin: true},
		},
	})
	name := "new"

	e.Apply(wa.GroupChange{
		GroupID: "g@g.us",
		Name:    &name,
		Join:    []string{"3@s.whatsapp.net", "1@s.whatsapp.net"},
		Leave:   []string{"2@s.whatsapp.net"},
		Promote: []string{"1@s.whatsapp.net"},
	})

	g, _ := st.Group("g@g.us")
	if g.Subject != "new" {
		t.Errorf("Subject = %q", g.Subject)
	}
	if len(g.Participants) != 2 {
		t.Fatalf("participants = %+v", g.Participants)
	}
	if g.Participants[0].ID != "1@s.whatsapp.net" || !g.Participants[0].IsAdmin {
		t.Errorf("promote not applied: %+v", g.Participants[0])
	}
	if g.Participants[1].PhoneNumber != "3@s.whatsapp.net" {
		t.Errorf("joined participant = %+v", g.Participants[1])
	}

	got := rec.kinds()
	want := []string{bus.KindGroupUpdate, bus.KindGroupParticipants, bus.KindGroupParticipants, bus.KindGroupParticipants}
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("events = %v, want %v", got, want)
		}
	}
}

func TestEngineIgnoresLifecycleEvents(t *testing.T) {
	e, _, rec := newEngine(t)
	for _, evt := range []any{wa.Connected{}, wa.QRCode{Code: "x"}, wa.IncomingMessage{}, nil} {
		if e.Apply(evt) {
			t.Errorf("Apply(%T) = true, want false", evt)
		}
	}
	if len(rec.events) != 0 {
		t.Errorf("events = %v", rec.kinds())
	}
}

func TestReconcileGroups(t *testing.T) {
	st := store.New(10, zap.NewNop())
	st.UpsertGroup(store.Group{ID: "a@g.us", Subject: "A"})
	r := NewReconciler(st, zap.NewNop())

	added := r.ReconcileGroups([]store.Group{{ID: "a@g.us", Subject: "A2"}, {ID: "b@g.us", Subject: "B"}})

	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}
	if groups := st.Groups(); len(groups) != 2 || groups[0].Subject != "A2" {
		t.Errorf("groups = %+v", groups)
	}
	if c, ok := st.Chat("b@g.us"); !ok || !c.IsGroup || c.Name != "B" {
		t.Errorf("chat = %+v, %v", c, ok)
	}
}

func TestEngineChatUpdate(t *testing.T) {
	e, st, rec := newEngine(t)
	chat := "a@s.whatsapp.net"
	e.IngestMessage(msg(chat, "m1", 1))
	e.IngestMessage(msg(chat, "m2", 2))
	yes := true

	e.Apply(wa.ChatUpdate{ChatID: chat, Archived: &yes, Timestamp: 5})
	e.Apply(wa.ChatUpdate{ChatID: chat, Muted: &yes, MuteEnd: 9000})
	e.Apply(wa.ChatUpdate{ChatID: chat, Read: &yes})

	got, _ := st.Chat(chat)
	if !got.Archived || !got.Muted || got.MuteEnd != 9000 || got.UnreadCount != 0 {
		t.Errorf("chat = %+v", got)
	}
	kinds := rec.kinds()
	if len(kinds) != 3 {
		t.Fatalf("events = %v, want 3 chat updates", kinds)
	}
	for _, k := range kinds {
		if k != bus.KindChatUpdate {
			t.Errorf("event kind = %s, want %s", k, bus.KindChatUpdate)
		}
	}
	first := rec.events[0].payload.(ChatUpdatePayload)
	if first.ID != chat || first.Archived == nil || !*first.Archived || first.Timestamp != 5 {
		t.Errorf("payload = %+v", first)
	}
}

func TestEngineChatUpdateUnmuteClearsEnd(t *testing.T) {
	e, st, _ := newEngine(t)
	chat := "a@s.whatsapp.net"
	yes, no := true, false
	e.Apply(wa.ChatUpdate{ChatID: chat, Muted: &yes, MuteEnd: 9000})
	e.Apply(wa.ChatUpdate{ChatID: chat, Muted: &no})

	if got, _ := st.Chat(chat); got.Muted || got.MuteEnd != 0 {
		t.Errorf("chat = %+v, want unmuted", got)
	}
}
