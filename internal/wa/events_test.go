package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/proto/waSyncAction"
	"go.mau.fi/whatsmeow/proto/waWeb"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func liveEvent(msg *waE2E.Message) *events.Message {
	return &events.Message{
		Info: types.MessageInfo{
			ID:        "M1",
			Timestamp: time.Unix(1700000000, 0),
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("628111", types.DefaultUserServer),
				Sender: types.NewJID("628111", types.DefaultUserServer),
			},
		},
		Message: msg,
	}
}

func TestTranslateConnectionEvents(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"connected", &events.Connected{}, Connected{}},
		{"disconnected", &events.Disconnected{}, Disconnected{Reason: "connection closed"}},
		{"stream replaced", &events.StreamReplaced{}, Disconnected{Reason: "stream replaced"}},
		{"unknown", &events.AppStateSyncComplete{}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Translate(tt.in); got != tt.want {
				t.Errorf("Translate() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestTranslateLoggedOut(t *testing.T) {
	got, ok := Translate(&events.LoggedOut{OnConnect: true, Reason: events.ConnectFailureLoggedOut}).(LoggedOut)
	if !ok {
		t.Fatalf("Translate returned %T, want LoggedOut", got)
	}
	if !got.OnConnect {
		t.Error("OnConnect lost")
	}
}

func TestTranslateMessage(t *testing.T) {
	got, ok := Translate(liveEvent(&waE2E.Message{Conversation: proto.String("hi")})).(IncomingMessage)
	if !ok {
		t.Fatalf("Translate returned %T, want IncomingMessage", got)
	}
	if got.Message.Body != "hi" || got.Raw == nil {
		t.Errorf("message = %+v", got.Message)
	}
}

func TestTranslateReaction(t *testing.T) {
	evt := liveEvent(&waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{
		Text: proto.String("👍"),
		Key:  &waCommon.MessageKey{ID: proto.String("TARGET")},
	}})
	got, ok := Translate(evt).(Reaction)
	if !ok {
		t.Fatalf("Translate returned %T, want Reaction", got)
	}
	if got.TargetID != "TARGET" || got.Emoji != "👍" {
		t.Errorf("reaction = %+v", got)
	}
}

func TestTranslateRevoke(t *testing.T) {
	evt := liveEvent(&waE2E.Message{ProtocolMessage: &waE2E.ProtocolMessage{
		Type: waE2E.ProtocolMessage_REVOKE.Enum(),
		Key:  &waCommon.MessageKey{ID: proto.String("GONE")},
	}})
	got, ok := Translate(evt).(MessageRevoked)
	if !ok {
		t.Fatalf("Translate returned %T, want MessageRevoked", got)
	}
	if got.TargetID != "GONE" || got.ChatID != "628111@s.whatsapp.net" {
		t.Errorf("revoke = %+v", got)
	}
}

func TestTranslateHistorySync(t *testing.T) {
	msgTS := uint64(1700000000)
	got, ok := Translate(&events.HistorySync{
		Data: &waHistorySync.HistorySync{
			Conversations: []*waHistorySync.Conversation{
				{
					ID:          proto.String("120363@g.us"),
					Name:        proto.String("Team"),
					UnreadCount: proto.Uint32(3),
					Messages: []*waHistorySync.HistorySyncMsg{
						{Message: &waWeb.WebMessageInfo{
							Key: &waCommon.MessageKey{
								ID:          proto.String("H1"),
								Participant: proto.String("628222@s.whatsapp.net"),
							},
							Message:          &waE2E.Message{Conversation: proto.String("old")},
							MessageTimestamp: proto.Uint64(msgTS),
						}},
						{Message: &waWeb.WebMessageInfo{}},
					},
				},
			},
		},
	}).(HistoryBatch)
	if !ok {
		t.Fatalf("Translate returned %T, want HistoryBatch", got)
	}
	if len(got.Chats) != 1 {
		t.Fatalf("chats = %d, want 1", len(got.Chats))
	}
	hc := got.Chats[0]
	if !hc.Chat.IsGroup || hc.Chat.Name != "Team" || hc.Chat.UnreadCount != 3 {
		t.Errorf("chat = %+v", hc.Chat)
	}
	if len(hc.Messages) != 1 || hc.Messages[0].SenderID != "628222@s.whatsapp.net" {
		t.Errorf("messages = %+v", hc.Messages)
	}
}

func TestTranslateHistorySyncNilData(t *testing.T) {
	if got := Translate(&events.HistorySync{}); got != nil {
		t.Errorf("Translate(nil data) = %#v, want nil", got)
	}
}

func TestTranslateReceipt(t *testing.T) {
	got, ok := Translate(&events.Receipt{
		MessageSource: types.MessageSource{Chat: types.NewJID("628111", types.DefaultUserServer)},
		MessageIDs:    []types.MessageID{"A", "B"},
		Type:          types.ReceiptTypeRead,
		Timestamp:     time.Now(),
	}).(Receipt)
	if !ok {
		t.Fatalf("Translate returned %T, want Receipt", got)
	}
	if got.Status != StatusRead || len(got.MessageIDs) != 2 {
		t.Errorf("receipt = %+v", got)
	}
}

func TestTranslateGroupInfo(t *testing.T) {
	sender := types.NewJID("628111", types.DefaultUserServer)
	got, ok := Translate(&events.GroupInfo{
		JID:    types.NewJID("120363", types.GroupServer),
		Sender: &sender,
		Name:   &types.GroupName{Name: "Renamed"},
		Join:   []types.JID{types.NewJID("628333", types.DefaultUserServer)},
	}).(GroupChange)
	if !ok {
		t.Fatalf("Translate returned %T, want GroupChange", got)
	}
	if got.Name == nil || *got.Name != "Renamed" {
		t.Errorf("name = %v", got.Name)
	}
	if len(got.Join) != 1 || got.Join[0] != "628333@s.whatsapp.net" {
		t.Errorf("join = %v", got.Join)
	}
	if got.Actor != "628111@s.whatsapp.net" {
		t.Errorf("actor = %q", got.Actor)
	}
}

func TestPushNameContactJIDNormalized(t *testing.T) {
	got, ok := Translate(&events.PushName{
		JID:         types.JID{User: "628111", Server: types.DefaultUserServer, Device: 2},
		NewPushName: "Ann",
	}).(ContactUpdate)
	if !ok {
		t.Fatalf("Translate returned %T, want ContactUpdate", got)
	}
	if got.Contact.ID != "628111@s.whatsapp.net" || got.Contact.PushName != "Ann" {
		t.Errorf("contact = %+v", got.Contact)
	}
}

func TestDispatcherOrderAndUnsubscribe(t *testing.T) {
	var d dispatcher
	var seen []string
	unsubA := d.subscribe(func(any) { seen = append(seen, "a") })
	d.subscribe(func(any) { seen = append(seen, "b") })

	d.emit(Connected{})
	unsubA()
	unsubA()
	d.emit(Connected{})
	d.emit(nil)

	want := []string{"a", "b", "b"}
	if len(seen) != len(want) {
		t.Fatalf("seen = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("seen = %v, want %v", seen, want)
		}
	}
}

func TestGroupFromInfo(t *testing.T) {
	info := &types.GroupInfo{
		JID:      types.NewJID("120363", types.GroupServer),
		OwnerJID: types.NewJID("628111", types.DefaultUserServer),
		Participants: []types.GroupParticipant{
			{JID: types.NewJID("628111", types.DefaultUserServer), IsSuperAdmin: true},
			{JID: types.NewJID("628222", types.DefaultUserServer)},
		},
	}
	info.Name = "Team"
	g := GroupFromInfo(info)
	if g.Subject != "Team" || g.Owner != "628111@s.whatsapp.net" {
		t.Errorf("group = %+v", g)
	}
	if !g.Participants[0].IsAdmin || g.Participants[1].IsAdmin {
		t.Errorf("participants = %+v", g.Participants)
	}
	if g.Participants[1].PhoneNumber != "628222@s.whatsapp.net" {
		t.Errorf("phone = %q", g.Participants[1].PhoneNumber)
	}
}

func TestTranslateChatAppState(t *testing.T) {
	jid := types.NewJID("628111", types.DefaultUserServer)
	at := time.UnixMilli(1700000000000)
	tests := []struct {
		name  string
		evt   any
		check func(ChatUpdate) bool
	}{
		{"archive", &events.Archive{JID: jid, Timestamp: at, Action: &waSyncAction.ArchiveChatAction{Archived: proto.Bool(true)}},
			func(u ChatUpdate) bool { return u.Archived != nil && *u.Archived }},
		{"pin", &events.Pin{JID: jid, Timestamp: at, Action: &waSyncAction.PinAction{Pinned: proto.Bool(false)}},
			func(u ChatUpdate) bool { return u.Pinned != nil && !*u.Pinned }},
		{"mute", &events.Mute{JID: jid, Timestamp: at, Action: &waSyncAction.MuteAction{Muted: proto.Bool(true), MuteEndTimestamp: proto.Int64(1700003600)}},
			func(u ChatUpdate) bool { return u.Muted != nil && *u.Muted && u.MuteEnd == 1700003600000 }},
		{"read", &events.MarkChatAsRead{JID: jid, Timestamp: at, Action: &waSyncAction.MarkChatAsReadAction{Read: proto.Bool(true)}},
			func(u ChatUpdate) bool { return u.Read != nil && *u.Read }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Translate(tt.evt).(ChatUpdate)
			if !ok {
				t.Fatalf("Translate returned %T, want ChatUpdate", Translate(tt.evt))
			}
			if got.ChatID != "628111@s.whatsapp.net" || got.Timestamp != at.UnixMilli() || !tt.check(got) {
				t.Errorf("update = %+v", got)
			}
		})
	}
}
