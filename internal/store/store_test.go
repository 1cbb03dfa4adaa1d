package store

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func testStore(t *testing.T, retention int) *Store {
	t.Helper()
	return New(retention, zap.NewNop())
}

func textMsg(chat, id string, ts int64, body string) Message {
	return Message{ID: id, ChatID: chat, Timestamp: ts, Type: "text", Body: body}
}

func TestOverviewExcludesChatsWithoutMessages(t *testing.T) {
	s := testStore(t, 0)
	s.UpsertChat(Chat{ID: "empty@s.whatsapp.net", Name: "Nobody", UnreadCount: -1})
	s.UpsertMessage(textMsg("a@s.whatsapp.net", "m1", 1000, "hi"))

	entries, total := s.Overview(FilterAll, Page{})
	if total != 1 || len(entries) != 1 {
		t.Fatalf("got %d entries (total %d), want 1", len(entries), total)
	}
	if entries[0].ID != "a@s.whatsapp.net" {
		t.Errorf("entry id = %q, want a@s.whatsapp.net", entries[0].ID)
	}
}

func TestDeletingLastMessageRemovesOverviewEntry(t *testing.T) {
	s := testStore(t, 0)
	s.UpsertMessage(textMsg("a@s.whatsapp.net", "m1", 1000, "hi"))

	if !s.DeleteMessage("a@s.whatsapp.net", "m1") {
		t.Fatal("DeleteMessage() = false, want true")
	}
	if entries, _ := s.Overview(FilterAll, Page{}); len(entries) != 0 {
		t.Errorf("overview still has %d entries after deleting last message", len(entries))
	}
}

func TestOverviewTracksNewestMessage(t *testing.T) {
	s := testStore(t, 0)
	chat := "a@s.whatsapp.net"
	s.UpsertMessage(textMsg(chat, "m2", 2000, "second"))
	s.UpsertMessage(textMsg(chat, "m1", 1000, "first (late arrival)"))

	entries, _ := s.Overview(FilterAll, Page{})
	if got := entries[0].LastMessage.ID; got != "m2" {
		t.Errorf("last message = %q, want m2", got)
	}

	s.DeleteMessage(chat, "m2")
	entries, _ = s.Overview(FilterAll, Page{})
	if got := entries[0].LastMessage.ID; got != "m1" {
		t.Errorf("after delete last message = %q, want m1", got)
	}
}

func TestOverviewOrderingIsMonotonic(t *testing.T) {
	s := testStore(t, 0)
	for i := range 30 {
		chat := fmt.Sprintf("%02d@s.whatsapp.net", i)
		// Interleave timestamps so insertion order differs from sort order.
		ts := int64((i*7)%30) * 1000
		s.UpsertMessage(textMsg(chat, "m", ts+1, "x"))
	}

	entries, _ := s.Overview(FilterAll, Page{})
	for i := 1; i < len(entries); i++ {
		if orderTimestamp(&entries[i-1]) < orderTimestamp(&entries[i]) {
			t.Fatalf("entry %d (%d) older than entry %d (%d)", i-1,
				orderTimestamp(&entries[i-1]), i, orderTimestamp(&entries[i]))
		}
	}
}

func TestOverviewPaginationIsConsistent(t *testing.T) {
	s := testStore(t, 0)
	for i := range 23 {
		chat := fmt.Sprintf("c%02d@s.whatsapp.net", i)
		// Some chats share a timestamp to exercise the tie-break.
		s.UpsertMessage(textMsg(chat, "m", int64(i/3), "x"))
	}

	full, total := s.Overview(FilterAll, Page{Limit: 100})
	var paged []OverviewEntry
	for offset := 0; offset < total; offset += 5 {
		page, _ := s.Overview(FilterAll, Page{Offset: offset, Limit: 5})
		paged = append(paged, page...)
	}
	if !reflect.DeepEqual(full, paged) {
		t.Error("concatenated pages differ from single full request")
	}
}

func TestOverviewFilter(t *testing.T) {
	s := testStore(t, 0)
	s.UpsertMessage(textMsg("g1@g.us", "m1", 1, "x"))
	s.UpsertMessage(textMsg("u1@s.whatsapp.net", "m2", 2, "y"))

	groups, _ := s.Overview(FilterGroup, Page{})
	if len(groups) != 1 || !groups[0].IsGroup {
		t.Errorf("group filter = %+v, want one group", groups)
	}
	personal, _ := s.Overview(FilterPersonal, Page{})
	if len(personal) != 1 || personal[0].IsGroup {
		t.Errorf("personal filter = %+v, want one individual chat", personal)
	}
}

func TestUnreadCounting(t *testing.T) {
	s := testStore(t, 0)
	chat := "a@s.whatsapp.net"
	s.UpsertMessage(textMsg(chat, "m1", 1, "hi"))
	s.UpsertMessage(textMsg(chat, "m1", 1, "hi (edited)"))
	mine := textMsg(chat, "m2", 2, "reply")
	mine.FromMe = true
	s.UpsertMessage(mine)

	entries, _ := s.Overview(FilterAll, Page{})
	if entries[0].UnreadCount != 1 {
		t.Errorf("unread = %d, want 1", entries[0].UnreadCount)
	}
	s.MarkRead(chat)
	entries, _ = s.Overview(FilterAll, Page{})
	if entries[0].UnreadCount != 0 {
		t.Errorf("unread after MarkRead = %d, want 0", entries[0].UnreadCount)
	}
}

func TestNameFallback(t *testing.T) {
	tests := []struct {
		name  string
		setup func(s *Store, id string)
		id    string
		want  string
	}{
		{"bare id", func(*Store, string) {}, "628111@s.whatsapp.net", "628111"},
		{"chat name", func(s *Store, id string) { s.UpsertChat(Chat{ID: id, Name: "Chat", UnreadCount: -1}) }, "628111@s.whatsapp.net", "Chat"},
		{"push name beats chat name", func(s *Store, id string) {
			s.UpsertChat(Chat{ID: id, Name: "Chat", UnreadCount: -1})
			s.UpsertContact(Contact{ID: id, PushName: "Push"})
		}, "628111@s.whatsapp.net", "Push"},
		{"contact name beats push name", func(s *Store, id string) {
			s.UpsertContact(Contact{ID: id, Name: "Saved", PushName: "Push"})
		}, "628111@s.whatsapp.net", "Saved"},
		{"group subject", func(s *Store, id string) { s.UpsertGroup(Group{ID: id, Subject: "Team"}) }, "123-456@g.us", "Team"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testStore(t, 0)
			s.UpsertMessage(textMsg(tt.id, "m1", 1, "x"))
			tt.setup(s, tt.id)
			entries, _ := s.Overview(FilterAll, Page{})
			if entries[0].Name != tt.want {
				t.Errorf("name = %q, want %q", entries[0].Name, tt.want)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	long := strings.Repeat("é", 150)
	tests := []struct {
		name string
		msg  Message
		want string
	}{
		{"text", Message{Type: "text", Body: "hello"}, "hello"},
		{"long text truncated", Message{Type: "text", Body: long}, strings.Repeat("é", 100)},
		{"image", Message{Type: "image", Caption: "cap"}, "📷 Image"},
		{"video", Message{Type: "video"}, "🎥 Video"},
		{"audio", Message{Type: "audio"}, "🎵 Audio"},
		{"document named", Message{Type: "document", FileName: "a.pdf"}, "📄 a.pdf"},
		{"document unnamed", Message{Type: "document"}, "📄 Document"},
		{"sticker", Message{Type: "sticker"}, "🎭 Sticker"},
		{"contact", Message{Type: "contact", ContactName: "Ann"}, "👤 Contact: Ann"},
		{"location", Message{Type: "location"}, "📍 Location"},
		{"buttons", Message{Type: "buttons", Body: "Pick one"}, "Pick one"},
		{"buttons empty", Message{Type: "buttons"}, "Buttons"},
		{"template", Message{Type: "template"}, "Template Message"},
		{"list", Message{Type: "list", Body: "Menu"}, "Menu"},
		{"list empty", Message{Type: "list"}, "List"},
		{"unknown", Message{Type: "poll"}, "Message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Preview(&tt.msg); got != tt.want {
				t.Errorf("Preview() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaEvictionFollowsRetention(t *testing.T) {
	dir := t.TempDir()
	s := testStore(t, 100)
	chat := "a@s.whatsapp.net"

	var paths []string
	for i := range 150 {
		path := filepath.Join(dir, fmt.Sprintf("m%03d.jpg", i))
		if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
			t.Fatal(err)
		}
		paths = append(paths, path)
		msg := Message{ID: fmt.Sprintf("m%03d", i), ChatID: chat, Timestamp: int64(i), Type: "image", MediaPath: path}
		s.UpsertMessage(msg)
	}

	for i, path := range paths {
		_, statErr := os.Stat(path)
		_, tracked := s.MediaPath(fmt.Sprintf("m%03d", i))
		if i < 50 {
			if statErr == nil {
				t.Errorf("media %d should have been deleted", i)
			}
			if tracked {
				t.Errorf("media %d still in registry", i)
			}
		} else {
			if statErr != nil {
				t.Errorf("media %d should survive: %v", i, statErr)
			}
			if !tracked {
				t.Errorf("media %d missing from registry", i)
			}
		}
	}
	if got := s.Stats().Messages; got != 100 {
		t.Errorf("messages = %d, want 100", got)
	}
}

func TestClearDeletesTrackedMedia(t *testing.T) {
	dir := t.TempDir()
	s := testStore(t, 0)
	path := filepath.Join(dir, "f.bin")
	if err := os.WriteFile(path, []byte("x"), 0600); err != nil {
		t.Fatal(err)
	}
	s.UpsertMessage(Message{ID: "m1", ChatID: "a@s.whatsapp.net", Timestamp: 1, Type: "document"})
	s.RegisterMedia("a@s.whatsapp.net", "m1", path)

	s.Clear()

	if _, err := os.Stat(path); err == nil {
		t.Error("media file survived Clear()")
	}
	if st := s.Stats(); st != (Stats{}) {
		t.Errorf("stats after Clear() = %+v, want zero", st)
	}
}

func TestDeleteChatRemovesEverything(t *testing.T) {
	s := testStore(t, 0)
	s.UpsertMessage(textMsg("a@s.whatsapp.net", "m1", 1, "x"))
	s.UpsertMessage(textMsg("b@s.whatsapp.net", "m2", 2, "y"))

	s.DeleteChat("a@s.whatsapp.net")

	entries, _ := s.Overview(FilterAll, Page{})
	if len(entries) != 1 || entries[0].ID != "b@s.whatsapp.net" {
		t.Errorf("overview = %+v, want only b", entries)
	}
	if msgs := s.Messages("a@s.whatsapp.net", "", 10); len(msgs) != 0 {
		t.Errorf("messages for deleted chat = %d, want 0", len(msgs))
	}
}

func TestMessagesCursor(t *testing.T) {
	s := testStore(t, 0)
	chat := "a@s.whatsapp.net"
	for i := range 10 {
		s.UpsertMessage(textMsg(chat, fmt.Sprintf("m%d", i), int64(i), "x"))
	}

	latest := s.Messages(chat, "", 3)
	if ids := msgIDs(latest); !reflect.DeepEqual(ids, []string{"m7", "m8", "m9"}) {
		t.Errorf("latest = %v, want [m7 m8 m9]", ids)
	}
	older := s.Messages(chat, "m7", 3)
	if ids := msgIDs(older); !reflect.DeepEqual(ids, []string{"m4", "m5", "m6"}) {
		t.Errorf("older = %v, want [m4 m5 m6]", ids)
	}
}

func msgIDs(msgs []Message) []string {
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestContactsIndex(t *testing.T) {
	s := testStore(t, 0)
	s.UpsertContact(Contact{ID: "2@s.whatsapp.net", Name: "Bob"})
	s.UpsertContact(Contact{ID: "1@s.whatsapp.net", PushName: "alice"})
	s.UpsertContact(Contact{ID: "3@s.whatsapp.net"})
	s.UpsertContact(Contact{ID: "g@g.us", Name: "Group should be skipped"})

	all, total := s.Contacts("", Page{})
	if total != 3 {
		t.Fatalf("total = %d, want 3", total)
	}
	names := []string{all[0].Name, all[1].Name, all[2].Name}
	if !reflect.DeepEqual(names, []string{"3", "Bob", "alice"}) {
		t.Errorf("names = %v, want [3 Bob alice]", names)
	}

	found, _ := s.Contacts("ALI", Page{})
	if len(found) != 1 || found[0].ID != "1@s.whatsapp.net" {
		t.Errorf("search ALI = %+v, want alice", found)
	}

	// The index is invalidated on upsert, not patched.
	s.UpsertContact(Contact{ID: "4@s.whatsapp.net", Name: "Alicia"})
	found, _ = s.Contacts("ali", Page{})
	if len(found) != 2 {
		t.Errorf("search after upsert = %d results, want 2", len(found))
	}
}

func TestMissingPictures(t *testing.T) {
	s := testStore(t, 0)
	s.SetPicture("a", "https://pps/a.jpg")
	s.SetPicture("b", "")

	missing := s.MissingPictures([]string{"a", "b", "c"})
	if !reflect.DeepEqual(missing, []string{"c"}) {
		t.Errorf("missing = %v, want [c]", missing)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	s := testStore(t, 0)
	s.UpsertMessage(textMsg("a@s.whatsapp.net", "m1", 1000, "hi"))
	s.UpsertMessage(textMsg("a@s.whatsapp.net", "m2", 3000, "again"))
	s.UpsertMessage(textMsg("g@g.us", "m3", 2000, "group"))
	s.UpsertGroup(Group{ID: "g@g.us", Subject: "Team", Participants: []Participant{{ID: "a@s.whatsapp.net", IsAdmin: true}}})
	s.UpsertContact(Contact{ID: "a@s.whatsapp.net", Name: "Ann"})
	s.SetPicture("a@s.whatsapp.net", "https://pps/a.jpg")

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); err == nil {
		t.Error("temp file left behind after Save()")
	}

	restored := testStore(t, 0)
	if err := restored.Restore(path); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}

	want, _ := s.Overview(FilterAll, Page{})
	got, _ := restored.Overview(FilterAll, Page{})
	if !reflect.DeepEqual(got, want) {
		t.Errorf("restored overview = %+v\nwant %+v", got, want)
	}
	if g, ok := restored.Group("g@g.us"); !ok || g.Subject != "Team" {
		t.Errorf("restored group = %+v, %v", g, ok)
	}
}

func TestRestoreMissingFile(t *testing.T) {
	s := testStore(t, 0)
	if err := s.Restore(filepath.Join(t.TempDir(), "none.json")); err != nil {
		t.Errorf("Restore(missing) = %v, want nil", err)
	}
}

func TestRestoreDeletesCorruptFile(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", ""},
		{"not an object", "[1,2,3]"},
		{"truncated", `{"chats": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "store.json")
			if err := os.WriteFile(path, []byte(tt.content), 0600); err != nil {
				t.Fatal(err)
			}
			s := testStore(t, 0)
			err := s.Restore(path)
			if !errors.Is(err, ErrCorruptSnapshot) {
				t.Errorf("Restore() = %v, want ErrCorruptSnapshot", err)
			}
			if _, statErr := os.Stat(path); statErr == nil {
				t.Error("corrupt snapshot was not deleted")
			}
			if entries, _ := s.Overview(FilterAll, Page{}); len(entries) != 0 {
				t.Errorf("store not empty after corrupt restore: %d entries", len(entries))
			}
		})
	}
}

func TestPatchChatKeepsOverviewRules(t *testing.T) {
	s := testStore(t, 0)
	pinned := true
	s.PatchChat("empty@s.whatsapp.net", ChatPatch{Pinned: &pinned})
	if _, total := s.Overview(FilterAll, Page{}); total != 0 {
		t.Errorf("overview total = %d, chats without messages must stay hidden", total)
	}
	if c, ok := s.Chat("empty@s.whatsapp.net"); !ok || !c.Pinned {
		t.Errorf("chat = %+v, %v", c, ok)
	}
}
