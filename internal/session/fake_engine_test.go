package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/wa"
	"github.com/matheus3301/wppbridge/internal/webhook"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
)

// fakeEngine records every call and lets tests inject events synchronously.
type fakeEngine struct {
	mu        sync.Mutex
	handler   func(any)
	self      wa.SelfInfo
	connected bool
	loggedIn  bool
	connects  int
	loggedOut bool
	deleted   bool
	closed    bool

	pairCode   string
	sent       []sentMessage
	sendErrs   map[string]error
	presences  []bool
	markedRead []string
	registered map[string]bool
	pictures   map[string]string
	groups     map[string]*types.GroupInfo
	download   []byte
	inviteLink string
	joinedCode string
	settings   []string
	nextID     int

	// downloadGate, when set, holds Download until it is closed.
	downloadGate chan struct{}
}

type sentMessage struct {
	To  types.JID
	Msg *waE2E.Message
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{
		sendErrs:   make(map[string]error),
		registered: make(map[string]bool),
		pictures:   make(map[string]string),
		groups:     make(map[string]*types.GroupInfo),
	}
}

func (f *fakeEngine) emit(evt any) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(evt)
	}
}

func (f *fakeEngine) Connect(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connects++
	f.connected = true
	return nil
}

func (f *fakeEngine) connectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connects
}

func (f *fakeEngine) Disconnect() {
	f.mu.Lock()
	f.connected = false
	f.mu.Unlock()
}

func (f *fakeEngine) Close() error {
	f.mu.Lock()
	f.closed, f.connected = true, false
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) Logout(ctx context.Context) error {
	f.mu.Lock()
	f.loggedOut, f.loggedIn = true, false
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) DeleteCredentials(ctx context.Context) error {
	f.mu.Lock()
	f.deleted = true
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *fakeEngine) IsLoggedIn() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeEngine) Self() wa.SelfInfo {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.self
}

func (f *fakeEngine) PairPhone(ctx context.Context, phone string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pairCode == "" {
		return "", errors.New("pairing unavailable")
	}
	return f.pairCode, nil
}

func (f *fakeEngine) Subscribe(fn func(evt any)) func() {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *fakeEngine) Send(ctx context.Context, to types.JID, msg *waE2E.Message) (wa.SendResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.sendErrs[to.User]; err != nil {
		return wa.SendResult{}, err
	}
	f.nextID++
	f.sent = append(f.sent, sentMessage{To: to, Msg: msg})
	return wa.SendResult{ID: fmt.Sprintf("SENT%d", f.nextID), Timestamp: time.Unix(1700000000, 0)}, nil
}

func (f *fakeEngine) sentMessages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func (f *fakeEngine) SendChatPresence(ctx context.Context, to types.JID, composing bool) error {
	f.mu.Lock()
	f.presences = append(f.presences, composing)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SendPresence(ctx context.Context, available bool) error { return nil }

func (f *fakeEngine) IsOnWhatsApp(ctx context.Context, phones []string) ([]wa.Registration, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]wa.Registration, 0, len(phones))
	for _, p := range phones {
		out = append(out, wa.Registration{
			Query:      p,
			JID:        types.NewJID(p, types.DefaultUserServer),
			Registered: f.registered[p],
		})
	}
	return out, nil
}

func (f *fakeEngine) ProfilePictureURL(ctx context.Context, jid types.JID) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.pictures[jid.String()]
	if !ok {
		return "", errors.New("no picture")
	}
	return url, nil
}

func (f *fakeEngine) MarkRead(ctx context.Context, chat, sender types.JID, ids []string) error {
	f.mu.Lock()
	f.markedRead = append(f.markedRead, ids...)
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) readIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.markedRead...)
}

func (f *fakeEngine) Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return whatsmeow.UploadResponse{
		URL:        "https://mmg.example/upload",
		DirectPath: "/v/upload",
		FileLength: uint64(len(data)),
	}, nil
}

func (f *fakeEngine) Download(ctx context.Context, msg *waE2E.Message) ([]byte, error) {
	f.mu.Lock()
	gate := f.downloadGate
	f.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.download == nil {
		return nil, errors.New("no media")
	}
	return f.download, nil
}

func (f *fakeEngine) GroupInfo(ctx context.Context, group types.JID) (*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.groups[group.String()]
	if !ok {
		return nil, errors.New("group not found")
	}
	return info, nil
}

func (f *fakeEngine) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*types.GroupInfo, 0, len(f.groups))
	for _, g := range f.groups {
		out = append(out, g)
	}
	return out, nil
}

func (f *fakeEngine) CreateGroup(ctx context.Context, name string, participants []types.JID) (*types.GroupInfo, error) {
	info := &types.GroupInfo{
		JID:       types.NewJID("120363000000000001", types.GroupServer),
		GroupName: types.GroupName{Name: name},
	}
	for _, p := range participants {
		info.Participants = append(info.Participants, types.GroupParticipant{JID: p})
	}
	f.mu.Lock()
	f.groups[info.JID.String()] = info
	f.mu.Unlock()
	return info, nil
}

func (f *fakeEngine) UpdateParticipants(ctx context.Context, group types.JID, participants []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error) {
	out := make([]types.GroupParticipant, 0, len(participants))
	for _, p := range participants {
		out = append(out, types.GroupParticipant{JID: p})
	}
	return out, nil
}

func (f *fakeEngine) SetGroupName(ctx context.Context, group types.JID, name string) error {
	return nil
}

func (f *fakeEngine) SetGroupTopic(ctx context.Context, group types.JID, topic string) error {
	return nil
}

func (f *fakeEngine) SetGroupAnnounce(ctx context.Context, group types.JID, announce bool) error {
	f.mu.Lock()
	f.settings = append(f.settings, map[bool]string{true: "announce", false: "open"}[announce])
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SetGroupLocked(ctx context.Context, group types.JID, locked bool) error {
	f.mu.Lock()
	f.settings = append(f.settings, map[bool]string{true: "locked", false: "unlocked"}[locked])
	f.mu.Unlock()
	return nil
}

func (f *fakeEngine) SetGroupPhoto(ctx context.Context, group types.JID, jpeg []byte) (string, error) {
	return "pic-1", nil
}

func (f *fakeEngine) LeaveGroup(ctx context.Context, group types.JID) error { return nil }

func (f *fakeEngine) JoinGroupWithLink(ctx context.Context, code string) (types.JID, error) {
	f.mu.Lock()
	f.joinedCode = code
	f.mu.Unlock()
	return types.NewJID("120363000000000009", types.GroupServer), nil
}

func (f *fakeEngine) GroupInviteLink(ctx context.Context, group types.JID, reset bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if reset {
		f.inviteLink = "https://chat.whatsapp.com/NEWCODE"
	}
	if f.inviteLink == "" {
		f.inviteLink = "https://chat.whatsapp.com/OLDCODE"
	}
	return f.inviteLink, nil
}

// fakeLedger keeps delivery entries in memory.
type fakeLedger struct {
	mu      sync.Mutex
	entries map[string]*ledgerEntry
	order   []string
	purged  []string
}

type ledgerEntry struct {
	Session, Job, Recipient, Kind, Status, ServerID, Error string
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{entries: make(map[string]*ledgerEntry)}
}

func (l *fakeLedger) Record(ctx context.Context, sessionID, jobID, recipient, kind string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := fmt.Sprintf("entry-%d", len(l.order)+1)
	l.entries[id] = &ledgerEntry{Session: sessionID, Job: jobID, Recipient: recipient, Kind: kind, Status: "queued"}
	l.order = append(l.order, id)
	return id, nil
}

func (l *fakeLedger) MarkSent(ctx context.Context, id, serverMsgID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id].Status, l.entries[id].ServerID = "sent", serverMsgID
	return nil
}

func (l *fakeLedger) MarkFailed(ctx context.Context, id, errMsg string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[id].Status, l.entries[id].Error = "failed", errMsg
	return nil
}

func (l *fakeLedger) PurgeSession(ctx context.Context, sessionID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.purged = append(l.purged, sessionID)
	return int64(len(l.order)), nil
}

func (l *fakeLedger) list() []ledgerEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]ledgerEntry, 0, len(l.order))
	for _, id := range l.order {
		out = append(out, *l.entries[id])
	}
	return out
}

// fakeNotifier records webhook notifications.
type fakeNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *fakeNotifier) Notify(sessionID string, metadata map[string]any, hooks []webhook.Hook, event string, data any) {
	n.mu.Lock()
	n.events = append(n.events, event)
	n.mu.Unlock()
}

type harness struct {
	ctrl     *Controller
	engine   *fakeEngine
	ledger   *fakeLedger
	notifier *fakeNotifier
	bus      *bus.Bus
	paths    Paths
}

func newHarness(t *testing.T, settings Settings, opts Options) *harness {
	t.Helper()
	h := &harness{
		engine:   newFakeEngine(),
		ledger:   newFakeLedger(),
		notifier: &fakeNotifier{},
		bus:      bus.New(),
		paths:    Paths{Root: t.TempDir()},
	}
	if opts.ReconnectDelay == 0 {
		opts.ReconnectDelay = 10 * time.Millisecond
	}
	if opts.ProfileNameDelay == 0 {
		opts.ProfileNameDelay = time.Millisecond
	}
	h.ctrl = New("s1", settings, Deps{
		Paths: h.paths,
		Bus:   h.bus,
		Engines: func(ctx context.Context, path, device string) (wa.Engine, error) {
			return h.engine, nil
		},
		Notifier: h.notifier,
		Ledger:   h.ledger,
		Logger:   zap.NewNop(),
		Options:  opts,
	})
	t.Cleanup(func() { _ = h.ctrl.Close() })
	return h
}

// link connects the controller and completes the link.
func (h *harness) link(t *testing.T) {
	t.Helper()
	if err := h.ctrl.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	h.engine.mu.Lock()
	h.engine.self = wa.SelfInfo{Phone: "628000000001", Name: "Bridge"}
	h.engine.loggedIn = true
	h.engine.mu.Unlock()
	h.engine.emit(wa.Connected{})
	if got := h.ctrl.State(); got != "connected" {
		t.Fatalf("state = %s, want connected", got)
	}
}

// waitEvent reads ch until an event of kind arrives.
func waitEvent(t *testing.T, ch <-chan bus.Event, kind string) bus.Event {
	t.Helper()
	timeout := time.After(3 * time.Second)
	for {
		select {
		case evt := <-ch:
			if evt.Kind == kind {
				return evt
			}
		case <-timeout:
			t.Fatalf("timed out waiting for %s", kind)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
