package wa

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/matheus3301/wppbridge/internal/logging"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"

	_ "github.com/mattn/go-sqlite3"
)

// ErrAlreadyLoggedIn is returned when pairing is requested for a device that
// already holds credentials.
var ErrAlreadyLoggedIn = errors.New("already logged in")

// Adapter is the whatsmeow-backed Engine. Credentials live in a per-session
// sqlite file.
type Adapter struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	logger    *zap.Logger
	events    dispatcher

	mu       sync.Mutex
	qrCancel context.CancelFunc
}

var _ Engine = (*Adapter)(nil)

// NewAdapter opens the credential store at dbPath and builds a client for its
// first device. deviceName is what the phone shows under linked devices.
func NewAdapter(ctx context.Context, dbPath, deviceName string, logger *zap.Logger) (*Adapter, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deviceName != "" {
		wastore.SetOSInfo(deviceName, [3]uint32{0, 1, 0})
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		logging.WhatsApp(logger.Named("db")),
	)
	if err != nil {
		return nil, fmt.Errorf("create session store: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device store: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, logging.WhatsApp(logger.Named("client")))
	// Reconnects are scheduled by the session controller.
	client.EnableAutoReconnect = false

	a := &Adapter{
		client:    client,
		container: container,
		logger:    logger,
	}
	client.AddEventHandler(a.handle)
	return a, nil
}

func (a *Adapter) handle(rawEvt any) {
	evt := Translate(rawEvt)
	if evt == nil {
		return
	}
	a.events.emit(evt)
}

// Subscribe registers fn for translated events.
func (a *Adapter) Subscribe(fn func(evt any)) func() {
	return a.events.subscribe(fn)
}

// IsLoggedIn returns whether the adapter has valid credentials.
func (a *Adapter) IsLoggedIn() bool {
	return a.client.Store.ID != nil
}

// IsConnected reports whether the socket is up.
func (a *Adapter) IsConnected() bool {
	return a.client.IsConnected()
}

// Self returns the linked account's phone number and push name.
func (a *Adapter) Self() SelfInfo {
	if a.client.Store.ID == nil {
		return SelfInfo{}
	}
	return SelfInfo{Phone: a.client.Store.ID.User, Name: a.client.Store.PushName}
}

// Connect opens the socket. For an unpaired device QR codes are forwarded to
// subscribers as QRCode events until pairing succeeds or times out.
func (a *Adapter) Connect(ctx context.Context) error {
	if !a.IsLoggedIn() {
		qrCtx, cancel := context.WithCancel(context.Background())
		qrChan, err := a.client.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			return fmt.Errorf("get QR channel: %w", err)
		}
		a.mu.Lock()
		if a.qrCancel != nil {
			a.qrCancel()
		}
		a.qrCancel = cancel
		a.mu.Unlock()
		go a.forwardQR(qrChan)
	}

	a.logger.Info("connecting to WhatsApp")
	if err := a.client.Connect(); err != nil {
		a.stopQR()
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (a *Adapter) forwardQR(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			a.events.emit(QRCode{Code: item.Code})
		case "timeout":
			a.events.emit(QRTimeout{})
		case "success":
		default:
			reason := item.Event
			if item.Error != nil {
				reason = item.Error.Error()
			}
			a.logger.Warn("QR pairing failed", zap.String("reason", reason))
			a.events.emit(Disconnected{Reason: reason})
		}
	}
}

func (a *Adapter) stopQR() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.qrCancel != nil {
		a.qrCancel()
		a.qrCancel = nil
	}
}

// Disconnect closes the socket without touching credentials.
func (a *Adapter) Disconnect() {
	a.stopQR()
	a.logger.Info("disconnecting from WhatsApp")
	a.client.Disconnect()
}

// Logout invalidates the session on the server and removes credentials.
func (a *Adapter) Logout(ctx context.Context) error {
	return a.client.Logout(ctx)
}

// DeleteCredentials removes the device row so the next Connect pairs anew.
func (a *Adapter) DeleteCredentials(ctx context.Context) error {
	if a.client.Store.ID == nil {
		return nil
	}
	return a.client.Store.Delete(ctx)
}

// Close releases the credential store.
func (a *Adapter) Close() error {
	a.Disconnect()
	return a.container.Close()
}

// PairPhone requests an 8-character linking code for phone.
func (a *Adapter) PairPhone(ctx context.Context, phone string) (string, error) {
	if a.IsLoggedIn() {
		return "", ErrAlreadyLoggedIn
	}
	return a.client.PairPhone(ctx, phone, true, whatsmeow.PairClientChrome, "Chrome (Linux)")
}

// Send delivers msg and returns the server acknowledgement.
func (a *Adapter) Send(ctx context.Context, to types.JID, msg *waE2E.Message) (SendResult, error) {
	resp, err := a.client.SendMessage(ctx, to, msg)
	if err != nil {
		return SendResult{}, fmt.Errorf("send message: %w", err)
	}
	return SendResult{ID: resp.ID, Timestamp: resp.Timestamp}, nil
}

// SendChatPresence shows or clears the typing indicator in a chat.
func (a *Adapter) SendChatPresence(ctx context.Context, to types.JID, composing bool) error {
	state := types.ChatPresencePaused
	if composing {
		state = types.ChatPresenceComposing
	}
	return a.client.SendChatPresence(ctx, to, state, types.ChatPresenceMediaText)
}

// SendPresence sets the account's global availability.
func (a *Adapter) SendPresence(ctx context.Context, available bool) error {
	p := types.PresenceUnavailable
	if available {
		p = types.PresenceAvailable
	}
	return a.client.SendPresence(ctx, p)
}

// IsOnWhatsApp checks which phone numbers have accounts.
func (a *Adapter) IsOnWhatsApp(ctx context.Context, phones []string) ([]Registration, error) {
	queries := make([]string, len(phones))
	for i, p := range phones {
		queries[i] = "+" + FormatPhone(p)
	}
	resp, err := a.client.IsOnWhatsApp(ctx, queries)
	if err != nil {
		return nil, err
	}
	out := make([]Registration, 0, len(resp))
	for _, r := range resp {
		out = append(out, Registration{Query: r.Query, JID: r.JID, Registered: r.IsIn})
	}
	return out, nil
}

// ProfilePictureURL returns the picture URL for jid, or "" if none is visible.
func (a *Adapter) ProfilePictureURL(ctx context.Context, jid types.JID) (string, error) {
	info, err := a.client.GetProfilePictureInfo(ctx, jid, &whatsmeow.GetProfilePictureParams{})
	switch {
	case errors.Is(err, whatsmeow.ErrProfilePictureNotSet), errors.Is(err, whatsmeow.ErrProfilePictureUnauthorized):
		return "", nil
	case err != nil:
		return "", err
	case info == nil:
		return "", nil
	}
	return info.URL, nil
}

// MarkRead sends read receipts for ids.
func (a *Adapter) MarkRead(ctx context.Context, chat, sender types.JID, ids []string) error {
	return a.client.MarkRead(ctx, ids, time.Now(), chat, sender)
}

// Upload encrypts and uploads media.
func (a *Adapter) Upload(ctx context.Context, data []byte, kind whatsmeow.MediaType) (whatsmeow.UploadResponse, error) {
	return a.client.Upload(ctx, data, kind)
}

// Download fetches and decrypts the attachment of msg.
func (a *Adapter) Download(ctx context.Context, msg *waE2E.Message) ([]byte, error) {
	return a.client.DownloadAny(ctx, unwrap(msg))
}

func (a *Adapter) GroupInfo(ctx context.Context, group types.JID) (*types.GroupInfo, error) {
	return a.client.GetGroupInfo(ctx, group)
}

func (a *Adapter) JoinedGroups(ctx context.Context) ([]*types.GroupInfo, error) {
	return a.client.GetJoinedGroups(ctx)
}

func (a *Adapter) CreateGroup(ctx context.Context, name string, participants []types.JID) (*types.GroupInfo, error) {
	return a.client.CreateGroup(ctx, whatsmeow.ReqCreateGroup{Name: name, Participants: participants})
}

func (a *Adapter) UpdateParticipants(ctx context.Context, group types.JID, participants []types.JID, action whatsmeow.ParticipantChange) ([]types.GroupParticipant, error) {
	return a.client.UpdateGroupParticipants(ctx, group, participants, action)
}

func (a *Adapter) SetGroupName(ctx context.Context, group types.JID, name string) error {
	return a.client.SetGroupName(ctx, group, name)
}

func (a *Adapter) SetGroupTopic(ctx context.Context, group types.JID, topic string) error {
	return a.client.SetGroupTopic(ctx, group, "", "", topic)
}

func (a *Adapter) SetGroupAnnounce(ctx context.Context, group types.JID, announce bool) error {
	return a.client.SetGroupAnnounce(ctx, group, announce)
}

func (a *Adapter) SetGroupLocked(ctx context.Context, group types.JID, locked bool) error {
	return a.client.SetGroupLocked(ctx, group, locked)
}

func (a *Adapter) SetGroupPhoto(ctx context.Context, group types.JID, jpeg []byte) (string, error) {
	return a.client.SetGroupPhoto(ctx, group, jpeg)
}

func (a *Adapter) LeaveGroup(ctx context.Context, group types.JID) error {
	return a.client.LeaveGroup(ctx, group)
}

func (a *Adapter) JoinGroupWithLink(ctx context.Context, code string) (types.JID, error) {
	return a.client.JoinGroupWithLink(ctx, code)
}

func (a *Adapter) GroupInviteLink(ctx context.Context, group types.JID, reset bool) (string, error) {
	return a.client.GetGroupInviteLink(ctx, group, reset)
}
