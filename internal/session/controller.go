// Package session implements the Session Controller: one linked account, its
// connection state machine, its Conversation Store, and every operation that
// drives the protocol engine on its behalf.
package session

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/matheus3301/wppbridge/internal/bus"
	"github.com/matheus3301/wppbridge/internal/delivery"
	"github.com/matheus3301/wppbridge/internal/mention"
	"github.com/matheus3301/wppbridge/internal/status"
	"github.com/matheus3301/wppbridge/internal/store"
	intsync "github.com/matheus3301/wppbridge/internal/sync"
	"github.com/matheus3301/wppbridge/internal/wa"
	"github.com/matheus3301/wppbridge/internal/webhook"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Precondition errors. Their text is what callers see.
var (
	ErrNotConnected      = errors.New("Session not connected")
	ErrInvalidArgument   = errors.New("invalid argument")
	ErrAlreadyRegistered = errors.New("Session is already registered. Cannot request pairing code.")
	ErrClosed            = errors.New("Session closed")
)

// argError is an ErrInvalidArgument carrying its own message.
type argError struct{ msg string }

func (e *argError) Error() string        { return e.msg }
func (e *argError) Is(target error) bool { return target == ErrInvalidArgument }

func invalid(msg string) error { return &argError{msg: msg} }

// PairCodeTTL is how long a pairing code stays valid on the phone.
const PairCodeTTL = 3 * time.Minute

// EngineFactory opens the protocol engine over the credential store at path.
type EngineFactory func(ctx context.Context, credentialsPath, deviceName string) (wa.Engine, error)

// Ledger records outbound deliveries.
type Ledger interface {
	Record(ctx context.Context, sessionID, jobID, recipient, kind string) (string, error)
	MarkSent(ctx context.Context, id, serverMsgID string) error
	MarkFailed(ctx context.Context, id, errMsg string) error
	PurgeSession(ctx context.Context, sessionID string) (int64, error)
}

// Notifier delivers webhook envelopes.
type Notifier interface {
	Notify(sessionID string, metadata map[string]any, hooks []webhook.Hook, event string, data any)
}

// Options are the process-wide knobs every controller shares.
type Options struct {
	Footer           string
	DeviceName       string
	ReconnectDelay   time.Duration
	ProfileNameDelay time.Duration
	Retention        int
	SendRate         float64
	SendBurst        int
	HTTPClient       *http.Client
}

func (o Options) withDefaults() Options {
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
	if o.ProfileNameDelay <= 0 {
		o.ProfileNameDelay = 3 * time.Second
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	return o
}

// Deps are the collaborators a controller is wired to.
type Deps struct {
	Paths    Paths
	Bus      *bus.Bus
	Engines  EngineFactory
	Notifier Notifier
	Ledger   Ledger
	Logger   *zap.Logger
	Options  Options
}

// ConnectionUpdate is the payload of connection.update events.
type ConnectionUpdate struct {
	Status          string `json:"status"`
	PhoneNumber     string `json:"phoneNumber,omitempty"`
	Name            string `json:"name,omitempty"`
	Reason          string `json:"reason,omitempty"`
	ShouldReconnect *bool  `json:"shouldReconnect,omitempty"`
}

// Info is the status snapshot of a session.
type Info struct {
	SessionID   string         `json:"sessionId"`
	Status      status.State   `json:"status"`
	Since       time.Time      `json:"since"`
	IsConnected bool           `json:"isConnected"`
	PhoneNumber string         `json:"phoneNumber,omitempty"`
	Name        string         `json:"name,omitempty"`
	QR          string         `json:"qr,omitempty"`
	QRCode      string         `json:"qrCode,omitempty"`
	PairCode    string         `json:"pairCode,omitempty"`
	StoreStats  store.Stats    `json:"storeStats"`
	Metadata    map[string]any `json:"metadata"`
	Webhooks    []webhook.Hook `json:"webhooks"`
}

// Controller owns one session. It is safe for concurrent use.
type Controller struct {
	id       string
	paths    Paths
	bus      *bus.Bus
	engines  EngineFactory
	notifier Notifier
	ledger   Ledger
	logger   *zap.Logger
	opts     Options

	machine   *status.Machine
	store     *store.Store
	ingest    *intsync.Engine
	recon     *intsync.Reconciler
	mentions  *mention.Resolver
	scheduler *delivery.Scheduler
	limiter   *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	settings  Settings
	engine    wa.Engine
	unsub     func()
	qr        string
	pairCode  string
	pairAt    time.Time
	phone     string
	name      string
	reconnect *time.Timer
	closed    bool
}

// New builds a controller for id and restores its store snapshot. It does
// not connect.
func New(id string, settings Settings, deps Deps) *Controller {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("session", id))
	opts := deps.Options.withDefaults()

	limit := rate.Inf
	if opts.SendRate > 0 {
		limit = rate.Limit(opts.SendRate)
	}
	burst := max(opts.SendBurst, 1)

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		id:       id,
		paths:    deps.Paths,
		bus:      deps.Bus,
		engines:  deps.Engines,
		notifier: deps.Notifier,
		ledger:   deps.Ledger,
		logger:   logger,
		opts:     opts,
		machine:  status.NewMachine(deps.Bus, id),
		store:    store.New(opts.Retention, logger),
		limiter:  rate.NewLimiter(limit, burst),
		ctx:      ctx,
		cancel:   cancel,
		settings: settings,
	}
	c.ingest = intsync.NewEngine(c.store, c, logger)
	c.recon = intsync.NewReconciler(c.store, logger)
	c.mentions = mention.NewResolver(c, logger)
	c.scheduler = delivery.New(deliveryTarget{c}, logger)

	if err := c.store.Restore(c.paths.SnapshotPath(id)); err != nil {
		logger.Warn("store snapshot not restored", zap.Error(err))
	}
	return c
}

// ID returns the session id.
func (c *Controller) ID() string { return c.id }

// State returns the current connection state.
func (c *Controller) State() status.State { return c.machine.Current() }

// Store exposes the session's Conversation Store for read paths.
func (c *Controller) Store() *store.Store { return c.store }

// Closed reports whether the controller was torn down.
func (c *Controller) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Settings returns a copy of the durable session configuration.
func (c *Controller) Settings() Settings {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settings.clone()
}

// Info returns a status snapshot.
func (c *Controller) Info() Info {
	c.mu.Lock()
	info := Info{
		SessionID:   c.id,
		PhoneNumber: c.phone,
		Name:        c.name,
		QR:          c.qr,
		PairCode:    c.pairCode,
		Metadata:    c.settings.clone().Metadata,
		Webhooks:    c.settings.clone().Webhooks,
	}
	c.mu.Unlock()

	info.Status = c.machine.Current()
	info.IsConnected = info.Status == status.Connected
	info.Since = c.machine.Since()
	info.StoreStats = c.store.Stats()
	if info.QR != "" {
		info.QRCode = qrDataURL(info.QR, c.logger)
	}
	if info.Metadata == nil {
		info.Metadata = map[string]any{}
	}
	if info.Webhooks == nil {
		info.Webhooks = []webhook.Hook{}
	}
	return info
}

// QRPNG renders the pending QR code as a PNG.
func (c *Controller) QRPNG(size int) ([]byte, error) {
	c.mu.Lock()
	code := c.qr
	c.mu.Unlock()
	if code == "" {
		return nil, invalid("No QR code available")
	}
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(code, qrcode.Medium, size)
}

func qrDataURL(code string, logger *zap.Logger) string {
	png, err := qrcode.Encode(code, qrcode.Medium, 256)
	if err != nil {
		logger.Warn("encode QR image", zap.Error(err))
		return ""
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)
}

// UpdateSettings applies p and persists the result.
func (c *Controller) UpdateSettings(p Patch) (Settings, error) {
	return c.mutateSettings(func(s Settings) Settings { return s.Apply(p) })
}

// AddWebhook subscribes url to events and persists the result.
func (c *Controller) AddWebhook(url string, events []string) (Settings, error) {
	if url == "" {
		return Settings{}, invalid("Webhook URL is required")
	}
	return c.mutateSettings(func(s Settings) Settings { return s.AddWebhook(url, events) })
}

// RemoveWebhook unsubscribes url and persists the result.
func (c *Controller) RemoveWebhook(url string) (Settings, error) {
	if url == "" {
		return Settings{}, invalid("Webhook URL is required")
	}
	return c.mutateSettings(func(s Settings) Settings { return s.RemoveWebhook(url) })
}

func (c *Controller) mutateSettings(fn func(Settings) Settings) (Settings, error) {
	c.mu.Lock()
	c.settings = fn(c.settings)
	s := c.settings.clone()
	c.mu.Unlock()

	if err := SaveSettings(c.paths.ConfigPath(c.id), s); err != nil {
		return s, fmt.Errorf("save session config: %w", err)
	}
	return s, nil
}

// Emit publishes an outward event on the bus and to matching webhooks.
// Delivery failures never reach the caller.
func (c *Controller) Emit(kind string, payload any) {
	if c.bus != nil {
		c.bus.Publish(bus.Event{Kind: kind, Session: c.id, Timestamp: time.Now(), Payload: payload})
	}
	s := c.Settings()
	if c.notifier != nil && len(s.Webhooks) > 0 {
		c.notifier.Notify(c.id, s.Metadata, s.Webhooks, kind, payload)
	}
}

func (c *Controller) transition(to status.State) {
	if err := c.machine.Transition(to); err != nil {
		c.logger.Debug("state transition ignored", zap.Error(err))
	}
}

// ensureEngine opens the engine on first use and binds the event handler.
func (c *Controller) ensureEngine(ctx context.Context) (wa.Engine, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, ErrClosed
	}
	if c.engine != nil {
		return c.engine, nil
	}
	if err := c.paths.EnsureDir(c.id); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}
	device := c.settings.DeviceName
	if device == "" {
		device = c.opts.DeviceName
	}
	eng, err := c.engines(ctx, c.paths.CredentialsPath(c.id), device)
	if err != nil {
		return nil, fmt.Errorf("open engine: %w", err)
	}
	c.engine = eng
	c.unsub = eng.Subscribe(c.handle)
	return eng, nil
}

// requireEngine returns the live engine of a connected session.
func (c *Controller) requireEngine() (wa.Engine, error) {
	c.mu.Lock()
	eng := c.engine
	c.mu.Unlock()
	if eng == nil || c.machine.Current() != status.Connected {
		return nil, ErrNotConnected
	}
	return eng, nil
}

// Connect opens the link. Without credentials the session moves to
// qr_ready once the engine produces a code.
func (c *Controller) Connect(ctx context.Context) error {
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return err
	}
	if eng.IsConnected() {
		return nil
	}

	c.transition(status.Connecting)
	c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{Status: string(status.Connecting)})
	if err := eng.Connect(ctx); err != nil {
		c.transition(status.Error)
		c.Emit(bus.KindConnectionUpdate, ConnectionUpdate{Status: string(status.Error), Reason: err.Error()})
		return fmt.Errorf("connect: %w", err)
	}
	return nil
}

func (c *Controller) scheduleReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.reconnect != nil {
		return
	}
	c.logger.Info("reconnect scheduled", zap.Duration("delay", c.opts.ReconnectDelay))
	c.reconnect = time.AfterFunc(c.opts.ReconnectDelay, c.reconnectNow)
}

func (c *Controller) reconnectNow() {
	c.mu.Lock()
	c.reconnect = nil
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		c.logger.Warn("reconnect failed", zap.Error(err))
		c.scheduleReconnect()
	}
}

func (c *Controller) stopReconnectLocked() {
	if c.reconnect != nil {
		c.reconnect.Stop()
		c.reconnect = nil
	}
}

// PairResult describes an issued pairing code.
type PairResult struct {
	SessionID   string       `json:"sessionId"`
	PairingCode string       `json:"pairingCode"`
	PhoneNumber string       `json:"phoneNumber"`
	Status      status.State `json:"status"`
}

// PairPhone requests a pairing code as an alternative to scanning a QR code.
func (c *Controller) PairPhone(ctx context.Context, phone string) (PairResult, error) {
	digits := wa.Digits(phone)
	if len(digits) < 10 {
		return PairResult{}, invalid("Invalid phone number. Use international format with at least 10 digits.")
	}
	eng, err := c.ensureEngine(ctx)
	if err != nil {
		return PairResult{}, err
	}
	if eng.IsLoggedIn() {
		return PairResult{}, ErrAlreadyRegistered
	}

	// The engine only issues codes on an open socket that has offered a QR.
	if !eng.IsConnected() {
		if err := c.Connect(ctx); err != nil {
			return PairResult{}, err
		}
	}
	if err := c.waitFor(ctx, 20*time.Second, status.QRReady, status.PairReady); err != nil {
		return PairResult{}, fmt.Errorf("wait for pairing window: %w", err)
	}

	code, err := eng.PairPhone(ctx, digits)
	if err != nil {
		return PairResult{}, fmt.Errorf("request pairing code: %w", err)
	}

	c.mu.Lock()
	c.pairCode = code
	c.pairAt = time.Now()
	c.qr = ""
	c.mu.Unlock()
	c.transition(status.PairReady)

	res := PairResult{SessionID: c.id, PairingCode: code, PhoneNumber: digits, Status: status.PairReady}
	c.Emit(bus.KindPairCode, res)
	return res, nil
}

// waitFor blocks until the state is one of want or the timeout elapses.
func (c *Controller) waitFor(ctx context.Context, timeout time.Duration, want ...status.State) error {
	is := func(s status.State) bool {
		for _, w := range want {
			if s == w {
				return true
			}
		}
		return false
	}
	if c.bus == nil {
		if is(c.machine.Current()) {
			return nil
		}
		return fmt.Errorf("state is %s", c.machine.Current())
	}

	ch, unsub := c.bus.Subscribe(bus.Filter{Prefix: bus.KindStatusChanged, Session: c.id}, 8)
	defer unsub()
	if is(c.machine.Current()) {
		return nil
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case evt := <-ch:
			if chg, ok := evt.Payload.(status.StatusChange); ok && is(chg.To) {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timed out in state %s", c.machine.Current())
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Logout unlinks the device and destroys every piece of session state
// except its config file. The controller is unusable afterwards.
func (c *Controller) Logout(ctx context.Context) error {
	if c.Closed() {
		return ErrClosed
	}
	c.teardown(ctx, true)
	c.Emit(bus.KindLoggedOut, map[string]string{"reason": "logout requested"})
	return nil
}

// teardown stops the engine, deletes credentials, clears the store and media,
// and marks the controller closed.
func (c *Controller) teardown(ctx context.Context, logout bool) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopReconnectLocked()
	eng, unsub := c.engine, c.unsub
	c.engine, c.unsub = nil, nil
	c.qr, c.pairCode, c.phone, c.name = "", "", "", ""
	c.mu.Unlock()
	c.cancel()

	if unsub != nil {
		unsub()
	}
	if eng != nil {
		if logout && eng.IsLoggedIn() {
			if err := eng.Logout(ctx); err != nil {
				c.logger.Warn("engine logout failed", zap.Error(err))
			}
		}
		if err := eng.DeleteCredentials(ctx); err != nil {
			c.logger.Debug("delete credentials", zap.Error(err))
		}
		if err := eng.Close(); err != nil {
			c.logger.Warn("close engine", zap.Error(err))
		}
	}

	c.store.Clear()
	c.removeFiles(
		c.paths.SnapshotPath(c.id),
		c.paths.CredentialsPath(c.id),
		c.paths.CredentialsPath(c.id)+"-wal",
		c.paths.CredentialsPath(c.id)+"-shm",
	)
	if err := os.RemoveAll(c.paths.MediaDir(c.id)); err != nil {
		c.logger.Warn("remove media dir", zap.Error(err))
	}
	if c.ledger != nil {
		if _, err := c.ledger.PurgeSession(ctx, c.id); err != nil {
			c.logger.Warn("purge delivery ledger", zap.Error(err))
		}
	}
	c.transition(status.Disconnected)
	c.logger.Info("session torn down", zap.Bool("logout", logout))
}

func (c *Controller) removeFiles(paths ...string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			c.logger.Warn("remove file", zap.String("path", p), zap.Error(err))
		}
	}
}

// Close disconnects without logging out and writes a final snapshot. It is
// used on daemon shutdown.
func (c *Controller) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.stopReconnectLocked()
	eng, unsub := c.engine, c.unsub
	c.engine, c.unsub = nil, nil
	c.mu.Unlock()
	c.cancel()

	if unsub != nil {
		unsub()
	}
	c.saveSnapshot()
	c.transition(status.Disconnected)
	if eng != nil {
		return eng.Close()
	}
	return nil
}

func (c *Controller) saveSnapshot() {
	if err := c.store.Save(c.paths.SnapshotPath(c.id)); err != nil {
		c.logger.Warn("store snapshot failed", zap.Error(err))
	}
}

// Tick runs periodic maintenance: retention sweep, snapshot, and pairing-code
// expiry. It is a no-op on a torn-down controller.
func (c *Controller) Tick() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.pairCode != "" && (c.machine.Current() == status.Connected || time.Since(c.pairAt) > PairCodeTTL) {
		c.pairCode = ""
	}
	c.mu.Unlock()

	if n := c.store.Prune(); n > 0 {
		c.logger.Debug("retention sweep", zap.Int("evicted", n))
	}
	c.saveSnapshot()
}
