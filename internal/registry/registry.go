// Package registry maps session ids to their controllers. It is the only
// place that creates, restores, or deletes a Session Controller.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/matheus3301/wppbridge/internal/session"
	"go.uber.org/zap"
)

var (
	ErrNotFound         = errors.New("Session not found")
	ErrInvalidID        = session.ErrInvalidID
	ErrAlreadyConnected = errors.New("Session already connected")
)

// Result messages returned by Create and Delete.
const (
	MsgCreated      = "Session created"
	MsgReconnecting = "Reconnecting existing session"
	MsgDeleted      = "Session deleted successfully"
)

// Created is the outcome of Create.
type Created struct {
	Message string       `json:"message"`
	Info    session.Info `json:"info"`
}

// Registry owns every live controller. It is safe for concurrent use.
type Registry struct {
	deps   session.Deps
	logger *zap.Logger

	mu       sync.Mutex
	sessions map[string]*session.Controller
}

// New creates an empty registry. Controllers it builds share deps.
func New(deps session.Deps) *Registry {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		deps:     deps,
		logger:   logger,
		sessions: make(map[string]*session.Controller),
	}
}

// Create registers and connects session id, or updates and reconnects it when
// it already exists. A connected session gets its config updated and
// ErrAlreadyConnected alongside its info.
func (r *Registry) Create(ctx context.Context, id string, patch session.Patch) (Created, error) {
	if err := session.ValidateID(id); err != nil {
		return Created{}, ErrInvalidID
	}

	r.mu.Lock()
	ctrl, ok := r.sessions[id]
	if ok && ctrl.Closed() {
		delete(r.sessions, id)
		ok = false
	}
	if ok {
		r.mu.Unlock()
		if !patch.Empty() {
			if _, err := ctrl.UpdateSettings(patch); err != nil {
				r.logger.Warn("session config not saved", zap.String("session", id), zap.Error(err))
			}
		}
		if ctrl.Info().IsConnected {
			return Created{Message: ErrAlreadyConnected.Error(), Info: ctrl.Info()}, ErrAlreadyConnected
		}
		if err := ctrl.Connect(ctx); err != nil {
			return Created{Info: ctrl.Info()}, err
		}
		return Created{Message: MsgReconnecting, Info: ctrl.Info()}, nil
	}

	settings, err := session.LoadSettings(r.deps.Paths.ConfigPath(id))
	if err != nil {
		r.logger.Warn("session config unreadable, starting fresh", zap.String("session", id), zap.Error(err))
		settings = session.Settings{}
	}
	settings = settings.Apply(patch)
	if err := session.SaveSettings(r.deps.Paths.ConfigPath(id), settings); err != nil {
		r.mu.Unlock()
		return Created{}, fmt.Errorf("save session config: %w", err)
	}
	ctrl = session.New(id, settings, r.deps)
	r.sessions[id] = ctrl
	r.mu.Unlock()

	r.logger.Info("session created", zap.String("session", id))
	if err := ctrl.Connect(ctx); err != nil {
		return Created{Info: ctrl.Info()}, err
	}
	return Created{Message: MsgCreated, Info: ctrl.Info()}, nil
}

// Get returns a live controller. Torn-down controllers are reported as not
// found.
func (r *Registry) Get(id string) (*session.Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ctrl, ok := r.sessions[id]
	if !ok || ctrl.Closed() {
		return nil, ErrNotFound
	}
	return ctrl, nil
}

// List returns the info of every live session ordered by id.
func (r *Registry) List() []session.Info {
	out := []session.Info{}
	for _, ctrl := range r.live() {
		out = append(out, ctrl.Info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SessionID < out[j].SessionID })
	return out
}

func (r *Registry) live() []*session.Controller {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*session.Controller, 0, len(r.sessions))
	for _, ctrl := range r.sessions {
		if !ctrl.Closed() {
			out = append(out, ctrl)
		}
	}
	return out
}

// Delete logs session id out, forgets it, and removes its directory including
// the config file.
func (r *Registry) Delete(ctx context.Context, id string) (string, error) {
	r.mu.Lock()
	ctrl, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if !ok {
		return "", ErrNotFound
	}

	if err := ctrl.Logout(ctx); err != nil && !errors.Is(err, session.ErrClosed) {
		r.logger.Warn("logout during delete", zap.String("session", id), zap.Error(err))
	}
	if err := os.RemoveAll(r.deps.Paths.Dir(id)); err != nil {
		r.logger.Warn("remove session dir", zap.String("session", id), zap.Error(err))
	}
	r.logger.Info("session deleted", zap.String("session", id))
	return MsgDeleted, nil
}

// Restore brings back every session that has a directory on disk and
// reconnects it. Connect failures are logged; the session stays registered
// and reconnects on its own schedule. Cancelling ctx stops before the next
// session.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	ids, err := r.deps.Paths.Existing()
	if err != nil {
		return 0, fmt.Errorf("list sessions: %w", err)
	}
	n := 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return n, err
		}
		settings, err := session.LoadSettings(r.deps.Paths.ConfigPath(id))
		if err != nil {
			r.logger.Warn("session config unreadable", zap.String("session", id), zap.Error(err))
		}

		r.mu.Lock()
		if _, exists := r.sessions[id]; exists {
			r.mu.Unlock()
			continue
		}
		ctrl := session.New(id, settings, r.deps)
		r.sessions[id] = ctrl
		r.mu.Unlock()
		n++

		r.logger.Info("restoring session", zap.String("session", id))
		if err := ctrl.Connect(ctx); err != nil {
			r.logger.Warn("restored session failed to connect", zap.String("session", id), zap.Error(err))
		}
	}
	return n, nil
}

// TickAll runs periodic maintenance on every live session.
func (r *Registry) TickAll() {
	for _, ctrl := range r.live() {
		ctrl.Tick()
	}
}

// CloseAll disconnects every session without logging out and writes final
// snapshots.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	all := make([]*session.Controller, 0, len(r.sessions))
	for _, ctrl := range r.sessions {
		all = append(all, ctrl)
	}
	r.sessions = make(map[string]*session.Controller)
	r.mu.Unlock()

	for _, ctrl := range all {
		if err := ctrl.Close(); err != nil {
			r.logger.Warn("close session", zap.String("session", ctrl.ID()), zap.Error(err))
		}
	}
}
