package sync

import (
	"github.com/matheus3301/wppbridge/internal/store"
	"go.uber.org/zap"
)

// Reconciler refreshes cached group metadata from the engine's view.
type Reconciler struct {
	store  *store.Store
	logger *zap.Logger
}

// NewReconciler creates a new reconciler.
func NewReconciler(st *store.Store, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, logger: logger}
}

// ReconcileGroups caches every joined group and makes sure each has a named
// chat record. It returns how many groups were previously unknown.
func (r *Reconciler) ReconcileGroups(groups []store.Group) int {
	added := 0
	for _, g := range groups {
		if _, ok := r.store.Group(g.ID); !ok {
			added++
		}
		r.store.UpsertGroup(g)
		r.store.UpsertChat(store.Chat{ID: g.ID, Name: g.Subject, IsGroup: true, UnreadCount: -1})
	}
	r.logger.Info("groups reconciled", zap.Int("groups", len(groups)), zap.Int("new", added))
	return added
}
