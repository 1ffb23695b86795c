package providerconf

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// Backend identifies which generation path is active.
type Backend string

const (
	// BackendRemote is the configured external clip-generation provider.
	BackendRemote Backend = "remote"
	// BackendLocal is the built-in placeholder generator.
	BackendLocal Backend = "local"
)

var ErrRemoteUnavailable = errors.New("remote provider is not configured")

// Decide is the pure reconciliation rule: the remote backend is active
// exactly when it is configured and the user has not explicitly opted
// out of it.
func Decide(configured, explicitOptIn bool) Backend {
	if configured && !explicitOptIn {
		return BackendRemote
	}
	return BackendLocal
}

// Reconciler tracks the active backend and the persisted explicit
// opt-in flag. It re-evaluates on every configuration change; repeated
// evaluation with unchanged inputs changes nothing, so it is safe to
// call from re-entrant subscription callbacks.
type Reconciler struct {
	store  *Store
	kv     KV
	logger *slog.Logger

	mu     sync.Mutex
	active Backend
	optIn  bool
}

// NewReconciler loads the persisted opt-in flag, computes the initial
// active backend, and subscribes to configuration changes.
func NewReconciler(ctx context.Context, store *Store, kv KV, logger *slog.Logger) (*Reconciler, error) {
	r := &Reconciler{store: store, kv: kv, logger: logger}

	persisted, err := kv.GetConfig(ctx, keyOptIn)
	if err != nil {
		return nil, err
	}
	r.optIn = persisted == "true"

	r.Reconcile(ctx)

	store.Subscribe(func() {
		r.Reconcile(context.Background())
	})

	return r, nil
}

// Reconcile recomputes the active backend from the current
// configuration availability and opt-in flag. A stale opt-in is
// cleared when the remote provider is no longer configured.
func (r *Reconciler) Reconcile(ctx context.Context) {
	configured := r.store.IsConfigured(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	if !configured && r.optIn {
		r.optIn = false
		r.persistOptInLocked(ctx)
	}

	next := Decide(configured, r.optIn)
	if next != r.active {
		if r.logger != nil {
			r.logger.Info("active generation backend changed", "backend", next, "configured", configured)
		}
		r.active = next
		r.persistSelectedLocked(ctx)
	}
}

// Select applies a manual backend choice. Choosing the remote backend
// while it is unconfigured is rejected without any state change.
// Choosing the local backend while the remote one is available records
// an explicit opt-in so later reconciliation honors the choice.
func (r *Reconciler) Select(ctx context.Context, b Backend) error {
	configured := r.store.IsConfigured(ctx)

	r.mu.Lock()
	defer r.mu.Unlock()

	switch b {
	case BackendRemote:
		if !configured {
			return ErrRemoteUnavailable
		}
		if r.optIn {
			r.optIn = false
			r.persistOptInLocked(ctx)
		}
	case BackendLocal:
		if configured && !r.optIn {
			r.optIn = true
			r.persistOptInLocked(ctx)
		}
	default:
		return errors.New("unknown backend: " + string(b))
	}

	if b != r.active {
		r.active = b
		r.persistSelectedLocked(ctx)
		if r.logger != nil {
			r.logger.Info("generation backend selected", "backend", b)
		}
	}
	return nil
}

// Active returns the currently active backend.
func (r *Reconciler) Active() Backend {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ExplicitOptIn reports whether the user deliberately chose the local
// backend while the remote one was available.
func (r *Reconciler) ExplicitOptIn() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.optIn
}

func (r *Reconciler) persistOptInLocked(ctx context.Context) {
	val := "false"
	if r.optIn {
		val = "true"
	}
	if err := r.kv.SetConfig(ctx, keyOptIn, val); err != nil && r.logger != nil {
		r.logger.Warn("failed to persist opt-in flag", "error", err)
	}
}

func (r *Reconciler) persistSelectedLocked(ctx context.Context) {
	if err := r.kv.SetConfig(ctx, keySelected, string(r.active)); err != nil && r.logger != nil {
		r.logger.Warn("failed to persist selected backend", "error", err)
	}
}
