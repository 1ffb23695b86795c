package provider

import (
	"context"
	"errors"
	"log/slog"

	"github.com/storyforge/storyforge-agent/internal/providerconf"
)

var ErrNotConfigured = errors.New("remote provider is active but not configured")

// Selector resolves the client for the currently active backend. The
// remote client is rebuilt from the live configuration on each call so
// a configuration change takes effect immediately.
type Selector struct {
	store      *providerconf.Store
	reconciler *providerconf.Reconciler
	local      Client
	logger     *slog.Logger
}

func NewSelector(store *providerconf.Store, reconciler *providerconf.Reconciler, local Client, logger *slog.Logger) *Selector {
	return &Selector{store: store, reconciler: reconciler, local: local, logger: logger}
}

// ActiveClient returns the client for the active backend, or
// ErrNotConfigured when the remote backend is active but its
// configuration disappeared between reconciliation and use.
func (s *Selector) ActiveClient(ctx context.Context) (Client, error) {
	switch s.reconciler.Active() {
	case providerconf.BackendRemote:
		cfg, _, err := s.store.Load(ctx)
		if err != nil {
			return nil, err
		}
		if cfg == nil {
			return nil, ErrNotConfigured
		}
		return NewHTTPClient(cfg.Endpoint, cfg.Credential, s.logger), nil
	default:
		return s.local, nil
	}
}
