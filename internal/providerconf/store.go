// Package providerconf resolves and validates generation-provider
// configuration and decides which generation backend is active.
//
// Configuration comes from two sources: environment variables set at
// process start, and runtime values saved through the API. The
// environment source wins when both are present and valid.
package providerconf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
)

const (
	keyEndpoint   = "provider_endpoint"
	keyCredential = "provider_credential"
	keyOptIn      = "provider_opt_in"
	keySelected   = "provider_selected"
)

var (
	ErrMissingEndpoint   = errors.New("provider endpoint must not be empty")
	ErrMissingCredential = errors.New("provider credential must not be empty")
)

// MalformedEndpointError reports an endpoint that failed normalization.
type MalformedEndpointError struct {
	Detail string
}

func (e *MalformedEndpointError) Error() string {
	return "malformed provider endpoint: " + e.Detail
}

// Config is a validated provider configuration. Endpoint is normalized:
// http or https scheme, no trailing slash.
type Config struct {
	Endpoint   string
	Credential string
}

// Source identifies where the active configuration came from.
type Source string

const (
	SourceEnv     Source = "env"
	SourceRuntime Source = "runtime"
	SourceNone    Source = "none"
)

// NormalizeEndpoint validates and canonicalizes an endpoint URL.
func NormalizeEndpoint(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", ErrMissingEndpoint
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", &MalformedEndpointError{Detail: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", &MalformedEndpointError{Detail: fmt.Sprintf("scheme %q is not http or https", u.Scheme)}
	}
	if u.Host == "" {
		return "", &MalformedEndpointError{Detail: "missing host"}
	}

	return strings.TrimRight(raw, "/"), nil
}

func validate(endpoint, credential string) (*Config, error) {
	normalized, err := NormalizeEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(credential) == "" {
		return nil, ErrMissingCredential
	}
	return &Config{Endpoint: normalized, Credential: credential}, nil
}

// KV is the durable key-value storage the store persists runtime
// configuration in.
type KV interface {
	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

// Store resolves provider configuration and notifies subscribers when
// the runtime configuration is saved or cleared.
type Store struct {
	env    *Config // nil when the environment supplies no valid config
	kv     KV
	logger *slog.Logger

	mu      sync.Mutex
	subs    map[int]func()
	nextSub int
}

// NewStore builds a Store. An invalid environment configuration is
// treated as absent and logged, not fatal: runtime configuration can
// still make the provider available.
func NewStore(envEndpoint, envCredential string, kv KV, logger *slog.Logger) *Store {
	s := &Store{kv: kv, logger: logger, subs: make(map[int]func())}

	if envEndpoint != "" || envCredential != "" {
		cfg, err := validate(envEndpoint, envCredential)
		if err != nil {
			if logger != nil {
				logger.Warn("ignoring invalid environment provider config", "error", err)
			}
		} else {
			s.env = cfg
		}
	}

	return s
}

// Load returns the active configuration, environment first, then
// runtime. A nil Config with nil error means no valid source exists.
func (s *Store) Load(ctx context.Context) (*Config, Source, error) {
	if s.env != nil {
		return s.env, SourceEnv, nil
	}

	endpoint, err := s.kv.GetConfig(ctx, keyEndpoint)
	if err != nil {
		return nil, SourceNone, err
	}
	credential, err := s.kv.GetConfig(ctx, keyCredential)
	if err != nil {
		return nil, SourceNone, err
	}
	if endpoint == "" && credential == "" {
		return nil, SourceNone, nil
	}

	cfg, err := validate(endpoint, credential)
	if err != nil {
		// A half-written or corrupted runtime config is treated as absent.
		if s.logger != nil {
			s.logger.Warn("stored provider config is invalid", "error", err)
		}
		return nil, SourceNone, nil
	}
	return cfg, SourceRuntime, nil
}

// IsConfigured reports whether Load would yield a valid configuration.
func (s *Store) IsConfigured(ctx context.Context) bool {
	cfg, _, err := s.Load(ctx)
	return err == nil && cfg != nil
}

// Save validates and persists a runtime configuration, then notifies
// subscribers. Nothing is written when validation fails.
func (s *Store) Save(ctx context.Context, endpoint, credential string) error {
	cfg, err := validate(endpoint, credential)
	if err != nil {
		return err
	}

	if err := s.kv.SetConfig(ctx, keyEndpoint, cfg.Endpoint); err != nil {
		return fmt.Errorf("persist provider endpoint: %w", err)
	}
	if err := s.kv.SetConfig(ctx, keyCredential, cfg.Credential); err != nil {
		return fmt.Errorf("persist provider credential: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("provider config saved", "endpoint", cfg.Endpoint)
	}
	s.notify()
	return nil
}

// Clear removes the runtime configuration and notifies subscribers.
// The environment configuration, if any, is unaffected.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.kv.DeleteConfig(ctx, keyEndpoint); err != nil {
		return err
	}
	if err := s.kv.DeleteConfig(ctx, keyCredential); err != nil {
		return err
	}

	if s.logger != nil {
		s.logger.Info("provider config cleared")
	}
	s.notify()
	return nil
}

// Subscribe registers a callback invoked synchronously after every
// successful Save or Clear. The returned function unsubscribes.
// Callbacks must be cheap; they run on the caller's goroutine.
func (s *Store) Subscribe(fn func()) func() {
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

func (s *Store) notify() {
	s.mu.Lock()
	fns := make([]func(), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()

	for _, fn := range fns {
		fn()
	}
}
