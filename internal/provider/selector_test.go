package provider

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/storyforge/storyforge-agent/internal/providerconf"
)

type memKV struct {
	mu sync.Mutex
	m  map[string]string
}

func newMemKV() *memKV { return &memKV{m: make(map[string]string)} }

func (k *memKV) GetConfig(_ context.Context, key string) (string, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.m[key], nil
}

func (k *memKV) SetConfig(_ context.Context, key, value string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.m[key] = value
	return nil
}

func (k *memKV) DeleteConfig(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	delete(k.m, key)
	return nil
}

func newSelectorFixture(t *testing.T) (*Selector, *providerconf.Store, *providerconf.Reconciler) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	kv := newMemKV()
	store := providerconf.NewStore("", "", kv, logger)
	reconciler, err := providerconf.NewReconciler(context.Background(), store, kv, logger)
	if err != nil {
		t.Fatalf("NewReconciler() error = %v", err)
	}
	local := NewStubClient("http://127.0.0.1:8790", t.TempDir(), logger)
	return NewSelector(store, reconciler, local, logger), store, reconciler
}

func TestSelector_LocalWhenUnconfigured(t *testing.T) {
	sel, _, _ := newSelectorFixture(t)

	client, err := sel.ActiveClient(context.Background())
	if err != nil {
		t.Fatalf("ActiveClient() error = %v", err)
	}
	if client.Name() != "local" {
		t.Errorf("client = %s, want local", client.Name())
	}
}

func TestSelector_RemoteWhenConfigured(t *testing.T) {
	sel, store, _ := newSelectorFixture(t)
	ctx := context.Background()

	if err := store.Save(ctx, "https://api.example.com", "sk-123"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	client, err := sel.ActiveClient(ctx)
	if err != nil {
		t.Fatalf("ActiveClient() error = %v", err)
	}
	if client.Name() != "remote" {
		t.Errorf("client = %s, want remote", client.Name())
	}
}

func TestSelector_RebuildsRemoteFromLiveConfig(t *testing.T) {
	sel, store, _ := newSelectorFixture(t)
	ctx := context.Background()

	if err := store.Save(ctx, "https://one.example.com", "sk-1"); err != nil {
		t.Fatal(err)
	}
	first, err := sel.ActiveClient(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := store.Save(ctx, "https://two.example.com", "sk-2"); err != nil {
		t.Fatal(err)
	}
	second, err := sel.ActiveClient(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if first.(*HTTPClient).endpoint == second.(*HTTPClient).endpoint {
		t.Error("remote client was not rebuilt after reconfiguration")
	}
}

func TestSelector_HonorsLocalOptIn(t *testing.T) {
	sel, store, reconciler := newSelectorFixture(t)
	ctx := context.Background()

	if err := store.Save(ctx, "https://api.example.com", "sk-123"); err != nil {
		t.Fatal(err)
	}
	if err := reconciler.Select(ctx, providerconf.BackendLocal); err != nil {
		t.Fatalf("Select(local) error = %v", err)
	}

	client, err := sel.ActiveClient(ctx)
	if err != nil {
		t.Fatalf("ActiveClient() error = %v", err)
	}
	if client.Name() != "local" {
		t.Errorf("client = %s, want local after explicit opt-in", client.Name())
	}
}
