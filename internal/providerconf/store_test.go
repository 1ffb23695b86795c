package providerconf

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// fakeKV is an in-memory KV that counts writes so tests can assert
// idempotence.
type fakeKV struct {
	mu     sync.Mutex
	values map[string]string
	writes int
}

func newFakeKV() *fakeKV {
	return &fakeKV{values: make(map[string]string)}
}

func (f *fakeKV) GetConfig(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.values[key], nil
}

func (f *fakeKV) SetConfig(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.writes++
	return nil
}

func (f *fakeKV) DeleteConfig(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	return nil
}

func (f *fakeKV) writeCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.writes
}

func TestNormalizeEndpoint(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    string
		wantErr bool
	}{
		{"https", "https://clips.example.com", "https://clips.example.com", false},
		{"http", "http://localhost:9000", "http://localhost:9000", false},
		{"trailing slash stripped", "https://clips.example.com/api/", "https://clips.example.com/api", false},
		{"multiple trailing slashes", "https://x.example.com//", "https://x.example.com", false},
		{"surrounding whitespace", "  https://x.example.com ", "https://x.example.com", false},
		{"empty", "", "", true},
		{"whitespace only", "   ", "", true},
		{"ftp scheme", "ftp://x", "", true},
		{"no scheme", "clips.example.com", "", true},
		{"scheme only", "https://", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeEndpoint(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NormalizeEndpoint(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("NormalizeEndpoint(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestSave_RejectsInvalidWithoutNotifying(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("", "", kv, nil)

	notified := 0
	store.Subscribe(func() { notified++ })

	ctx := context.Background()

	err := store.Save(ctx, "ftp://x", "cred")
	var malformed *MalformedEndpointError
	if !errors.As(err, &malformed) {
		t.Fatalf("Save() error = %v, want MalformedEndpointError", err)
	}

	if err := store.Save(ctx, "https://x.example.com", ""); !errors.Is(err, ErrMissingCredential) {
		t.Errorf("Save() error = %v, want ErrMissingCredential", err)
	}
	if err := store.Save(ctx, "", "cred"); !errors.Is(err, ErrMissingEndpoint) {
		t.Errorf("Save() error = %v, want ErrMissingEndpoint", err)
	}

	if notified != 0 {
		t.Errorf("invalid saves fired %d notifications, want 0", notified)
	}
	if store.IsConfigured(ctx) {
		t.Error("IsConfigured() = true after only invalid saves")
	}
	if kv.writeCount() != 0 {
		t.Errorf("invalid saves wrote %d keys, want 0", kv.writeCount())
	}
}

func TestSave_PersistsAndNotifies(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("", "", kv, nil)

	notified := 0
	store.Subscribe(func() { notified++ })

	ctx := context.Background()
	if err := store.Save(ctx, "https://clips.example.com/api/", "secret"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	if notified != 1 {
		t.Errorf("notifications = %d, want 1", notified)
	}

	cfg, source, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() returned nil config")
	}
	if cfg.Endpoint != "https://clips.example.com/api" {
		t.Errorf("Endpoint = %q, want normalized form", cfg.Endpoint)
	}
	if source != SourceRuntime {
		t.Errorf("source = %q, want runtime", source)
	}
	if !store.IsConfigured(ctx) {
		t.Error("IsConfigured() = false after valid save")
	}
}

func TestClear_RemovesConfigAndNotifies(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("", "", kv, nil)
	ctx := context.Background()

	if err := store.Save(ctx, "https://x.example.com", "secret"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	notified := 0
	store.Subscribe(func() { notified++ })

	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if notified != 1 {
		t.Errorf("notifications = %d, want 1", notified)
	}
	if store.IsConfigured(ctx) {
		t.Error("IsConfigured() = true after Clear()")
	}
}

func TestLoad_EnvTakesPrecedence(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("https://env.example.com/", "env-cred", kv, nil)
	ctx := context.Background()

	if err := store.Save(ctx, "https://runtime.example.com", "runtime-cred"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	cfg, source, err := store.Load(ctx)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Endpoint != "https://env.example.com" {
		t.Errorf("Endpoint = %q, want env endpoint", cfg.Endpoint)
	}
	if source != SourceEnv {
		t.Errorf("source = %q, want env", source)
	}
}

func TestNewStore_InvalidEnvTreatedAsAbsent(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("ftp://bad", "cred", kv, nil)

	if store.IsConfigured(context.Background()) {
		t.Error("IsConfigured() = true with invalid env config and no runtime config")
	}
}

func TestSubscribe_Unsubscribe(t *testing.T) {
	kv := newFakeKV()
	store := NewStore("", "", kv, nil)
	ctx := context.Background()

	calls := 0
	unsubscribe := store.Subscribe(func() { calls++ })

	if err := store.Save(ctx, "https://x.example.com", "c"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	unsubscribe()
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
