package session

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/storyforge/storyforge-agent/internal/db"
	"github.com/storyforge/storyforge-agent/internal/status"
)

func setupTestDB(t *testing.T) (*db.DB, Repository) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	database, err := db.New(dbPath, nil)
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	repo := NewRepository(database.Conn())
	return database, repo
}

func newTestSession(prompts ...string) *Session {
	s := &Session{
		ID:            NewID(),
		Owner:         "device-1",
		Prompt:        "a sunset over the ocean",
		ClipDurationS: 20,
		CreatedAt:     time.Now(),
	}
	for _, p := range prompts {
		s.Segments = append(s.Segments, Segment{Prompt: p, Status: status.NewQueued()})
	}
	return s
}

func TestCreateAndGetSession(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	s := newTestSession("clip one", "clip two", "clip three")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Prompt != s.Prompt {
		t.Errorf("Prompt = %q, want %q", got.Prompt, s.Prompt)
	}
	if got.Owner != "device-1" {
		t.Errorf("Owner = %q, want device-1", got.Owner)
	}
	if len(got.Segments) != 3 {
		t.Fatalf("len(Segments) = %d, want 3", len(got.Segments))
	}
	for i, seg := range got.Segments {
		if seg.Status.Kind != status.Queued {
			t.Errorf("segment %d status = %s, want queued", i, seg.Status.Kind)
		}
		if seg.Clip != nil {
			t.Errorf("segment %d has a clip before generation", i)
		}
	}
}

func TestCreateSession_Validation(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	tests := []struct {
		name    string
		mutate  func(*Session)
		wantErr error
	}{
		{"empty prompt", func(s *Session) { s.Prompt = "  " }, ErrEmptyPrompt},
		{"no segments", func(s *Session) { s.Segments = nil }, ErrNoSegments},
		{"duration too low", func(s *Session) { s.ClipDurationS = 0 }, ErrDurationOutOfRange},
		{"duration too high", func(s *Session) { s.ClipDurationS = 121 }, ErrDurationOutOfRange},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSession("one")
			tt.mutate(s)
			err := repo.CreateSession(ctx, s)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("CreateSession() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetSession_NotFound(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	_, err := repo.GetSession(context.Background(), "missing")
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("GetSession() error = %v, want ErrSessionNotFound", err)
	}
}

func TestUpdateSegmentStatus(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	s := newTestSession("one", "two")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := repo.UpdateSegmentStatus(ctx, s.ID, 1, status.NewFailed("provider said no")); err != nil {
		t.Fatalf("UpdateSegmentStatus() error = %v", err)
	}

	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Segments[1].Status.Kind != status.Failed {
		t.Errorf("segment 1 status = %s, want failed", got.Segments[1].Status.Kind)
	}
	if got.Segments[1].Status.Reason != "provider said no" {
		t.Errorf("segment 1 reason = %q", got.Segments[1].Status.Reason)
	}
	if got.Segments[0].Status.Kind != status.Queued {
		t.Errorf("segment 0 status = %s, want queued (untouched)", got.Segments[0].Status.Kind)
	}
}

func TestUpdateSegmentStatus_IndexOutOfRange(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	s := newTestSession("one", "two")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	for _, idx := range []int{-1, 2, 99} {
		err := repo.UpdateSegmentStatus(ctx, s.ID, idx, status.NewCompleted())
		if !errors.Is(err, ErrIndexOutOfRange) {
			t.Errorf("UpdateSegmentStatus(%d) error = %v, want ErrIndexOutOfRange", idx, err)
		}
	}
}

func TestUpdateSegmentStatus_UnknownSession(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()

	err := repo.UpdateSegmentStatus(context.Background(), "missing", 0, status.NewCompleted())
	if !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("UpdateSegmentStatus() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSetSegmentClip(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	s := newTestSession("one")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	clip := &Clip{URL: "https://cdn.example.com/clip0.mp4", DurationS: 20, Prompt: "one"}
	if err := repo.SetSegmentClip(ctx, s.ID, 0, clip); err != nil {
		t.Fatalf("SetSegmentClip() error = %v", err)
	}

	got, err := repo.GetSession(ctx, s.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Segments[0].Clip == nil {
		t.Fatal("segment 0 clip is nil")
	}
	if got.Segments[0].Clip.URL != clip.URL {
		t.Errorf("clip URL = %q, want %q", got.Segments[0].Clip.URL, clip.URL)
	}
}

func TestSetSegmentClip_RejectsEmptyURL(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	s := newTestSession("one")
	if err := repo.CreateSession(ctx, s); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	if err := repo.SetSegmentClip(ctx, s.ID, 0, &Clip{URL: ""}); err == nil {
		t.Error("SetSegmentClip() should reject an empty clip URL")
	}
}

func TestListUserSessions_FiltersByOwner(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	mine := newTestSession("a", "b", "c")
	if err := repo.CreateSession(ctx, mine); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	other := newTestSession("x")
	other.Owner = "device-2"
	if err := repo.CreateSession(ctx, other); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	sessions, err := repo.ListUserSessions(ctx, "device-1")
	if err != nil {
		t.Fatalf("ListUserSessions() error = %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("len(sessions) = %d, want 1", len(sessions))
	}
	if sessions[0].ID != mine.ID {
		t.Errorf("session id = %q, want %q", sessions[0].ID, mine.ID)
	}
	if sessions[0].SegmentCount != 3 {
		t.Errorf("SegmentCount = %d, want 3", sessions[0].SegmentCount)
	}
}

func TestConfigRoundTrip(t *testing.T) {
	database, repo := setupTestDB(t)
	defer database.Close()
	ctx := context.Background()

	if err := repo.SetConfig(ctx, "k", "v1"); err != nil {
		t.Fatalf("SetConfig() error = %v", err)
	}
	if err := repo.SetConfig(ctx, "k", "v2"); err != nil {
		t.Fatalf("SetConfig() upsert error = %v", err)
	}

	v, err := repo.GetConfig(ctx, "k")
	if err != nil {
		t.Fatalf("GetConfig() error = %v", err)
	}
	if v != "v2" {
		t.Errorf("GetConfig() = %q, want v2", v)
	}

	if err := repo.DeleteConfig(ctx, "k"); err != nil {
		t.Fatalf("DeleteConfig() error = %v", err)
	}
	v, err = repo.GetConfig(ctx, "k")
	if err != nil {
		t.Fatalf("GetConfig() after delete error = %v", err)
	}
	if v != "" {
		t.Errorf("GetConfig() after delete = %q, want empty", v)
	}
}
