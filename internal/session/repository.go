package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/storyforge/storyforge-agent/internal/status"
)

var (
	ErrEmptyPrompt        = errors.New("session prompt must not be empty")
	ErrNoSegments         = errors.New("session must have at least one segment prompt")
	ErrDurationOutOfRange = fmt.Errorf("clip duration must be between %d and %d seconds", MinClipDurationS, MaxClipDurationS)
	ErrSessionNotFound    = errors.New("session not found")
	ErrIndexOutOfRange    = errors.New("segment index out of range")
)

type Repository interface {
	CreateSession(ctx context.Context, s *Session) error
	GetSession(ctx context.Context, id string) (*Session, error)
	UpdateSegmentStatus(ctx context.Context, sessionID string, index int, st status.Status) error
	SetSegmentClip(ctx context.Context, sessionID string, index int, clip *Clip) error
	ListUserSessions(ctx context.Context, owner string) ([]*Summary, error)

	GetConfig(ctx context.Context, key string) (string, error)
	SetConfig(ctx context.Context, key, value string) error
	DeleteConfig(ctx context.Context, key string) error
}

type SQLiteRepository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) CreateSession(ctx context.Context, s *Session) error {
	if strings.TrimSpace(s.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if len(s.Segments) == 0 {
		return ErrNoSegments
	}
	if s.ClipDurationS < MinClipDurationS || s.ClipDurationS > MaxClipDurationS {
		return ErrDurationOutOfRange
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO sessions (id, owner, prompt, clip_duration_s, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, s.ID, nullString(s.Owner), s.Prompt, s.ClipDurationS, s.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return err
	}

	for i, seg := range s.Segments {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO segments (session_id, idx, prompt, status, failure_reason)
			VALUES (?, ?, ?, ?, ?)
		`, s.ID, i, seg.Prompt, string(seg.Status.Kind), nullString(seg.Status.Reason))
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *SQLiteRepository) GetSession(ctx context.Context, id string) (*Session, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, owner, prompt, clip_duration_s, created_at
		FROM sessions WHERE id = ?
	`, id)

	var s Session
	var owner sql.NullString
	var createdAt string
	err := row.Scan(&s.ID, &owner, &s.Prompt, &s.ClipDurationS, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	s.Owner = owner.String
	s.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)

	rows, err := r.db.QueryContext(ctx, `
		SELECT prompt, status, failure_reason, clip_url, clip_thumbnail_url, clip_duration_s
		FROM segments WHERE session_id = ? ORDER BY idx
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var seg Segment
		var kind string
		var reason, clipURL, clipThumb sql.NullString
		var clipDur sql.NullInt64

		if err := rows.Scan(&seg.Prompt, &kind, &reason, &clipURL, &clipThumb, &clipDur); err != nil {
			return nil, err
		}
		seg.Status = status.Status{Kind: status.Kind(kind), Reason: reason.String}
		if clipURL.Valid && clipURL.String != "" {
			seg.Clip = &Clip{
				URL:          clipURL.String,
				ThumbnailURL: clipThumb.String,
				DurationS:    int(clipDur.Int64),
				Prompt:       seg.Prompt,
			}
		}
		s.Segments = append(s.Segments, seg)
	}
	return &s, rows.Err()
}

// UpdateSegmentStatus rejects an out-of-range index with ErrIndexOutOfRange
// rather than silently ignoring the update.
func (r *SQLiteRepository) UpdateSegmentStatus(ctx context.Context, sessionID string, index int, st status.Status) error {
	count, err := r.segmentCount(ctx, sessionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= count {
		return fmt.Errorf("%w: index %d, session has %d segments", ErrIndexOutOfRange, index, count)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE segments SET status = ?, failure_reason = ? WHERE session_id = ? AND idx = ?
	`, string(st.Kind), nullString(st.Reason), sessionID, index)
	return err
}

// SetSegmentClip records the generated artifact for a segment. The clip
// URL must be non-empty; persisting a placeholder clip is a defect.
func (r *SQLiteRepository) SetSegmentClip(ctx context.Context, sessionID string, index int, clip *Clip) error {
	if clip == nil || clip.URL == "" {
		return errors.New("clip URL must not be empty")
	}

	count, err := r.segmentCount(ctx, sessionID)
	if err != nil {
		return err
	}
	if index < 0 || index >= count {
		return fmt.Errorf("%w: index %d, session has %d segments", ErrIndexOutOfRange, index, count)
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE segments SET clip_url = ?, clip_thumbnail_url = ?, clip_duration_s = ?
		WHERE session_id = ? AND idx = ?
	`, clip.URL, nullString(clip.ThumbnailURL), clip.DurationS, sessionID, index)
	return err
}

func (r *SQLiteRepository) segmentCount(ctx context.Context, sessionID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM segments WHERE session_id = ?", sessionID).Scan(&count)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		var exists int
		err := r.db.QueryRowContext(ctx,
			"SELECT 1 FROM sessions WHERE id = ?", sessionID).Scan(&exists)
		if err == sql.ErrNoRows {
			return 0, ErrSessionNotFound
		}
		if err != nil {
			return 0, err
		}
	}
	return count, nil
}

func (r *SQLiteRepository) ListUserSessions(ctx context.Context, owner string) ([]*Summary, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT s.id, s.owner, s.prompt, s.created_at,
		       (SELECT COUNT(*) FROM segments WHERE session_id = s.id)
		FROM sessions s WHERE s.owner = ? ORDER BY s.created_at DESC
	`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var summaries []*Summary
	for rows.Next() {
		var sum Summary
		var o sql.NullString
		var createdAt string
		if err := rows.Scan(&sum.ID, &o, &sum.Prompt, &createdAt, &sum.SegmentCount); err != nil {
			return nil, err
		}
		sum.Owner = o.String
		sum.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		summaries = append(summaries, &sum)
	}
	return summaries, rows.Err()
}

func (r *SQLiteRepository) GetConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.QueryRowContext(ctx, "SELECT value FROM config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func (r *SQLiteRepository) SetConfig(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}

func (r *SQLiteRepository) DeleteConfig(ctx context.Context, key string) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM config WHERE key = ?", key)
	return err
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
