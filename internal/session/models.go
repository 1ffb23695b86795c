package session

import (
	"time"

	"github.com/google/uuid"

	"github.com/storyforge/storyforge-agent/internal/status"
)

// Clip duration bounds accepted per segment (seconds).
const (
	MinClipDurationS = 1
	MaxClipDurationS = 120
)

// Session binds an original prompt to its derived segments. The segment
// list is fixed at creation and never grows or shrinks.
type Session struct {
	ID            string    `json:"id"`
	Owner         string    `json:"owner,omitempty"`
	Prompt        string    `json:"prompt"`
	ClipDurationS int       `json:"clip_duration_s"`
	Segments      []Segment `json:"segments"`
	CreatedAt     time.Time `json:"created_at"`
}

// Segment is one clip-sized unit of the session. Its index in
// Session.Segments is its identity; there is no separate segment id.
type Segment struct {
	Prompt string        `json:"prompt"`
	Status status.Status `json:"status"`
	Clip   *Clip         `json:"clip,omitempty"`
}

// Clip references a generated artifact. URL is always non-empty for a
// persisted clip; a failed segment has no Clip at all, never a
// placeholder with an empty URL.
type Clip struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	DurationS    int    `json:"duration_s"`
	Prompt       string `json:"prompt"`
}

// Summary is the listing view of a session.
type Summary struct {
	ID           string    `json:"id"`
	Owner        string    `json:"owner,omitempty"`
	Prompt       string    `json:"prompt"`
	SegmentCount int       `json:"segment_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func NewID() string {
	return uuid.NewString()
}
