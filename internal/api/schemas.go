package api

import (
	"time"

	"github.com/storyforge/storyforge-agent/internal/generate"
	"github.com/storyforge/storyforge-agent/internal/progress"
	"github.com/storyforge/storyforge-agent/internal/provider"
	"github.com/storyforge/storyforge-agent/internal/session"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State      string `json:"state"`
	Backend    string `json:"backend"`
	Configured bool   `json:"configured"`
	SessionID  string `json:"session_id,omitempty"`
	Percent    int    `json:"percent"`
	Label      string `json:"label"`
	LastError  string `json:"last_error,omitempty"`
}

type ReferenceImageRequest struct {
	Base64Data string `json:"base64_data"`
	MimeType   string `json:"mime_type"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
}

type StartGenerationRequest struct {
	Prompt          string                  `json:"prompt"`
	SegmentCount    int                     `json:"segment_count"`
	ClipDurationS   int                     `json:"clip_duration_s"`
	ReferenceImages []ReferenceImageRequest `json:"reference_images,omitempty"`
}

type StartGenerationResponse struct {
	SessionID string `json:"session_id"`
}

type ClipResponse struct {
	URL          string `json:"url"`
	ThumbnailURL string `json:"thumbnail_url,omitempty"`
	DurationS    int    `json:"duration_s"`
	Prompt       string `json:"prompt,omitempty"`
}

type SegmentResponse struct {
	Index         int           `json:"index"`
	Prompt        string        `json:"prompt"`
	Status        string        `json:"status"`
	FailureReason string        `json:"failure_reason,omitempty"`
	Clip          *ClipResponse `json:"clip,omitempty"`
}

type GenerationResponse struct {
	SessionID     string            `json:"session_id"`
	Generating    bool              `json:"generating"`
	ClipDurationS int               `json:"clip_duration_s"`
	Percent       int               `json:"percent"`
	Label         string            `json:"label"`
	Segments      []SegmentResponse `json:"segments"`
	LastError     string            `json:"last_error,omitempty"`
}

type SessionSummaryResponse struct {
	ID           string `json:"id"`
	Prompt       string `json:"prompt"`
	SegmentCount int    `json:"segment_count"`
	CreatedAt    string `json:"created_at"`
}

type SessionsResponse struct {
	Sessions []SessionSummaryResponse `json:"sessions"`
}

type SessionResponse struct {
	ID            string            `json:"id"`
	Prompt        string            `json:"prompt"`
	ClipDurationS int               `json:"clip_duration_s"`
	CreatedAt     string            `json:"created_at"`
	Segments      []SegmentResponse `json:"segments"`
}

type ProviderConfigRequest struct {
	Endpoint   string `json:"endpoint"`
	Credential string `json:"credential"`
}

type ProviderConfigResponse struct {
	Configured    bool   `json:"configured"`
	Endpoint      string `json:"endpoint,omitempty"`
	CredentialSet bool   `json:"credential_set"`
	Source        string `json:"source"`
}

type SelectBackendRequest struct {
	Backend string `json:"backend"`
}

type ProviderStateResponse struct {
	Backend    string `json:"backend"`
	Configured bool   `json:"configured"`
	OptIn      bool   `json:"opt_in"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func clipToResponse(c *session.Clip) *ClipResponse {
	if c == nil {
		return nil
	}
	return &ClipResponse{
		URL:          c.URL,
		ThumbnailURL: c.ThumbnailURL,
		DurationS:    c.DurationS,
		Prompt:       c.Prompt,
	}
}

func snapshotToResponse(snap generate.Snapshot, rep progress.Report) GenerationResponse {
	resp := GenerationResponse{
		SessionID:     snap.SessionID,
		Generating:    snap.Generating,
		ClipDurationS: snap.ClipDurationS,
		Percent:       rep.Percent,
		Label:         rep.Label,
		Segments:      make([]SegmentResponse, len(snap.Segments)),
		LastError:     snap.LastError,
	}
	for i, seg := range snap.Segments {
		resp.Segments[i] = SegmentResponse{
			Index:         i,
			Prompt:        seg.Prompt,
			Status:        string(seg.Status.Kind),
			FailureReason: seg.Status.Reason,
			Clip:          clipToResponse(seg.Clip),
		}
	}
	return resp
}

func sessionToResponse(s *session.Session) SessionResponse {
	resp := SessionResponse{
		ID:            s.ID,
		Prompt:        s.Prompt,
		ClipDurationS: s.ClipDurationS,
		CreatedAt:     s.CreatedAt.Format(time.RFC3339),
		Segments:      make([]SegmentResponse, len(s.Segments)),
	}
	for i, seg := range s.Segments {
		resp.Segments[i] = SegmentResponse{
			Index:         i,
			Prompt:        seg.Prompt,
			Status:        string(seg.Status.Kind),
			FailureReason: seg.Status.Reason,
			Clip:          clipToResponse(seg.Clip),
		}
	}
	return resp
}

func summaryToResponse(s *session.Summary) SessionSummaryResponse {
	return SessionSummaryResponse{
		ID:           s.ID,
		Prompt:       s.Prompt,
		SegmentCount: s.SegmentCount,
		CreatedAt:    s.CreatedAt.Format(time.RFC3339),
	}
}

func referenceImages(reqs []ReferenceImageRequest) []provider.ReferenceImage {
	if len(reqs) == 0 {
		return nil
	}
	out := make([]provider.ReferenceImage, len(reqs))
	for i, r := range reqs {
		out[i] = provider.ReferenceImage{
			Base64Data: r.Base64Data,
			MimeType:   r.MimeType,
			Filename:   r.Filename,
			Size:       r.Size,
		}
	}
	return out
}
