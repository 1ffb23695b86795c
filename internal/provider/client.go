// Package provider contains the clients that turn a segment prompt
// into a playable clip: an HTTP client for the remote generation
// service and a local placeholder generator.
package provider

import (
	"context"
	"strings"
)

// ReferenceImage is an optional image attached to a generation request.
type ReferenceImage struct {
	Base64Data string `json:"base64_data"`
	MimeType   string `json:"mime_type"`
	Filename   string `json:"filename"`
	Size       int64  `json:"size"`
}

// ClipRequest describes one segment generation attempt.
type ClipRequest struct {
	Prompt          string
	DurationS       int
	SegmentIndex    int
	ReferenceImages []ReferenceImage
}

// Clip is a generated artifact reference. URL is always non-empty.
type Clip struct {
	URL          string
	ThumbnailURL string
	DurationS    int
	Prompt       string
}

// Client generates one clip per call. Implementations must either
// return a clip with a playable URL or an error, never a clip with an
// empty URL.
type Client interface {
	GenerateClip(ctx context.Context, req ClipRequest) (*Clip, error)
	Name() string
}

// IsPlayableURL reports whether a URL is acceptable as a clip
// reference: http(s) or a browser blob URL.
func IsPlayableURL(u string) bool {
	return strings.HasPrefix(u, "http://") ||
		strings.HasPrefix(u, "https://") ||
		strings.HasPrefix(u, "blob:")
}
