package provider

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// minimal valid MP4 container header; enough for players to identify
// the file while carrying no frames.
var placeholderMP4 = []byte{
	0x00, 0x00, 0x00, 0x18, 0x66, 0x74, 0x79, 0x70,
	0x6d, 0x70, 0x34, 0x32, 0x00, 0x00, 0x00, 0x00,
	0x6d, 0x70, 0x34, 0x32, 0x69, 0x73, 0x6f, 0x6d,
	0x00, 0x00, 0x00, 0x08, 0x66, 0x72, 0x65, 0x65,
}

// StubClient is the local placeholder backend used when no remote
// provider is active. It writes an empty clip file under clipsDir and
// returns a URL served by the agent's own /clips endpoint.
type StubClient struct {
	baseURL  string
	clipsDir string
	logger   *slog.Logger
}

func NewStubClient(baseURL, clipsDir string, logger *slog.Logger) *StubClient {
	return &StubClient{baseURL: baseURL, clipsDir: clipsDir, logger: logger}
}

func (c *StubClient) Name() string { return "local" }

func (c *StubClient) GenerateClip(ctx context.Context, req ClipRequest) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(c.clipsDir, 0755); err != nil {
		return nil, fmt.Errorf("create clips directory: %w", err)
	}

	name := fmt.Sprintf("clip-%s.mp4", uuid.NewString())
	path := filepath.Join(c.clipsDir, name)
	if err := os.WriteFile(path, placeholderMP4, 0644); err != nil {
		return nil, fmt.Errorf("write placeholder clip: %w", err)
	}

	if c.logger != nil {
		c.logger.Info("local placeholder clip generated", "segment", req.SegmentIndex, "path", path)
	}

	return &Clip{
		URL:       fmt.Sprintf("%s/clips/%s", c.baseURL, name),
		DurationS: req.DurationS,
		Prompt:    req.Prompt,
	}, nil
}
