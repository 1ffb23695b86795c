// Package playback serves locally generated clip files over HTTP with
// byte-range support, so browser video elements can seek.
package playback

import (
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// ClipServer serves clip files out of a single directory. Requests are
// keyed by bare filename; anything that looks like a path is rejected
// before it reaches the filesystem.
type ClipServer struct {
	clipsDir string
	logger   *slog.Logger
}

func NewClipServer(clipsDir string, logger *slog.Logger) *ClipServer {
	return &ClipServer{clipsDir: clipsDir, logger: logger}
}

// ServeClip writes the named clip to the response, honoring a Range
// request header when present.
func (s *ClipServer) ServeClip(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		http.Error(w, "invalid clip name", http.StatusBadRequest)
		return
	}

	file, err := os.Open(filepath.Join(s.clipsDir, name))
	if err != nil {
		if os.IsNotExist(err) {
			http.Error(w, "clip not found", http.StatusNotFound)
			return
		}
		s.fail(w, r, name, fmt.Errorf("open clip: %w", err))
		return
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		s.fail(w, r, name, fmt.Errorf("stat clip: %w", err))
		return
	}
	size := stat.Size()

	contentType := mime.TypeByExtension(filepath.Ext(name))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)

	rng, err := parseByteRange(r.Header.Get("Range"), size)
	if err == ErrUnsatisfiable {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		http.Error(w, "Range Not Satisfiable", http.StatusRequestedRangeNotSatisfiable)
		return
	}
	// A malformed Range header degrades to a full-body response.
	if rng == nil || err == ErrInvalidRange {
		w.Header().Set("Content-Length", fmt.Sprintf("%d", size))
		w.WriteHeader(http.StatusOK)
		io.Copy(w, file)
		return
	}

	w.Header().Set("Content-Length", fmt.Sprintf("%d", rng.length()))
	w.Header().Set("Content-Range", rng.contentRange(size))
	w.WriteHeader(http.StatusPartialContent)

	if _, err := file.Seek(rng.start, io.SeekStart); err != nil {
		return
	}
	io.CopyN(w, file, rng.length())
}

func (s *ClipServer) fail(w http.ResponseWriter, r *http.Request, name string, err error) {
	if s.logger != nil {
		s.logger.Error("clip playback failed", "clip", name, "error", err)
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}
