package playback

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func TestParseByteRange(t *testing.T) {
	const size = 1000

	tests := []struct {
		name   string
		header string
		start  int64
		end    int64
	}{
		{"full range", "bytes=0-999", 0, 999},
		{"open ended", "bytes=500-", 500, 999},
		{"suffix", "bytes=-200", 800, 999},
		{"suffix longer than file", "bytes=-5000", 0, 999},
		{"end clamped to size", "bytes=0-5000", 0, 999},
		{"multi range uses first", "bytes=0-99, 200-299", 0, 99},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rng, err := parseByteRange(tt.header, size)
			if err != nil {
				t.Fatalf("parseByteRange(%q) error = %v", tt.header, err)
			}
			if rng == nil || rng.start != tt.start || rng.end != tt.end {
				t.Errorf("parseByteRange(%q) = %+v, want %d-%d", tt.header, rng, tt.start, tt.end)
			}
		})
	}
}

func TestParseByteRange_NoHeader(t *testing.T) {
	rng, err := parseByteRange("", 1000)
	if rng != nil || err != nil {
		t.Errorf("parseByteRange(\"\") = %+v, %v; want nil, nil", rng, err)
	}
}

func TestParseByteRange_Invalid(t *testing.T) {
	for _, h := range []string{"items=0-10", "bytes=abc-def", "bytes=10", "bytes=-0", "bytes=-abc"} {
		if _, err := parseByteRange(h, 1000); err != ErrInvalidRange {
			t.Errorf("parseByteRange(%q) error = %v, want ErrInvalidRange", h, err)
		}
	}
}

func TestParseByteRange_Unsatisfiable(t *testing.T) {
	for _, h := range []string{"bytes=1000-", "bytes=500-100"} {
		if _, err := parseByteRange(h, 1000); err != ErrUnsatisfiable {
			t.Errorf("parseByteRange(%q) error = %v, want ErrUnsatisfiable", h, err)
		}
	}
}

func writeClip(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestServeClip_FullBody(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "clip-1.mp4", []byte("0123456789"))
	srv := NewClipServer(dir, nil)

	w := httptest.NewRecorder()
	srv.ServeClip(w, httptest.NewRequest(http.MethodGet, "/clips/clip-1.mp4", nil), "clip-1.mp4")

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := w.Body.String(); got != "0123456789" {
		t.Errorf("body = %q", got)
	}
	if ct := w.Header().Get("Content-Type"); ct != "video/mp4" {
		t.Errorf("Content-Type = %q, want video/mp4", ct)
	}
	if ar := w.Header().Get("Accept-Ranges"); ar != "bytes" {
		t.Errorf("Accept-Ranges = %q", ar)
	}
}

func TestServeClip_PartialContent(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "clip-1.mp4", []byte("0123456789"))
	srv := NewClipServer(dir, nil)

	req := httptest.NewRequest(http.MethodGet, "/clips/clip-1.mp4", nil)
	req.Header.Set("Range", "bytes=2-5")
	w := httptest.NewRecorder()
	srv.ServeClip(w, req, "clip-1.mp4")

	if w.Code != http.StatusPartialContent {
		t.Fatalf("status = %d, want 206", w.Code)
	}
	if got := w.Body.String(); got != "2345" {
		t.Errorf("body = %q, want \"2345\"", got)
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes 2-5/10" {
		t.Errorf("Content-Range = %q", cr)
	}
}

func TestServeClip_UnsatisfiableRange(t *testing.T) {
	dir := t.TempDir()
	writeClip(t, dir, "clip-1.mp4", []byte("0123456789"))
	srv := NewClipServer(dir, nil)

	req := httptest.NewRequest(http.MethodGet, "/clips/clip-1.mp4", nil)
	req.Header.Set("Range", "bytes=50-")
	w := httptest.NewRecorder()
	srv.ServeClip(w, req, "clip-1.mp4")

	if w.Code != http.StatusRequestedRangeNotSatisfiable {
		t.Fatalf("status = %d, want 416", w.Code)
	}
	if cr := w.Header().Get("Content-Range"); cr != "bytes */10" {
		t.Errorf("Content-Range = %q", cr)
	}
}

func TestServeClip_NotFound(t *testing.T) {
	srv := NewClipServer(t.TempDir(), nil)
	w := httptest.NewRecorder()
	srv.ServeClip(w, httptest.NewRequest(http.MethodGet, "/clips/missing.mp4", nil), "missing.mp4")
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestServeClip_RejectsPathTraversal(t *testing.T) {
	srv := NewClipServer(t.TempDir(), nil)
	for _, name := range []string{"../etc/passwd", "a/b.mp4", ".hidden", ""} {
		w := httptest.NewRecorder()
		srv.ServeClip(w, httptest.NewRequest(http.MethodGet, "/clips/x", nil), name)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ServeClip(%q) status = %d, want 400", name, w.Code)
		}
	}
}
