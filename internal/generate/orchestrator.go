// Package generate drives a session's segments through the generation
// pipeline: one segment in flight at a time, per-segment failures kept
// local, independent retry per index.
package generate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/storyforge/storyforge-agent/internal/provider"
	"github.com/storyforge/storyforge-agent/internal/session"
	"github.com/storyforge/storyforge-agent/internal/status"
)

var (
	ErrRunInProgress   = errors.New("a generation run is already in progress")
	ErrNoActiveSession = errors.New("no active generation session")
	ErrStateReset      = errors.New("generation state was reset")
)

// Store is the slice of the session store the orchestrator consumes.
// The store is a mirror: update failures are logged and swallowed, the
// in-memory state is what observers see.
type Store interface {
	CreateSession(ctx context.Context, s *session.Session) error
	GetSession(ctx context.Context, id string) (*session.Session, error)
	UpdateSegmentStatus(ctx context.Context, sessionID string, index int, st status.Status) error
	SetSegmentClip(ctx context.Context, sessionID string, index int, clip *session.Clip) error
}

// ClientSource resolves the generation client for the currently active
// backend at the moment a run or retry starts.
type ClientSource interface {
	ActiveClient(ctx context.Context) (provider.Client, error)
}

// StartRequest describes a new generation run.
type StartRequest struct {
	Prompt          string
	SegmentCount    int
	ClipDurationS   int
	Owner           string
	ReferenceImages []provider.ReferenceImage
}

// SegmentView is a read-only copy of one segment's live state.
type SegmentView struct {
	Prompt string        `json:"prompt"`
	Status status.Status `json:"status"`
	Clip   *session.Clip `json:"clip,omitempty"`
}

// Snapshot is a consistent copy of the orchestrator's live state.
type Snapshot struct {
	SessionID       string
	Generating      bool
	ClipDurationS   int
	Segments        []SegmentView
	GeneratingIndex int // -1 when no segment is in flight
	GeneratingFor   time.Duration
	LastError       string
}

type Orchestrator struct {
	store   Store
	clients ClientSource
	logger  *slog.Logger

	mu            sync.Mutex
	gen           uint64 // bumped by Reset and StartGeneration; stale results check it
	sessionID     string
	segments      []session.Segment
	clips         []*session.Clip
	clipDurationS int
	refImages     []provider.ReferenceImage
	generating    bool
	generatingIdx int
	generatingAt  time.Time
	guard         *tokenArena
	lastError     string
}

func New(store Store, clients ClientSource, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		store:         store,
		clients:       clients,
		logger:        logger,
		guard:         newTokenArena(0),
		generatingIdx: -1,
	}
}

// StartGeneration validates the request, creates the session, and
// launches the sequential segment loop. It returns the session id as
// soon as the run is underway; progress is observed via Snapshot.
//
// Provider-unavailable, prompt-derivation, and session-creation errors
// are fatal and leave no run in progress. Per-segment provider
// failures are not: they are recorded on the segment and the loop
// continues.
func (o *Orchestrator) StartGeneration(ctx context.Context, req StartRequest) (string, error) {
	client, err := o.clients.ActiveClient(ctx)
	if err != nil {
		return "", err
	}

	prompts, err := provider.DeriveSegmentPrompts(req.Prompt, req.SegmentCount)
	if err != nil {
		return "", fmt.Errorf("derive segment prompts: %w", err)
	}

	o.mu.Lock()
	if o.generating {
		o.mu.Unlock()
		return "", ErrRunInProgress
	}
	o.gen++
	myGen := o.gen
	o.generating = true
	o.lastError = ""
	o.mu.Unlock()

	sess := &session.Session{
		ID:            session.NewID(),
		Owner:         req.Owner,
		Prompt:        req.Prompt,
		ClipDurationS: req.ClipDurationS,
		CreatedAt:     time.Now(),
	}
	for _, p := range prompts {
		sess.Segments = append(sess.Segments, session.Segment{Prompt: p, Status: status.NewQueued()})
	}

	if err := o.store.CreateSession(ctx, sess); err != nil {
		o.mu.Lock()
		if o.gen == myGen {
			o.generating = false
			o.lastError = "Could not create a generation session: " + err.Error()
		}
		o.mu.Unlock()
		return "", fmt.Errorf("create session: %w", err)
	}

	o.mu.Lock()
	if o.gen != myGen {
		o.mu.Unlock()
		return "", ErrStateReset
	}
	o.sessionID = sess.ID
	o.segments = make([]session.Segment, len(sess.Segments))
	copy(o.segments, sess.Segments)
	o.clips = make([]*session.Clip, len(sess.Segments))
	o.clipDurationS = req.ClipDurationS
	o.refImages = req.ReferenceImages
	o.guard = newTokenArena(len(sess.Segments))
	o.generatingIdx = -1
	o.mu.Unlock()

	if o.logger != nil {
		o.logger.Info("generation run started",
			"session_id", sess.ID,
			"segments", len(prompts),
			"clip_duration_s", req.ClipDurationS,
			"backend", client.Name(),
		)
	}

	go o.run(myGen, client)
	return sess.ID, nil
}

// run is the sequential segment loop: ascending index order, one
// segment in flight at a time. Backpressure is deliberate; the remote
// provider is rate-sensitive and progress reporting assumes ordered
// completion.
func (o *Orchestrator) run(gen uint64, client provider.Client) {
	ctx := context.Background()

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		return
	}
	n := len(o.segments)
	dur := o.clipDurationS
	o.mu.Unlock()

	for i := 0; i < n; i++ {
		o.processSegment(ctx, gen, i, client, func(context.Context) int { return dur })
	}

	o.mu.Lock()
	if o.gen == gen {
		o.generating = !allTerminal(o.segments)
		if o.logger != nil {
			o.logger.Info("generation run finished",
				"session_id", o.sessionID,
				"completed", countKind(o.segments, status.Completed),
				"failed", countKind(o.segments, status.Failed),
			)
		}
	}
	o.mu.Unlock()
}

// processSegment drives one attempt for one index. The guard token is
// acquired before the first suspension point and released
// unconditionally. Returns false when the segment was skipped (already
// in flight, already generating or completed, or state was reset).
func (o *Orchestrator) processSegment(ctx context.Context, gen uint64, i int, client provider.Client, resolveDuration func(context.Context) int) bool {
	o.mu.Lock()
	if o.gen != gen || i < 0 || i >= len(o.segments) {
		o.mu.Unlock()
		return false
	}
	cur := o.segments[i].Status
	if cur.Kind == status.Generating || cur.Kind == status.Completed {
		o.mu.Unlock()
		return false
	}
	g := o.guard
	if !g.Acquire(i) {
		o.mu.Unlock()
		return false
	}

	ev := status.Start()
	if cur.Kind == status.Failed {
		ev = status.Retry()
	}
	next, err := status.Transition(cur, ev)
	if err != nil {
		g.Release(i)
		o.mu.Unlock()
		return false
	}
	o.segments[i].Status = next
	o.generating = true
	o.generatingIdx = i
	o.generatingAt = time.Now()
	sid := o.sessionID
	prompt := o.segments[i].Prompt
	refs := o.refImages
	o.mu.Unlock()
	defer g.Release(i)

	o.mirrorStatus(ctx, sid, i, next)

	clip, genErr := client.GenerateClip(ctx, provider.ClipRequest{
		Prompt:          prompt,
		DurationS:       resolveDuration(ctx),
		SegmentIndex:    i,
		ReferenceImages: refs,
	})
	if genErr == nil && (clip == nil || clip.URL == "") {
		genErr = &provider.ResponseShapeError{Detail: "provider returned an empty clip URL"}
	}

	o.mu.Lock()
	if o.gen != gen {
		o.mu.Unlock()
		if o.logger != nil {
			o.logger.Info("discarding stale generation result", "session_id", sid, "segment", i)
		}
		return true
	}

	var final status.Status
	var stored *session.Clip
	if genErr != nil {
		final, _ = status.Transition(o.segments[i].Status, status.Fail(failureReason(genErr, len(refs))))
		// clips[i] stays nil: a failed segment never gets a placeholder clip
	} else {
		final, _ = status.Transition(o.segments[i].Status, status.Succeed())
		stored = &session.Clip{
			URL:          clip.URL,
			ThumbnailURL: clip.ThumbnailURL,
			DurationS:    clip.DurationS,
			Prompt:       clip.Prompt,
		}
		o.clips[i] = stored
		o.segments[i].Clip = stored
	}
	o.segments[i].Status = final
	if o.generatingIdx == i {
		o.generatingIdx = -1
	}
	o.mu.Unlock()

	o.mirrorStatus(ctx, sid, i, final)
	if stored != nil {
		if err := o.store.SetSegmentClip(ctx, sid, i, stored); err != nil && o.logger != nil {
			o.logger.Warn("failed to mirror segment clip", "session_id", sid, "segment", i, "error", err)
		}
	}
	return true
}

// RetrySegment re-runs generation for exactly one segment. It shares
// the in-flight guard with the sequential loop, so a retry can never
// race a run still touching the same index; retrying an in-flight
// segment is a no-op. The clip duration comes from the stored session,
// which may have been fetched fresh since the original request.
func (o *Orchestrator) RetrySegment(ctx context.Context, index int) error {
	o.mu.Lock()
	if o.sessionID == "" {
		o.mu.Unlock()
		return ErrNoActiveSession
	}
	if index < 0 || index >= len(o.segments) {
		o.mu.Unlock()
		return fmt.Errorf("%w: index %d, session has %d segments", session.ErrIndexOutOfRange, index, len(o.segments))
	}
	gen := o.gen
	sid := o.sessionID
	localDur := o.clipDurationS
	o.mu.Unlock()

	client, err := o.clients.ActiveClient(ctx)
	if err != nil {
		return err
	}

	go func() {
		started := o.processSegment(context.Background(), gen, index, client, func(ctx context.Context) int {
			sess, err := o.store.GetSession(ctx, sid)
			if err != nil || sess == nil {
				return localDur
			}
			return sess.ClipDurationS
		})
		if started {
			o.mu.Lock()
			if o.gen == gen {
				o.generating = !allTerminal(o.segments)
			}
			o.mu.Unlock()
		}
	}()
	return nil
}

// Reset discards all session-scoped state. In-flight remote calls are
// not aborted; their results are detected as stale by the generation
// counter and dropped. Persisted provider configuration is untouched.
func (o *Orchestrator) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.gen++
	o.sessionID = ""
	o.segments = nil
	o.clips = nil
	o.clipDurationS = 0
	o.refImages = nil
	o.generating = false
	o.generatingIdx = -1
	o.lastError = ""
	o.guard = newTokenArena(0)
}

// Snapshot returns a consistent copy of the live state for observers.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()

	snap := Snapshot{
		SessionID:       o.sessionID,
		Generating:      o.generating,
		ClipDurationS:   o.clipDurationS,
		GeneratingIndex: o.generatingIdx,
		LastError:       o.lastError,
	}
	if o.generatingIdx >= 0 {
		snap.GeneratingFor = time.Since(o.generatingAt)
	}
	snap.Segments = make([]SegmentView, len(o.segments))
	for i, seg := range o.segments {
		snap.Segments[i] = SegmentView{Prompt: seg.Prompt, Status: seg.Status, Clip: o.clips[i]}
	}
	return snap
}

// InFlight reports whether the guard token for index i is held.
func (o *Orchestrator) InFlight(i int) bool {
	o.mu.Lock()
	g := o.guard
	o.mu.Unlock()
	return g.Held(i)
}

func (o *Orchestrator) mirrorStatus(ctx context.Context, sid string, i int, st status.Status) {
	if err := o.store.UpdateSegmentStatus(ctx, sid, i, st); err != nil && o.logger != nil {
		o.logger.Warn("failed to mirror segment status", "session_id", sid, "segment", i, "error", err)
	}
}

// failureReason builds the user-facing failure text. Reference images
// are a common actionable cause, so their presence is called out.
func failureReason(err error, refImageCount int) string {
	msg := "Clip generation failed: " + err.Error()
	if refImageCount > 0 {
		msg += fmt.Sprintf(" The request included %d reference image(s); try again without them if the provider rejects image input.", refImageCount)
	}
	return msg
}

func allTerminal(segs []session.Segment) bool {
	for _, s := range segs {
		if !s.Status.IsTerminal() {
			return false
		}
	}
	return true
}

func countKind(segs []session.Segment, kind status.Kind) int {
	n := 0
	for _, s := range segs {
		if s.Status.Kind == kind {
			n++
		}
	}
	return n
}
