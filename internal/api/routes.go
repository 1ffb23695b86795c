package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/storyforge/storyforge-agent/internal/generate"
	"github.com/storyforge/storyforge-agent/internal/progress"
	"github.com/storyforge/storyforge-agent/internal/provider"
	"github.com/storyforge/storyforge-agent/internal/providerconf"
	"github.com/storyforge/storyforge-agent/internal/session"
	"github.com/storyforge/storyforge-agent/internal/status"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	// Browser video elements cannot attach Authorization headers, so
	// clip playback sits outside the auth group. The server only binds
	// to loopback.
	r.Get("/clips/{name}", clipHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Sessions, cfg.Logger))

		r.Get("/status", statusHandler(cfg))

		r.Post("/generations", startGenerationHandler(cfg))
		r.Get("/generations/current", currentGenerationHandler(cfg))
		r.Post("/generations/current/segments/{index}/retry", retrySegmentHandler(cfg))
		r.Post("/generations/current/reset", resetHandler(cfg))

		r.Get("/sessions", listSessionsHandler(cfg))
		r.Get("/sessions/{id}", getSessionHandler(cfg))

		r.Get("/provider", providerStateHandler(cfg))
		r.Post("/provider/select", selectBackendHandler(cfg))
		r.Get("/provider/config", getProviderConfigHandler(cfg))
		r.Put("/provider/config", putProviderConfigHandler(cfg))
		r.Delete("/provider/config", deleteProviderConfigHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  cfg.Version,
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Orchestrator.Snapshot()
		rep := progressFor(snap)

		state := "idle"
		if snap.Generating {
			state = "generating"
		} else if snap.LastError != "" {
			state = "error"
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:      state,
			Backend:    string(cfg.Reconciler.Active()),
			Configured: cfg.ProviderStore.IsConfigured(r.Context()),
			SessionID:  snap.SessionID,
			Percent:    rep.Percent,
			Label:      rep.Label,
			LastError:  snap.LastError,
		})
	}
}

func startGenerationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req StartGenerationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		if req.SegmentCount == 0 {
			req.SegmentCount = cfg.DefaultSegments
		}
		if req.ClipDurationS == 0 {
			req.ClipDurationS = cfg.DefaultClipSeconds
		}
		if req.ClipDurationS < session.MinClipDurationS || req.ClipDurationS > session.MaxClipDurationS {
			WriteError(w, http.StatusBadRequest, "clip_duration_s out of range", "BAD_REQUEST")
			return
		}

		id, err := cfg.Orchestrator.StartGeneration(r.Context(), generate.StartRequest{
			Prompt:          req.Prompt,
			SegmentCount:    req.SegmentCount,
			ClipDurationS:   req.ClipDurationS,
			Owner:           cfg.DeviceID,
			ReferenceImages: referenceImages(req.ReferenceImages),
		})
		if err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusAccepted, StartGenerationResponse{SessionID: id})
	}
}

func currentGenerationHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := cfg.Orchestrator.Snapshot()
		if snap.SessionID == "" {
			WriteError(w, http.StatusNotFound, "no active generation session", "NOT_FOUND")
			return
		}
		WriteJSON(w, http.StatusOK, snapshotToResponse(snap, progressFor(snap)))
	}
}

func retrySegmentHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		index, err := strconv.Atoi(chi.URLParam(r, "index"))
		if err != nil || index < 0 {
			WriteError(w, http.StatusBadRequest, "invalid segment index", "BAD_REQUEST")
			return
		}

		if err := cfg.Orchestrator.RetrySegment(r.Context(), index); err != nil {
			writeDomainError(w, err)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}
}

func resetHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Orchestrator.Reset()
		w.WriteHeader(http.StatusNoContent)
	}
}

func listSessionsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		summaries, err := cfg.Sessions.ListUserSessions(r.Context(), cfg.DeviceID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list sessions", "INTERNAL_ERROR")
			return
		}

		resp := SessionsResponse{Sessions: make([]SessionSummaryResponse, len(summaries))}
		for i, s := range summaries {
			resp.Sessions[i] = summaryToResponse(s)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getSessionHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "session id required", "BAD_REQUEST")
			return
		}

		sess, err := cfg.Sessions.GetSession(r.Context(), id)
		if err != nil {
			writeDomainError(w, err)
			return
		}
		WriteJSON(w, http.StatusOK, sessionToResponse(sess))
	}
}

func providerStateHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, ProviderStateResponse{
			Backend:    string(cfg.Reconciler.Active()),
			Configured: cfg.ProviderStore.IsConfigured(r.Context()),
			OptIn:      cfg.Reconciler.ExplicitOptIn(),
		})
	}
}

func selectBackendHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectBackendRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		backend := providerconf.Backend(req.Backend)
		if backend != providerconf.BackendRemote && backend != providerconf.BackendLocal {
			WriteError(w, http.StatusBadRequest, "backend must be \"remote\" or \"local\"", "BAD_REQUEST")
			return
		}

		if err := cfg.Reconciler.Select(r.Context(), backend); err != nil {
			writeDomainError(w, err)
			return
		}

		WriteJSON(w, http.StatusOK, ProviderStateResponse{
			Backend:    string(cfg.Reconciler.Active()),
			Configured: cfg.ProviderStore.IsConfigured(r.Context()),
			OptIn:      cfg.Reconciler.ExplicitOptIn(),
		})
	}
}

func getProviderConfigHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conf, source, err := cfg.ProviderStore.Load(r.Context())
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to load provider config", "INTERNAL_ERROR")
			return
		}

		resp := ProviderConfigResponse{Source: string(source)}
		if conf != nil {
			resp.Configured = true
			resp.Endpoint = conf.Endpoint
			resp.CredentialSet = conf.Credential != ""
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func putProviderConfigHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProviderConfigRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		// Save notifies subscribers, so the reconciler re-evaluates the
		// active backend before this response is written.
		if err := cfg.ProviderStore.Save(r.Context(), req.Endpoint, req.Credential); err != nil {
			writeDomainError(w, err)
			return
		}

		conf, source, _ := cfg.ProviderStore.Load(r.Context())
		resp := ProviderConfigResponse{Source: string(source)}
		if conf != nil {
			resp.Configured = true
			resp.Endpoint = conf.Endpoint
			resp.CredentialSet = conf.Credential != ""
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func deleteProviderConfigHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := cfg.ProviderStore.Clear(r.Context()); err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to clear provider config", "INTERNAL_ERROR")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func clipHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg.Clips.ServeClip(w, r, chi.URLParam(r, "name"))
	}
}

func progressFor(snap generate.Snapshot) progress.Report {
	statuses := make([]status.Status, len(snap.Segments))
	for i, seg := range snap.Segments {
		statuses[i] = seg.Status
	}
	return progress.Estimate(statuses, snap.GeneratingIndex, snap.GeneratingFor)
}

// writeDomainError maps domain sentinel errors to HTTP responses.
func writeDomainError(w http.ResponseWriter, err error) {
	var malformed *providerconf.MalformedEndpointError
	switch {
	case errors.Is(err, provider.ErrNotConfigured),
		errors.Is(err, providerconf.ErrRemoteUnavailable):
		WriteError(w, http.StatusConflict, err.Error(), "NOT_CONFIGURED")
	case errors.Is(err, generate.ErrRunInProgress):
		WriteError(w, http.StatusConflict, err.Error(), "GENERATION_IN_PROGRESS")
	case errors.Is(err, generate.ErrNoActiveSession),
		errors.Is(err, session.ErrSessionNotFound):
		WriteError(w, http.StatusNotFound, err.Error(), "NOT_FOUND")
	case errors.Is(err, session.ErrIndexOutOfRange),
		errors.Is(err, session.ErrEmptyPrompt),
		errors.Is(err, session.ErrNoSegments),
		errors.Is(err, session.ErrDurationOutOfRange),
		errors.Is(err, provider.ErrEmptyPrompt),
		errors.Is(err, providerconf.ErrMissingEndpoint),
		errors.Is(err, providerconf.ErrMissingCredential),
		errors.As(err, &malformed):
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
