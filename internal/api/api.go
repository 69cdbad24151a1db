// Package api exposes the control surface the dashboard shell talks to:
// lifecycle events in, session state and refresh history out.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/yug-minds/livecore/internal/metrics"
	"github.com/yug-minds/livecore/internal/models"
	"github.com/yug-minds/livecore/internal/refresh"
	"github.com/yug-minds/livecore/internal/runtime"
	"github.com/yug-minds/livecore/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	rt    *runtime.Runtime
	store store.Store
}

// NewServer creates a new API server. The store may be nil when
// persistence is disabled; history endpoints then serve the in-memory
// ring only.
func NewServer(rt *runtime.Runtime, st store.Store) *Server {
	return &Server{rt: rt, store: st}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/events/{kind}", s.postEvent)

	mux.HandleFunc("GET /api/v1/session", s.getSession)
	mux.HandleFunc("POST /api/v1/session/check", s.checkSession)
	mux.HandleFunc("POST /api/v1/session/supersede", s.supersedeSession)
	mux.HandleFunc("POST /api/v1/login", s.login)
	mux.HandleFunc("POST /api/v1/logout", s.logout)

	mux.HandleFunc("GET /api/v1/consumers", s.listConsumers)
	mux.HandleFunc("POST /api/v1/consumers/{id}", s.registerConsumer)
	mux.HandleFunc("DELETE /api/v1/consumers/{id}", s.unregisterConsumer)
	mux.HandleFunc("POST /api/v1/consumers/{id}/trigger", s.triggerConsumer)

	mux.HandleFunc("POST /api/v1/forms/{id}", s.registerForm)
	mux.HandleFunc("PUT /api/v1/forms/{id}", s.markForm)
	mux.HandleFunc("DELETE /api/v1/forms/{id}", s.unregisterForm)
	mux.HandleFunc("GET /api/v1/forms/unsaved", s.unsavedForms)

	mux.HandleFunc("GET /api/v1/refresh-log", s.refreshLog)

	mux.HandleFunc("GET /healthz", s.healthz)
	mux.Handle("GET /metrics", metrics.Handler())

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// --- Lifecycle events ---

func (s *Server) postEvent(w http.ResponseWriter, r *http.Request) {
	kind := models.TriggerKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusBadRequest, "unknown event kind: "+string(kind))
		return
	}
	s.rt.Hub().Emit(kind)
	if kind == models.TriggerManual {
		// Manual triggers fan out to every consumer, not just the monitor.
		s.rt.Scheduler().TriggerAll()
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"kind": string(kind)})
}

// --- Consumers ---

type consumerRequest struct {
	MinInterval       string   `json:"min_interval,omitempty"`
	InvalidateKeys    []string `json:"invalidate_keys,omitempty"`
	DisableVisibility bool     `json:"disable_visibility,omitempty"`
	DisableFocus      bool     `json:"disable_focus,omitempty"`
}

type consumerResponse struct {
	ID            string     `json:"id"`
	LastRefreshAt *time.Time `json:"last_refresh_at,omitempty"`
}

func (s *Server) registerConsumer(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req consumerRequest
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	policy := refresh.Policy{
		InvalidateKeys:    req.InvalidateKeys,
		DisableVisibility: req.DisableVisibility,
		DisableFocus:      req.DisableFocus,
	}
	if req.MinInterval != "" {
		d, err := time.ParseDuration(req.MinInterval)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "min_interval must be a positive duration")
			return
		}
		policy.MinInterval = d
	}

	s.rt.Scheduler().Register(id, policy)
	writeJSON(w, http.StatusCreated, consumerResponse{ID: id})
}

func (s *Server) unregisterConsumer(w http.ResponseWriter, r *http.Request) {
	c := s.rt.Scheduler().Consumer(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "consumer not registered")
		return
	}
	c.Close()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) triggerConsumer(w http.ResponseWriter, r *http.Request) {
	c := s.rt.Scheduler().Consumer(r.PathValue("id"))
	if c == nil {
		writeError(w, http.StatusNotFound, "consumer not registered")
		return
	}
	c.Trigger(models.TriggerManual)
	writeJSON(w, http.StatusAccepted, consumerResponse{ID: c.ID()})
}

func (s *Server) listConsumers(w http.ResponseWriter, r *http.Request) {
	consumers := s.rt.Scheduler().Consumers()
	resp := make([]consumerResponse, 0, len(consumers))
	for _, c := range consumers {
		cr := consumerResponse{ID: c.ID()}
		if at := c.LastRefreshAt(); !at.IsZero() {
			cr.LastRefreshAt = &at
		}
		resp = append(resp, cr)
	}
	writeJSON(w, http.StatusOK, resp)
}

// --- Session ---

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	m := s.rt.Monitor()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not started")
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) checkSession(w http.ResponseWriter, r *http.Request) {
	m := s.rt.Monitor()
	if m == nil {
		writeError(w, http.StatusServiceUnavailable, "monitor not started")
		return
	}
	valid := m.CheckNow(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"valid": valid,
		"state": m.Snapshot(),
	})
}

func (s *Server) supersedeSession(w http.ResponseWriter, r *http.Request) {
	s.rt.Supersede()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	if err := s.rt.Login(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	m := s.rt.Monitor()
	if m == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, m.Snapshot())
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	s.rt.Logout()
	w.WriteHeader(http.StatusNoContent)
}

// --- Forms ---

func (s *Server) registerForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.rt.Forms().Register(id)
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) markForm(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var req struct {
		Dirty bool `json:"dirty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	s.rt.Forms().MarkDirty(id, req.Dirty)
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "dirty": req.Dirty})
}

func (s *Server) unregisterForm(w http.ResponseWriter, r *http.Request) {
	s.rt.Forms().Unregister(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unsavedForms(w http.ResponseWriter, r *http.Request) {
	ids := s.rt.Forms().UnsavedIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"has_unsaved": len(ids) > 0,
		"ids":         ids,
	})
}

// --- Refresh log ---

func (s *Server) refreshLog(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	consumer := r.URL.Query().Get("consumer")

	if s.store != nil {
		entries, err := s.store.ListRefreshLog(r.Context(), consumer, limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if entries == nil {
			entries = []*models.RefreshLogEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
		return
	}

	entries := s.rt.Recorder().Tail(limit)
	if consumer != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.ConsumerID == consumer {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if entries == nil {
		entries = []models.RefreshLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// --- Health ---

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]string{"status": "ok"}
	if m := s.rt.Monitor(); m != nil {
		resp["phase"] = string(m.Snapshot().Phase)
	}
	writeJSON(w, http.StatusOK, resp)
}
