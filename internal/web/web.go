// Package web exposes the HTTP surface: health, metrics, the content
// CRUD API, and the secret-guarded reschedule trigger.
package web

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"scoopcms/internal/content"
	appLog "scoopcms/internal/log"
	"scoopcms/internal/metrics"
	"scoopcms/internal/model"
	"scoopcms/internal/recur"
	"scoopcms/internal/scheduler"
	"scoopcms/internal/store"
)

// Server routes HTTP requests to the content service and the batch job.
type Server struct {
	content          *content.Service
	job              *scheduler.Job
	rescheduleSecret string
	router           chi.Router
}

// NewServer constructs a Server. rescheduleSecret guards the batch
// trigger; an empty secret disables the endpoint (500 before any work).
func NewServer(svc *content.Service, job *scheduler.Job, rescheduleSecret string) *Server {
	s := &Server{
		content:          svc,
		job:              job,
		rescheduleSecret: rescheduleSecret,
		router:           chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(countRequests)

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/events/reschedule", s.handleReschedule)
		r.Get("/events/list-dates", s.handleListDates)

		r.Route("/content", func(r chi.Router) {
			r.Get("/events", s.handleListEvents)
			r.Post("/events", s.handleCreateEvent)
			r.Get("/events/{slug}", s.handleGetEvent)
			r.Put("/events/{slug}", s.handleUpdateEvent)
			r.Delete("/events/{slug}", s.handleDeleteEvent)

			r.Get("/announcements", s.handleAnnouncements)

			r.Get("/settings", s.handleGetSettings)
			r.Put("/settings", s.handleSaveSettings)

			r.Get("/parties", s.handleGetParties)
			r.Put("/parties", s.handleSaveParties)
		})
	})
}

// countRequests records per-route request counters, labeled with the
// chi route pattern rather than the raw path.
func countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}
		metrics.HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(ww.Status())).Inc()
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// ─── Reschedule trigger ───────────────────────────────────────────────────────

// rescheduleResponse is the JSON summary of a batch run.
type rescheduleResponse struct {
	Status        string   `json:"status"`
	Message       string   `json:"message"`
	UpdatedEvents []string `json:"updatedEvents"`
	Errors        []string `json:"errors,omitempty"`
}

// handleReschedule runs the batch job. Guarded by a shared-secret
// bearer credential; a missing or wrong credential fails with 401
// before any document is touched. Any per-document failure turns the
// response into a 500, but the summary still reports the partial
// progress that was made.
func (s *Server) handleReschedule(w http.ResponseWriter, r *http.Request) {
	if s.rescheduleSecret == "" {
		writeError(w, http.StatusInternalServerError, "reschedule secret is not configured")
		return
	}

	auth := r.Header.Get("Authorization")
	if !secureCompare(auth, "Bearer "+s.rescheduleSecret) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	result, err := s.job.Run(r.Context())
	if err != nil {
		appLog.Error("reschedule run failed", err)
		writeJSON(w, http.StatusInternalServerError, rescheduleResponse{
			Status:        "error",
			Message:       err.Error(),
			UpdatedEvents: []string{},
		})
		return
	}

	if len(result.Errors) > 0 {
		msgs := make([]string, 0, len(result.Errors))
		for _, e := range result.Errors {
			msgs = append(msgs, e.String())
		}
		writeJSON(w, http.StatusInternalServerError, rescheduleResponse{
			Status:        "error",
			Message:       "Some events failed to update.",
			UpdatedEvents: result.Updated,
			Errors:        msgs,
		})
		return
	}

	message := "No events needed rescheduling."
	if len(result.Updated) > 0 {
		message = "Events rescheduled successfully."
	}
	writeJSON(w, http.StatusOK, rescheduleResponse{
		Status:        "success",
		Message:       message,
		UpdatedEvents: result.Updated,
	})
}

func (s *Server) handleListDates(w http.ResponseWriter, r *http.Request) {
	listing, err := s.content.ListDates(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, listing)
}

// ─── Event CRUD ───────────────────────────────────────────────────────────────

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := s.content.Events(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Title == "" {
		writeError(w, http.StatusBadRequest, "missing required field: title")
		return
	}

	slug, err := s.content.CreateEvent(r.Context(), req.Event)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, store.ErrConflict) {
			status = http.StatusConflict
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "slug": slug})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	ev, err := s.content.GetEvent(r.Context(), slug)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "event not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req updateEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SHA == "" {
		writeError(w, http.StatusBadRequest, "missing required field: sha")
		return
	}

	if err := s.content.UpdateEvent(r.Context(), slug, req.JSON, req.SHA); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event updated successfully"})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	var req revisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.SHA == "" {
		writeError(w, http.StatusBadRequest, "missing required field: sha")
		return
	}

	if err := s.content.DeleteEvent(r.Context(), slug, req.SHA); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Event deleted successfully"})
}

// ─── Announcements / settings ─────────────────────────────────────────────────

func (s *Server) handleAnnouncements(w http.ResponseWriter, r *http.Request) {
	full := parseBool(r.URL.Query().Get("full"))

	anns, err := s.content.Announcements(r.Context(), full)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, anns)
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	raw, revision, err := s.content.Settings(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "settings not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, singleDocument{JSON: raw, SHA: revision})
}

func (s *Server) handleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var req saveDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.JSON) == 0 {
		writeError(w, http.StatusBadRequest, "missing required field: json")
		return
	}

	rev, err := s.content.SaveSettings(r.Context(), req.JSON, req.Message)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sha": rev})
}

func (s *Server) handleGetParties(w http.ResponseWriter, r *http.Request) {
	raw, revision, err := s.content.PartyInfo(r.Context())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "party info not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, singleDocument{JSON: raw, SHA: revision})
}

func (s *Server) handleSaveParties(w http.ResponseWriter, r *http.Request) {
	var req saveDocumentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if len(req.JSON) == 0 {
		writeError(w, http.StatusBadRequest, "missing required field: json")
		return
	}

	rev, err := s.content.SavePartyInfo(r.Context(), req.JSON, req.Message)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "sha": rev})
}

// ─── Request/response shapes ──────────────────────────────────────────────────

type createEventRequest struct {
	model.Event
}

type updateEventRequest struct {
	JSON model.Event `json:"json"`
	SHA  string      `json:"sha"`
}

type revisionRequest struct {
	SHA string `json:"sha"`
}

type singleDocument struct {
	JSON json.RawMessage `json:"json"`
	SHA  string          `json:"sha"`
}

type saveDocumentRequest struct {
	JSON    json.RawMessage `json:"json"`
	Message string          `json:"message,omitempty"`
}

// ─── Helpers ──────────────────────────────────────────────────────────────────

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	return dec.Decode(dst)
}

func parseBool(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// writeStoreError maps service errors onto HTTP statuses: conflicts to
// 409, missing documents to 404, rule configuration problems to 400.
func writeStoreError(w http.ResponseWriter, err error) {
	var ruleErr *recur.RuleError
	switch {
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &ruleErr):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
