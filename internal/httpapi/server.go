package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Dependencies struct {
	Logger    *slog.Logger
	Addr      string
	Auth      *Authenticator
	Store     Pinger
	Location  *time.Location
	CheckIn   *service.CheckInService
	Approvals *service.ApprovalService
	Meetings  *service.MeetingService
	Dashboard *service.DashboardService
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	auth       *Authenticator
	store      Pinger
	loc        *time.Location
	checkIn    *service.CheckInService
	approvals  *service.ApprovalService
	meetings   *service.MeetingService
	dashboard  *service.DashboardService
}

func NewServer(d Dependencies) *Server {
	mux := http.NewServeMux()

	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}

	s := &Server{
		logger:    logger,
		mux:       mux,
		auth:      d.Auth,
		store:     d.Store,
		loc:       loc,
		checkIn:   d.CheckIn,
		approvals: d.Approvals,
		meetings:  d.Meetings,
		dashboard: d.Dashboard,
	}

	authed := s.auth.requireActor

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("POST /v1/attendance/check-in", authed(s.handleCheckIn))
	mux.HandleFunc("POST /v1/attendance/{id}/approve", authed(s.handleApprove))
	mux.HandleFunc("POST /v1/attendance/{id}/reject", authed(s.handleReject))
	mux.HandleFunc("GET /v1/attendance/history", authed(s.handleHistory))
	mux.HandleFunc("GET /v1/attendance/pending", authed(s.handlePending))

	mux.HandleFunc("GET /v1/meetings", authed(s.handleListMeetings))
	mux.HandleFunc("GET /v1/meetings/today", authed(s.handleTodayMeetings))
	mux.HandleFunc("GET /v1/meetings/{id}", authed(s.handleGetMeeting))
	mux.HandleFunc("POST /v1/meetings", authed(s.handleCreateMeeting))
	mux.HandleFunc("PUT /v1/meetings/{id}", authed(s.handleUpdateMeeting))
	mux.HandleFunc("DELETE /v1/meetings/{id}", authed(s.handleDeleteMeeting))
	mux.HandleFunc("GET /v1/meetings/{id}/attendance", authed(s.handleMeetingAttendance))
	mux.HandleFunc("GET /v1/meetings/{id}/attendance/export", authed(s.handleExportAttendance))

	mux.HandleFunc("GET /v1/dashboard/stats", authed(s.handleStats))

	handler := loggingMiddleware(logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// decodeJSON decodes a size-limited body into v, rejecting unknown fields.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid_id", "id must be a positive integer")
		return 0, false
	}
	return id, true
}
