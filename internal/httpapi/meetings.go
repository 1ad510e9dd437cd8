package httpapi

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/report"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

type meetingAttendance struct {
	Meeting types.Meeting            `json:"meeting"`
	Records []types.AttendanceRecord `json:"records"`
}

type statsResponse struct {
	Role  types.Role        `json:"role"`
	Admin *types.AdminStats `json:"admin,omitempty"`
	User  *types.UserStats  `json:"user,omitempty"`
}

func meetingList(ms []types.Meeting) []types.Meeting {
	if ms == nil {
		return []types.Meeting{}
	}
	return ms
}

func (s *Server) handleListMeetings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.meetings.List(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, meetingList(ms))
}

func (s *Server) handleTodayMeetings(w http.ResponseWriter, r *http.Request) {
	ms, err := s.meetings.Today(r.Context(), actorFrom(r.Context()), s.dashboard.Now())
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, meetingList(ms))
}

func (s *Server) handleGetMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := s.meetings.Get(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleCreateMeeting(w http.ResponseWriter, r *http.Request) {
	var in types.MeetingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, err := s.meetings.Create(r.Context(), actorFrom(r.Context()), in)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	w.Header().Set("Location", "/v1/meetings/"+strconv.FormatInt(m.ID, 10))
	writeJSON(w, http.StatusCreated, m)
}

func (s *Server) handleUpdateMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var in types.MeetingInput
	if !decodeJSON(w, r, &in) {
		return
	}
	m, err := s.meetings.Update(r.Context(), actorFrom(r.Context()), id, in)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleDeleteMeeting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := s.meetings.Delete(r.Context(), actorFrom(r.Context()), id); err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMeetingAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, recs, err := s.meetings.Attendance(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, meetingAttendance{Meeting: m, Records: recordList(recs)})
}

func (s *Server) handleExportAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, recs, err := s.meetings.Attendance(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}

	// Buffer so a write failure can still produce a JSON error.
	var buf bytes.Buffer
	if err := report.WriteAttendance(&buf, m, recs, s.loc); err != nil {
		s.logger.ErrorContext(r.Context(), "export attendance", "meeting_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		return
	}

	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", report.Filename(m)))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	now := s.dashboard.Now()

	resp := statsResponse{Role: actor.Role}
	if actor.IsAdmin() {
		st, err := s.dashboard.AdminStats(r.Context(), now)
		if err != nil {
			s.writeServiceError(w, r, err, http.StatusConflict)
			return
		}
		resp.Admin = &st
	} else {
		st, err := s.dashboard.UserStats(r.Context(), actor.ID, now)
		if err != nil {
			s.writeServiceError(w, r, err, http.StatusConflict)
			return
		}
		resp.User = &st
	}
	writeJSON(w, http.StatusOK, resp)
}
