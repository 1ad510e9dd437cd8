package httpapi

import (
	"errors"
	"net/http"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

func checkInStatus(o types.Outcome) int {
	switch o {
	case types.OutcomeCheckedIn:
		return http.StatusCreated
	case types.OutcomePendingApproval:
		return http.StatusAccepted
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) handleCheckIn(w http.ResponseWriter, r *http.Request) {
	asProto := isProtobuf(r)

	var req types.CheckInRequest
	if asProto {
		parsed, err := readCheckInProto(r)
		if errors.Is(err, errBadProtobuf) {
			writeError(w, http.StatusBadRequest, "bad_protobuf", "invalid protobuf body")
			return
		}
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_error", err.Error())
			return
		}
		req = parsed
	} else if !decodeJSON(w, r, &req) {
		return
	}

	d, err := s.checkIn.Submit(r.Context(), actorFrom(r.Context()), req)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	resp := d.Response()
	status := checkInStatus(d.Outcome)
	if asProto {
		if err := writeCheckInProto(w, status, resp); err != nil {
			s.logger.ErrorContext(r.Context(), "encode check-in response", "error", err)
			writeError(w, http.StatusInternalServerError, "internal_error", "unexpected server error")
		}
		return
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.approvals.Approve(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	rec, err := s.approvals.Reject(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	recs, err := s.checkIn.History(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, recordList(recs))
}

func (s *Server) handlePending(w http.ResponseWriter, r *http.Request) {
	recs, err := s.approvals.Pending(r.Context(), actorFrom(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, recordList(recs))
}

// recordList keeps empty results encoded as [] rather than null.
func recordList(recs []types.AttendanceRecord) []types.AttendanceRecord {
	if recs == nil {
		return []types.AttendanceRecord{}
	}
	return recs
}
