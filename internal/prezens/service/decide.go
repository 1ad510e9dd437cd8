package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/geo"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

// Decision is the outcome of one check-in attempt. Record is the row to be
// written; after CheckInService.Submit it is the persisted row.
type Decision struct {
	Outcome types.Outcome
	Record  types.AttendanceRecord
	// Distance and Radius are set on the gps path.
	Distance *float64
	Radius   int
}

// Response renders d for the outer API.
func (d Decision) Response() types.CheckInResponse {
	rec := d.Record
	resp := types.CheckInResponse{
		Outcome: d.Outcome,
		Status:  rec.Status,
		Record:  &rec,
	}
	switch d.Outcome {
	case types.OutcomeOutOfRange:
		resp.Message = "You are too far from the meeting location"
		if d.Distance != nil {
			rounded := geo.Round(*d.Distance)
			radius := d.Radius
			resp.DistanceMeters = &rounded
			resp.AllowedRadius = &radius
		}
	case types.OutcomePendingApproval:
		resp.Message = "Manual check-in recorded. Awaiting approval."
	default:
		if rec.Status == types.StatusLate {
			resp.Message = "Checked in (Late)"
		} else {
			resp.Message = "Checked in successfully"
		}
	}
	return resp
}

// ValidateCheckIn rejects malformed requests before any store access.
// gps and biometric need coordinates; manual takes them when present.
func ValidateCheckIn(req types.CheckInRequest) error {
	if req.MeetingID <= 0 {
		return validationf("meeting_id is required")
	}
	if !req.VerificationMethod.Valid() {
		return validationf("invalid verification_method %q", req.VerificationMethod)
	}
	hasLat, hasLon := req.Latitude != nil, req.Longitude != nil
	if hasLat != hasLon {
		return validationf("latitude and longitude must be given together")
	}
	if !hasLat {
		if req.VerificationMethod != types.MethodManual {
			return validationf("coordinates are required for %s check-in", req.VerificationMethod)
		}
		return nil
	}
	if !geo.ValidCoordinate(*req.Latitude, *req.Longitude) {
		return validationf("invalid coordinates")
	}
	return nil
}

// Decide applies the check-in policy for userID. It is pure: the caller
// supplies everything it needs and persists the returned record.
//
// Preconditions fail in order: missing meeting, non-participant, existing
// locked record. Each later branch yields exactly one record to write.
func Decide(req types.CheckInRequest, userID int64, meeting *types.Meeting, isParticipant bool, existing *types.AttendanceRecord, now time.Time) (Decision, error) {
	if err := ValidateCheckIn(req); err != nil {
		return Decision{}, err
	}
	if meeting == nil {
		return Decision{}, fmt.Errorf("meeting %d: %w", req.MeetingID, ErrNotFound)
	}
	if !isParticipant {
		return Decision{}, fmt.Errorf("user %d not in meeting %d: %w", userID, meeting.ID, ErrForbidden)
	}
	if existing != nil && existing.Status.Locked() {
		return Decision{}, fmt.Errorf("record %d is %s: %w", existing.ID, existing.Status, ErrAlreadyCheckedIn)
	}

	checkIn := now
	rec := types.AttendanceRecord{
		MeetingID:          meeting.ID,
		UserID:             userID,
		CheckInTime:        &checkIn,
		VerificationMethod: req.VerificationMethod,
		Notes:              strings.TrimSpace(req.Notes),
	}
	if req.Latitude != nil {
		lat, lon := *req.Latitude, *req.Longitude
		rec.CheckInLatitude = &lat
		rec.CheckInLongitude = &lon
	}

	switch req.VerificationMethod {
	case types.MethodManual:
		rec.Status = types.StatusPending
		return Decision{Outcome: types.OutcomePendingApproval, Record: rec}, nil

	case types.MethodGPS:
		d := geo.DistanceMeters(*req.Latitude, *req.Longitude, meeting.Latitude, meeting.Longitude)
		if d > float64(meeting.RadiusMeters) {
			rec.Status = types.StatusAbsent
			rec.Notes = fmt.Sprintf("Failed check-in attempt: Distance %dm exceeds allowed radius %dm",
				geo.Round(d), meeting.RadiusMeters)
			return Decision{Outcome: types.OutcomeOutOfRange, Record: rec, Distance: &d, Radius: meeting.RadiusMeters}, nil
		}
		rec.Status = arrivalStatus(now, meeting.StartTime)
		return Decision{Outcome: types.OutcomeCheckedIn, Record: rec, Distance: &d, Radius: meeting.RadiusMeters}, nil

	default:
		// Biometric confirms identity, not location: no geofence check.
		rec.Status = arrivalStatus(now, meeting.StartTime)
		return Decision{Outcome: types.OutcomeCheckedIn, Record: rec}, nil
	}
}

func arrivalStatus(now, start time.Time) types.AttendanceStatus {
	if now.After(start) {
		return types.StatusLate
	}
	return types.StatusPresent
}
