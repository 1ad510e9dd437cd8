package types

type CheckInRequest struct {
	MeetingID          int64              `json:"meeting_id"`
	Latitude           *float64           `json:"latitude"`
	Longitude          *float64           `json:"longitude"`
	VerificationMethod VerificationMethod `json:"verification_method"`
	Notes              string             `json:"notes,omitempty"`
}

type Outcome string

const (
	OutcomeCheckedIn       Outcome = "checked_in"
	OutcomeOutOfRange      Outcome = "out_of_range"
	OutcomePendingApproval Outcome = "pending_approval"
)

type CheckInResponse struct {
	Outcome        Outcome           `json:"outcome"`
	Status         AttendanceStatus  `json:"status"`
	Message        string            `json:"message"`
	DistanceMeters *int64            `json:"distance_meters,omitempty"`
	AllowedRadius  *int              `json:"allowed_radius,omitempty"`
	Record         *AttendanceRecord `json:"record,omitempty"`
}
