package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/store"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

const meetingColumns = `
  meeting_id, name, date_ms, start_time_ms, end_time_ms, location_name,
  latitude, longitude, radius_meters, created_by, status, created_at_ms`

func scanMeeting(row rowScanner) (types.Meeting, error) {
	var (
		m         types.Meeting
		dateMs    int64
		startMs   int64
		endMs     int64
		createdMs int64
		status    string
	)
	if err := row.Scan(
		&m.ID, &m.Name, &dateMs, &startMs, &endMs, &m.LocationName,
		&m.Latitude, &m.Longitude, &m.RadiusMeters, &m.CreatedBy, &status, &createdMs,
	); err != nil {
		return types.Meeting{}, err
	}
	m.Date = fromMillis(dateMs)
	m.StartTime = fromMillis(startMs)
	m.EndTime = fromMillis(endMs)
	m.Status = types.MeetingStatus(status)
	m.CreatedAt = fromMillis(createdMs)
	return m, nil
}

func (s *Store) GetMeeting(ctx context.Context, id int64) (types.Meeting, error) {
	m, err := scanMeeting(s.db.QueryRowContext(ctx,
		`SELECT`+meetingColumns+` FROM meetings WHERE meeting_id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.Meeting{}, fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.Meeting{}, fmt.Errorf("GetMeeting: %w", err)
	}
	return m, nil
}

func (s *Store) ListMeetings(ctx context.Context, f store.MeetingFilter) ([]types.Meeting, error) {
	var (
		where []string
		args  []any
	)
	if f.ParticipantID != 0 {
		where = append(where, `meeting_id IN (SELECT meeting_id FROM meeting_participants WHERE user_id = ?)`)
		args = append(args, f.ParticipantID)
	}
	if !f.DateFrom.IsZero() {
		where = append(where, `date_ms >= ?`)
		args = append(args, toMillis(f.DateFrom))
	}
	if !f.DateTo.IsZero() {
		where = append(where, `date_ms < ?`)
		args = append(args, toMillis(f.DateTo))
	}
	if !f.ActiveAt.IsZero() {
		where = append(where, `start_time_ms <= ? AND end_time_ms >= ?`)
		args = append(args, toMillis(f.ActiveAt), toMillis(f.ActiveAt))
	}
	if !f.StartsAfter.IsZero() {
		where = append(where, `start_time_ms > ?`)
		args = append(args, toMillis(f.StartsAfter))
	}
	if len(f.Statuses) > 0 {
		where = append(where, `status IN (`+placeholders(len(f.Statuses))+`)`)
		for _, st := range f.Statuses {
			args = append(args, string(st))
		}
	}

	q := `SELECT` + meetingColumns + ` FROM meetings`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, ` AND `)
	}
	q += ` ORDER BY start_time_ms, meeting_id;`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("ListMeetings: %w", err)
	}
	defer rows.Close()

	out := make([]types.Meeting, 0)
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, fmt.Errorf("ListMeetings scan: %w", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListMeetings rows: %w", err)
	}
	return out, nil
}

func (s *Store) CreateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	nowMs := toMillis(s.now())

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO meetings(
  name, date_ms, start_time_ms, end_time_ms, location_name,
  latitude, longitude, radius_meters, created_by, status,
  created_at_ms, updated_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			m.Name, toMillis(m.Date), toMillis(m.StartTime), toMillis(m.EndTime), m.LocationName,
			m.Latitude, m.Longitude, m.RadiusMeters, m.CreatedBy, string(m.Status),
			toMillis(m.CreatedAt), nowMs,
		)
		if err != nil {
			return fmt.Errorf("CreateMeeting insert: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("CreateMeeting id: %w", err)
		}
		m.ID = id
		return replaceParticipants(ctx, tx, id, participants)
	})
	if err != nil {
		return types.Meeting{}, err
	}
	m.CreatedAt = fromMillis(toMillis(m.CreatedAt))
	return m, nil
}

func (s *Store) UpdateMeeting(ctx context.Context, m types.Meeting, participants []types.Participant) (types.Meeting, error) {
	nowMs := toMillis(s.now())

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE meetings
SET name          = ?,
    date_ms       = ?,
    start_time_ms = ?,
    end_time_ms   = ?,
    location_name = ?,
    latitude      = ?,
    longitude     = ?,
    radius_meters = ?,
    status        = COALESCE(NULLIF(?, ''), status),
    updated_at_ms = ?
WHERE meeting_id = ?;
`,
			m.Name, toMillis(m.Date), toMillis(m.StartTime), toMillis(m.EndTime), m.LocationName,
			m.Latitude, m.Longitude, m.RadiusMeters, string(m.Status), nowMs, m.ID,
		)
		if err != nil {
			return fmt.Errorf("UpdateMeeting: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("meeting %d: %w", m.ID, store.ErrNotFound)
		}
		if participants == nil {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_participants WHERE meeting_id = ?;`, m.ID); err != nil {
			return fmt.Errorf("UpdateMeeting clear participants: %w", err)
		}
		return replaceParticipants(ctx, tx, m.ID, participants)
	})
	if err != nil {
		return types.Meeting{}, err
	}
	return s.GetMeeting(ctx, m.ID)
}

func (s *Store) DeleteMeeting(ctx context.Context, id int64) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		// Explicit deletes so the cascade does not depend on the
		// foreign_keys pragma being set on this connection.
		if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE meeting_id = ?;`, id); err != nil {
			return fmt.Errorf("DeleteMeeting records: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM meeting_participants WHERE meeting_id = ?;`, id); err != nil {
			return fmt.Errorf("DeleteMeeting participants: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM meetings WHERE meeting_id = ?;`, id)
		if err != nil {
			return fmt.Errorf("DeleteMeeting: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
		}
		return nil
	})
}

func (s *Store) SetMeetingStatus(ctx context.Context, id int64, from, to types.MeetingStatus) error {
	return s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
UPDATE meetings SET status = ?, updated_at_ms = ? WHERE meeting_id = ? AND status = ?;
`, string(to), toMillis(s.now()), id, string(from))
		if err != nil {
			return fmt.Errorf("SetMeetingStatus: %w", err)
		}
		if n, _ := res.RowsAffected(); n > 0 {
			return nil
		}

		var cur string
		err = tx.QueryRowContext(ctx, `SELECT status FROM meetings WHERE meeting_id = ?;`, id).Scan(&cur)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("meeting %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("SetMeetingStatus read: %w", err)
		}
		return fmt.Errorf("meeting %d is %s: %w", id, cur, store.ErrStatusConflict)
	})
}

func (s *Store) IsParticipant(ctx context.Context, userID, meetingID int64) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `
SELECT 1 FROM meeting_participants WHERE meeting_id = ? AND user_id = ?;
`, meetingID, userID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("IsParticipant: %w", err)
	}
	return true, nil
}

func (s *Store) ListParticipants(ctx context.Context, meetingID int64) ([]types.Participant, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT meeting_id, user_id, required
FROM meeting_participants
WHERE meeting_id = ?
ORDER BY user_id;
`, meetingID)
	if err != nil {
		return nil, fmt.Errorf("ListParticipants: %w", err)
	}
	defer rows.Close()

	out := make([]types.Participant, 0)
	for rows.Next() {
		var (
			p        types.Participant
			required int
		)
		if err := rows.Scan(&p.MeetingID, &p.UserID, &required); err != nil {
			return nil, fmt.Errorf("ListParticipants scan: %w", err)
		}
		p.Required = required == 1
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListParticipants rows: %w", err)
	}
	return out, nil
}

func replaceParticipants(ctx context.Context, tx *sql.Tx, meetingID int64, participants []types.Participant) error {
	for _, p := range participants {
		required := 0
		if p.Required {
			required = 1
		}
		if _, err := tx.ExecContext(ctx, `
INSERT INTO meeting_participants(meeting_id, user_id, required)
VALUES (?, ?, ?)
ON CONFLICT(meeting_id, user_id) DO UPDATE SET required = excluded.required;
`, meetingID, p.UserID, required); err != nil {
			return fmt.Errorf("insert participant %d: %w", p.UserID, err)
		}
	}
	return nil
}
