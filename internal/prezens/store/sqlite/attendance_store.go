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

const recordColumns = `
  record_id, meeting_id, user_id, status, check_in_time_ms,
  check_in_latitude, check_in_longitude, verification_method,
  manual_approval_by, notes, created_at_ms`

func scanRecord(row rowScanner) (types.AttendanceRecord, error) {
	var (
		r         types.AttendanceRecord
		status    string
		method    string
		checkInMs sql.NullInt64
		lat       sql.NullFloat64
		lon       sql.NullFloat64
		approver  sql.NullInt64
		createdMs int64
	)
	if err := row.Scan(
		&r.ID, &r.MeetingID, &r.UserID, &status, &checkInMs,
		&lat, &lon, &method,
		&approver, &r.Notes, &createdMs,
	); err != nil {
		return types.AttendanceRecord{}, err
	}
	r.Status = types.AttendanceStatus(status)
	r.VerificationMethod = types.VerificationMethod(method)
	if checkInMs.Valid {
		t := fromMillis(checkInMs.Int64)
		r.CheckInTime = &t
	}
	if lat.Valid {
		r.CheckInLatitude = &lat.Float64
	}
	if lon.Valid {
		r.CheckInLongitude = &lon.Float64
	}
	if approver.Valid {
		r.ManualApprovalBy = &approver.Int64
	}
	r.CreatedAt = fromMillis(createdMs)
	return r, nil
}

func (s *Store) GetLockedRecord(ctx context.Context, meetingID, userID int64) (types.AttendanceRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, `
SELECT`+recordColumns+`
FROM attendance_records
WHERE meeting_id = ? AND user_id = ? AND status IN ('present', 'late')
LIMIT 1;
`, meetingID, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return types.AttendanceRecord{}, fmt.Errorf("locked record %d/%d: %w", meetingID, userID, store.ErrNotFound)
	}
	if err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("GetLockedRecord: %w", err)
	}
	return r, nil
}

// InsertRecord returns the row as written without reading it back.
func (s *Store) InsertRecord(ctx context.Context, rec types.AttendanceRecord) (types.AttendanceRecord, error) {
	rec.CreatedAt = fromMillis(toMillis(s.now()))
	if rec.CheckInTime != nil {
		at := fromMillis(toMillis(*rec.CheckInTime))
		rec.CheckInTime = &at
	}

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
INSERT INTO attendance_records(
  meeting_id, user_id, status, check_in_time_ms,
  check_in_latitude, check_in_longitude, verification_method,
  manual_approval_by, notes, created_at_ms
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);
`,
			rec.MeetingID, rec.UserID, string(rec.Status), nullMillis(rec.CheckInTime),
			nullFloat(rec.CheckInLatitude), nullFloat(rec.CheckInLongitude), string(rec.VerificationMethod),
			nullInt(rec.ManualApprovalBy), rec.Notes, toMillis(rec.CreatedAt),
		)
		if isUniqueViolation(err) {
			return store.ErrLockedRecordExists
		}
		if err != nil {
			return fmt.Errorf("InsertRecord: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("InsertRecord id: %w", err)
		}
		rec.ID = id
		return nil
	})
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	return rec, nil
}

func (s *Store) GetRecordByID(ctx context.Context, id int64) (types.AttendanceRecord, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx,
		`SELECT`+recordColumns+` FROM attendance_records WHERE record_id = ?;`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return types.AttendanceRecord{}, fmt.Errorf("record %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return types.AttendanceRecord{}, fmt.Errorf("GetRecordByID: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRecordStatus(ctx context.Context, id int64, from, to types.AttendanceStatus, actorID int64, note string) (types.AttendanceRecord, error) {
	var out types.AttendanceRecord

	err := s.writer.Do(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cur, err := scanRecord(tx.QueryRowContext(ctx,
			`SELECT`+recordColumns+` FROM attendance_records WHERE record_id = ?;`, id))
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("record %d: %w", id, store.ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("UpdateRecordStatus read: %w", err)
		}
		if cur.Status != from {
			return store.ErrStatusConflict
		}

		notes := store.AppendNote(cur.Notes, note)
		res, err := tx.ExecContext(ctx, `
UPDATE attendance_records
SET status = ?, manual_approval_by = ?, notes = ?
WHERE record_id = ? AND status = ?;
`, string(to), actorID, notes, id, string(from))
		if isUniqueViolation(err) {
			return store.ErrLockedRecordExists
		}
		if err != nil {
			return fmt.Errorf("UpdateRecordStatus: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return store.ErrStatusConflict
		}

		cur.Status = to
		approver := actorID
		cur.ManualApprovalBy = &approver
		cur.Notes = notes
		out = cur
		return nil
	})
	if err != nil {
		return types.AttendanceRecord{}, err
	}
	return out, nil
}

func (s *Store) ListRecords(ctx context.Context, f store.RecordFilter) ([]types.AttendanceRecord, error) {
	out := make([]types.AttendanceRecord, 0)
	if f.MeetingIDs != nil && len(f.MeetingIDs) == 0 {
		return out, nil
	}

	where, args := recordWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT`+recordColumns+` FROM attendance_records`+where+` ORDER BY created_at_ms DESC, record_id DESC;`,
		args...)
	if err != nil {
		return nil, fmt.Errorf("ListRecords: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ListRecords scan: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListRecords rows: %w", err)
	}
	return out, nil
}

func (s *Store) CountRecordsByStatus(ctx context.Context, f store.RecordFilter) (types.StatusCounts, error) {
	var c types.StatusCounts
	if f.MeetingIDs != nil && len(f.MeetingIDs) == 0 {
		return c, nil
	}

	where, args := recordWhere(f)
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM attendance_records`+where+` GROUP BY status;`, args...)
	if err != nil {
		return c, fmt.Errorf("CountRecordsByStatus: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			n      int64
		)
		if err := rows.Scan(&status, &n); err != nil {
			return c, fmt.Errorf("CountRecordsByStatus scan: %w", err)
		}
		c.Add(types.AttendanceStatus(status), n)
	}
	if err := rows.Err(); err != nil {
		return c, fmt.Errorf("CountRecordsByStatus rows: %w", err)
	}
	return c, nil
}

func recordWhere(f store.RecordFilter) (string, []any) {
	var (
		where []string
		args  []any
	)
	if len(f.MeetingIDs) > 0 {
		where = append(where, `meeting_id IN (`+placeholders(len(f.MeetingIDs))+`)`)
		for _, id := range f.MeetingIDs {
			args = append(args, id)
		}
	}
	if f.UserID != 0 {
		where = append(where, `user_id = ?`)
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		where = append(where, `status = ?`)
		args = append(args, string(f.Status))
	}
	if len(where) == 0 {
		return "", nil
	}
	return ` WHERE ` + strings.Join(where, ` AND `), args
}
