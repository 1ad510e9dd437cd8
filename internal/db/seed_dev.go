package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type SeedDevOptions struct {
	// Participants are enrolled in the demo meeting. Defaults to users 1 and 2.
	Participants []int64
	// Location of the demo meeting. Defaults to (0,0) with a 100m radius.
	Latitude     float64
	Longitude    float64
	RadiusMeters int
	Now          time.Time
}

// SeedDev creates a "Daily Standup" meeting for today if none exists yet.
// It runs on every dev start, so it must stay idempotent.
func SeedDev(ctx context.Context, db *sql.DB, opt SeedDevOptions) error {
	if opt.Now.IsZero() {
		opt.Now = time.Now()
	}
	if len(opt.Participants) == 0 {
		opt.Participants = []int64{1, 2}
	}
	if opt.RadiusMeters <= 0 {
		opt.RadiusMeters = 100
	}

	y, m, d := opt.Now.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, opt.Now.Location())
	start := day.Add(9 * time.Hour)
	end := start.Add(30 * time.Minute)
	nowMs := opt.Now.UTC().UnixMilli()

	var exists int
	err := db.QueryRowContext(ctx,
		`SELECT 1 FROM meetings WHERE name = 'Daily Standup' AND date_ms = ?;`,
		day.UTC().UnixMilli(),
	).Scan(&exists)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return fmt.Errorf("seed lookup: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("seed begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `
INSERT INTO meetings(
  name, date_ms, start_time_ms, end_time_ms, location_name,
  latitude, longitude, radius_meters, created_by, status,
  created_at_ms, updated_at_ms
) VALUES ('Daily Standup', ?, ?, ?, 'Dev Office', ?, ?, ?, 1, 'upcoming', ?, ?);`,
		day.UTC().UnixMilli(), start.UTC().UnixMilli(), end.UTC().UnixMilli(),
		opt.Latitude, opt.Longitude, opt.RadiusMeters, nowMs, nowMs,
	)
	if err != nil {
		return fmt.Errorf("seed meeting: %w", err)
	}
	meetingID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("seed meeting id: %w", err)
	}

	for _, uid := range opt.Participants {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO meeting_participants(meeting_id, user_id, required) VALUES (?, ?, 1);`,
			meetingID, uid,
		); err != nil {
			return fmt.Errorf("seed participant %d: %w", uid, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("seed commit: %w", err)
	}
	return nil
}
