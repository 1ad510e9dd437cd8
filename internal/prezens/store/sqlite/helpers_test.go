package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"github.com/BrandonDHaskell/prezens/server/internal/db"
	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
	sqlitestore "github.com/BrandonDHaskell/prezens/server/internal/prezens/store/sqlite"
)

// openTestDB returns an in-memory SQLite connection with the same PRAGMAs
// and schema as production. The connection is closed automatically when the
// test finishes.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	// Shared cache keeps the in-memory database alive across pool reconnects.
	dsn := fmt.Sprintf(
		"file:test_%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		t.Name(),
	)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		t.Fatalf("openTestDB: sql.Open: %v", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.Ping(); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: ping: %v", err)
	}

	if _, err := db.Migrate(context.Background(), conn); err != nil {
		conn.Close()
		t.Fatalf("openTestDB: migrate: %v", err)
	}

	t.Cleanup(func() { conn.Close() })
	return conn
}

// newTestWriter returns a db.Worker backed by conn. The worker is closed
// automatically when the test finishes.
func newTestWriter(t *testing.T, conn *sql.DB) *db.Worker {
	t.Helper()

	w := db.NewWorker(conn)
	t.Cleanup(func() { w.Close() })
	return w
}

func newTestStore(t *testing.T) (*sqlitestore.Store, *sql.DB) {
	t.Helper()
	conn := openTestDB(t)
	return sqlitestore.New(conn, newTestWriter(t, conn)), conn
}

var day = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func testMeeting(name string, start time.Time) types.Meeting {
	return types.Meeting{
		Name:         name,
		Date:         time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, time.UTC),
		StartTime:    start,
		EndTime:      start.Add(time.Hour),
		LocationName: "HQ",
		Latitude:     40.0,
		Longitude:    -74.0,
		RadiusMeters: 100,
		CreatedBy:    1,
		Status:       types.MeetingUpcoming,
	}
}

func seedMeeting(t *testing.T, s *sqlitestore.Store, name string, start time.Time, userIDs ...int64) types.Meeting {
	t.Helper()
	ps := make([]types.Participant, 0, len(userIDs))
	for _, uid := range userIDs {
		ps = append(ps, types.Participant{UserID: uid, Required: true})
	}
	m, err := s.CreateMeeting(context.Background(), testMeeting(name, start), ps)
	if err != nil {
		t.Fatalf("seed meeting %s: %v", name, err)
	}
	return m
}

func ptr[T any](v T) *T { return &v }
