// Package report renders attendance data as spreadsheets for download.
package report

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/BrandonDHaskell/prezens/server/internal/prezens/types"
)

const (
	AttendanceSheet = "Attendance"
	SummarySheet    = "Summary"
	ContentType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

var attendanceHeader = []any{
	"Record ID", "User ID", "Status", "Check-in time", "Latitude", "Longitude",
	"Method", "Approved by", "Notes", "Created at",
}

// WriteAttendance writes one meeting's records to w as an .xlsx workbook with
// an attendance sheet and a per-status summary. Times render in loc.
func WriteAttendance(w io.Writer, m types.Meeting, records []types.AttendanceRecord, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", AttendanceSheet); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if err := f.SetSheetRow(AttendanceSheet, "A1", &attendanceHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}
	if err := f.SetCellStyle(AttendanceSheet, "A1", "J1", bold); err != nil {
		return fmt.Errorf("apply header style: %w", err)
	}

	var counts types.StatusCounts
	for i, rec := range records {
		counts.Add(rec.Status, 1)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{
			rec.ID,
			rec.UserID,
			string(rec.Status),
			formatTime(rec.CheckInTime, loc),
			formatFloat(rec.CheckInLatitude),
			formatFloat(rec.CheckInLongitude),
			string(rec.VerificationMethod),
			formatID(rec.ManualApprovalBy),
			rec.Notes,
			rec.CreatedAt.In(loc).Format(time.DateTime),
		}
		if err := f.SetSheetRow(AttendanceSheet, cell, &row); err != nil {
			return fmt.Errorf("write record %d: %w", rec.ID, err)
		}
	}
	if err := f.SetColWidth(AttendanceSheet, "A", "H", 16); err != nil {
		return err
	}
	if err := f.SetColWidth(AttendanceSheet, "I", "I", 48); err != nil {
		return err
	}

	if _, err := f.NewSheet(SummarySheet); err != nil {
		return fmt.Errorf("summary sheet: %w", err)
	}
	summary := [][]any{
		{"Meeting", m.Name},
		{"Location", m.LocationName},
		{"Start", m.StartTime.In(loc).Format(time.DateTime)},
		{"End", m.EndTime.In(loc).Format(time.DateTime)},
		{"Radius (m)", m.RadiusMeters},
		{"Present", counts.Present},
		{"Late", counts.Late},
		{"Absent", counts.Absent},
		{"Pending", counts.Pending},
	}
	for i, row := range summary {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(SummarySheet, cell, &row); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

// Filename is the suggested download name for a meeting export.
func Filename(m types.Meeting) string {
	return "meeting-" + strconv.FormatInt(m.ID, 10) + "-attendance.xlsx"
}

func formatTime(t *time.Time, loc *time.Location) string {
	if t == nil {
		return ""
	}
	return t.In(loc).Format(time.DateTime)
}

func formatFloat(f *float64) string {
	if f == nil {
		return ""
	}
	return strconv.FormatFloat(*f, 'f', 6, 64)
}

func formatID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
