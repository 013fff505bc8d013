// Package report builds spreadsheet exports of attendance data for admins.
package report

import (
	"bytes"
	"fmt"

	"attendserver/attendance"
	"attendserver/collections"

	"github.com/xuri/excelize/v2"
)

const (
	// ContentType is the MIME type of the generated workbooks.
	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	attendanceSheet = "Attendance"
	rosterSheet     = "Roster"
	defaultSheet    = "Sheet1"
)

var (
	attendanceHeader = []interface{}{"Date", "Time", "Employee", "Employee ID", "Status", "Location", "Latitude", "Longitude", "Accuracy (m)"}
	rosterHeader     = []interface{}{"Name", "Email", "Position", "Department", "Status", "Check-in time"}
)

func status(present bool) string {
	if present {
		return "Present"
	}
	return "Absent"
}

func place(loc collections.Location) string {
	if loc.Address != "" {
		return loc.Address
	}
	return loc.Note
}

// AttendanceWorkbook writes one row per log entry, in the order given.
func AttendanceWorkbook(entries []*collections.LogEntry) (*excelize.File, error) {
	f, err := newWorkbook(attendanceSheet, attendanceHeader)
	if err != nil {
		return nil, err
	}
	for i, e := range entries {
		row := []interface{}{e.Date, e.Time, e.EmployeeName, e.EmployeeID, status(e.PresentOrNot), place(e.Location)}
		if c := e.Location.Coordinates; c != nil {
			row = append(row, c.Latitude, c.Longitude, e.Location.Accuracy)
		}
		if err := setRow(f, attendanceSheet, i+2, row); err != nil {
			f.Close()
			return nil, err
		}
	}
	return f, nil
}

// RosterWorkbook writes the presence of every active employee on date, followed by a totals row.
func RosterWorkbook(profiles []*collections.Profile, date string) (*excelize.File, error) {
	summary := attendance.Summarize(profiles, date)
	f, err := newWorkbook(rosterSheet, rosterHeader)
	if err != nil {
		return nil, err
	}
	line := 2
	for _, r := range summary.Rows {
		row := []interface{}{r.Name, r.Email, r.Position, r.Department, status(r.Present), r.Time}
		if err := setRow(f, rosterSheet, line, row); err != nil {
			f.Close()
			return nil, err
		}
		line++
	}
	totals := []interface{}{
		fmt.Sprintf("Date: %s", summary.Date),
		fmt.Sprintf("Total: %d", summary.Total),
		fmt.Sprintf("Present: %d", summary.Present),
		fmt.Sprintf("Absent: %d", summary.Absent),
	}
	if err := setRow(f, rosterSheet, line, totals); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

// Bytes serializes the workbook and closes it.
func Bytes(f *excelize.File) ([]byte, error) {
	defer func() { _ = f.Close() }()
	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return bytes.Clone(buf.Bytes()), nil
}

func newWorkbook(sheet string, header []interface{}) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName(defaultSheet, sheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := setRow(f, sheet, 1, header); err != nil {
		f.Close()
		return nil, err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetRowStyle(sheet, 1, 1, bold); err != nil {
		f.Close()
		return nil, err
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		f.Close()
		return nil, err
	}
	if err := f.SetColWidth(sheet, "A", last, 20); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func setRow(f *excelize.File, sheet string, line int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, line)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
