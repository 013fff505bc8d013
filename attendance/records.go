// Package attendance holds the attendance rules (date keys, the rolling retention window,
// presence and statistics) and the Service that applies them against the datastore.
package attendance

import (
	"math"
	"sort"
	"time"

	"attendserver/collections"
)

const (
	// RetentionDays is how far back the embedded attendance map reaches.
	RetentionDays = 30
	// StatsWindowDays is the denominator of the attendance rate.
	StatsWindowDays = 30
)

// DateKey formats t as an attendance date key in loc.
func DateKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(collections.DateLayout)
}

// Cutoff returns the oldest date key kept by Trim for the given day.
func Cutoff(today string, retentionDays int) (string, error) {
	day, err := time.Parse(collections.DateLayout, today)
	if err != nil {
		return "", err
	}
	return day.AddDate(0, 0, -retentionDays).Format(collections.DateLayout), nil
}

// ValidDate reports whether s is a well-formed date key.
func ValidDate(s string) bool {
	_, err := time.Parse(collections.DateLayout, s)
	return err == nil
}

// Trim returns a copy of records without keys older than cutoff. Date keys compare
// lexicographically in the same order as chronologically.
func Trim(records map[string]collections.AttendanceRecord, cutoff string) map[string]collections.AttendanceRecord {
	kept := make(map[string]collections.AttendanceRecord, len(records))
	for date, record := range records {
		if date >= cutoff {
			kept[date] = record
		}
	}
	return kept
}

// Merge returns a copy of records with record stored under its date, replacing any entry
// already there.
func Merge(records map[string]collections.AttendanceRecord, record collections.AttendanceRecord) map[string]collections.AttendanceRecord {
	merged := make(map[string]collections.AttendanceRecord, len(records)+1)
	for date, existing := range records {
		merged[date] = existing
	}
	merged[record.Date] = record
	return merged
}

// MergeAndTrim is the update applied to the embedded map on every submission.
func MergeAndTrim(records map[string]collections.AttendanceRecord, record collections.AttendanceRecord, cutoff string) map[string]collections.AttendanceRecord {
	return Trim(Merge(records, record), cutoff)
}

// PresentOn reports whether the profile's embedded map marks it present on date.
func PresentOn(p *collections.Profile, date string) bool {
	record, ok := p.Attendance[date]
	return ok && record.PresentOrNot
}

// History returns the embedded records newest first.
func History(p *collections.Profile) []collections.AttendanceRecord {
	history := make([]collections.AttendanceRecord, 0, len(p.Attendance))
	for date, record := range p.Attendance {
		if record.Date == "" {
			record.Date = date
		}
		history = append(history, record)
	}
	sort.Slice(history, func(i, j int) bool {
		return history[i].Date > history[j].Date
	})
	return history
}

// Stats summarizes an employee's attendance over the stats window.
type Stats struct {
	TotalDays      int `json:"totalDays"`
	PresentDays    int `json:"presentDays"`
	AbsentDays     int `json:"absentDays"`
	AttendanceRate int `json:"attendanceRate"`
}

// ComputeStats counts present and absent records in history against a fixed 30 day window.
// Days without any record count as neither.
func ComputeStats(history []collections.AttendanceRecord) Stats {
	present, absent := 0, 0
	for _, record := range history {
		if record.PresentOrNot {
			present++
		} else {
			absent++
		}
	}
	if present > StatsWindowDays {
		present = StatsWindowDays
	}
	if absent > StatsWindowDays-present {
		absent = StatsWindowDays - present
	}
	return Stats{
		TotalDays:      StatsWindowDays,
		PresentDays:    present,
		AbsentDays:     absent,
		AttendanceRate: int(math.Round(float64(present) * 100 / StatsWindowDays)),
	}
}

// RosterRow is one employee's line on the daily dashboard.
type RosterRow struct {
	collections.UserInfo
	Present bool   `json:"present"`
	Time    string `json:"time,omitempty"`
}

// DaySummary is the admin view of a single day.
type DaySummary struct {
	Date    string      `json:"date"`
	Total   int         `json:"total"`
	Present int         `json:"present"`
	Absent  int         `json:"absent"`
	Rows    []RosterRow `json:"rows"`
}

// Summarize computes presence for date across the active employees in profiles.
func Summarize(profiles []*collections.Profile, date string) DaySummary {
	summary := DaySummary{Date: date, Rows: []RosterRow{}}
	for _, p := range profiles {
		if !p.IsEmployee() {
			continue
		}
		row := RosterRow{UserInfo: p.Info()}
		if PresentOn(p, date) {
			row.Present = true
			row.Time = p.Attendance[date].Time
			summary.Present++
		}
		summary.Rows = append(summary.Rows, row)
	}
	summary.Total = len(summary.Rows)
	summary.Absent = summary.Total - summary.Present
	sort.Slice(summary.Rows, func(i, j int) bool {
		return summary.Rows[i].Name < summary.Rows[j].Name
	})
	return summary
}
