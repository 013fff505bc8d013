// Package collections contains data structures and constants relating to Firestore collections and their entry
// structures/keys/values, as well as structs that define what is returned to clients.
package collections

import "time"

const (
	// UsersCollection holds one profile document per Firebase Auth UID.
	UsersCollection = "users"
	// AttendanceCollection is the flat, append-only attendance log.
	AttendanceCollection = "attendance"

	// RoleAdmin can manage the roster and view everyone's attendance.
	RoleAdmin = "admin"
	// RoleEmployee can submit and view their own attendance.
	RoleEmployee = "employee"

	// Profile field keys.
	UserTypeKey             = "userType"
	NameKey                 = "name"
	EmailKey                = "email"
	PositionKey             = "position"
	DepartmentKey           = "department"
	AttendanceKey           = "attendance"
	LastAttendanceUpdateKey = "lastAttendanceUpdate"
	UpdatedAtKey            = "updatedAt"
	DeletedKey              = "deleted"

	// Log entry field keys.
	EmployeeIDKey = "employeeId"
	DateKey       = "date"

	// DateLayout is the layout of attendance date keys.
	DateLayout = "2006-01-02"
	// TimeLayout is the layout of the human readable check-in time.
	TimeLayout = "3:04:05 PM"

	// NoteLocationUnavailable is stored when no location fix could be obtained.
	NoteLocationUnavailable = "Location not available"
	// NoteAbsent is stored on records written for employees who did not check in.
	NoteAbsent = "Absent"
	// TimeAbsent is the time string of absence records.
	TimeAbsent = "-"
)

// Profile is the document stored under users/{uid}.
type Profile struct {
	UID                  string                      `firestore:"-" json:"uid"`
	Email                string                      `firestore:"email" json:"email"`
	Name                 string                      `firestore:"name" json:"name"`
	UserType             string                      `firestore:"userType" json:"userType"`
	Position             string                      `firestore:"position,omitempty" json:"position,omitempty"`
	Department           string                      `firestore:"department,omitempty" json:"department,omitempty"`
	CreatedAt            time.Time                   `firestore:"createdAt" json:"createdAt"`
	UpdatedAt            time.Time                   `firestore:"updatedAt,omitempty" json:"updatedAt,omitempty"`
	Attendance           map[string]AttendanceRecord `firestore:"attendance,omitempty" json:"attendance,omitempty"`
	LastAttendanceUpdate time.Time                   `firestore:"lastAttendanceUpdate,omitempty" json:"lastAttendanceUpdate,omitempty"`
	Deleted              bool                        `firestore:"deleted,omitempty" json:"-"`
}

// IsEmployee reports whether the profile is an active roster entry.
func (p *Profile) IsEmployee() bool {
	return p.UserType == RoleEmployee && !p.Deleted
}

// Coordinates is a latitude/longitude pair.
type Coordinates struct {
	Latitude  float64 `firestore:"latitude" json:"latitude"`
	Longitude float64 `firestore:"longitude" json:"longitude"`
}

// Location is either a resolved position (Address, Coordinates, Accuracy) or a Note explaining
// why there is none.
type Location struct {
	Address     string       `firestore:"address,omitempty" json:"address,omitempty"`
	Coordinates *Coordinates `firestore:"coordinates,omitempty" json:"coordinates,omitempty"`
	Accuracy    float64      `firestore:"accuracy,omitempty" json:"accuracy,omitempty"`
	Note        string       `firestore:"note,omitempty" json:"note,omitempty"`
}

// NoteLocation builds the fallback location.
func NoteLocation(note string) Location {
	return Location{Note: note}
}

// AttendanceRecord is one day's entry in a profile's embedded attendance map.
type AttendanceRecord struct {
	Date         string   `firestore:"date" json:"date"`
	Time         string   `firestore:"time" json:"time"`
	PresentOrNot bool     `firestore:"presentornot" json:"presentornot"`
	Location     Location `firestore:"location" json:"location"`
	Image        string   `firestore:"image,omitempty" json:"image,omitempty"`
	Timestamp    string   `firestore:"timestamp" json:"timestamp"`
}

// LogEntry is a denormalized copy of a record in the flat attendance collection.
type LogEntry struct {
	ID           string   `firestore:"-" json:"id"`
	EmployeeID   string   `firestore:"employeeId" json:"employeeId"`
	EmployeeName string   `firestore:"employeeName" json:"employeeName"`
	Date         string   `firestore:"date" json:"date"`
	Time         string   `firestore:"time" json:"time"`
	PresentOrNot bool     `firestore:"presentornot" json:"presentornot"`
	Location     Location `firestore:"location" json:"location"`
	Image        string   `firestore:"image,omitempty" json:"image,omitempty"`
	Timestamp    string   `firestore:"timestamp" json:"timestamp"`
}

// NewLogEntry copies record into a log entry for the given employee.
func NewLogEntry(uid, name string, record AttendanceRecord) LogEntry {
	return LogEntry{
		EmployeeID:   uid,
		EmployeeName: name,
		Date:         record.Date,
		Time:         record.Time,
		PresentOrNot: record.PresentOrNot,
		Location:     record.Location,
		Image:        record.Image,
		Timestamp:    record.Timestamp,
	}
}

// UserInfo is the public view of a profile returned to clients.
type UserInfo struct {
	UID        string `json:"uid"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	UserType   string `json:"userType"`
	Position   string `json:"position,omitempty"`
	Department string `json:"department,omitempty"`
}

// Info returns the public view of p.
func (p *Profile) Info() UserInfo {
	return UserInfo{
		UID:        p.UID,
		Email:      p.Email,
		Name:       p.Name,
		UserType:   p.UserType,
		Position:   p.Position,
		Department: p.Department,
	}
}
