package attendance

import (
	"context"
	"errors"
	"time"

	"attendserver/apperr"
	"attendserver/attendauth"
	"attendserver/capture"
	log "attendserver/cloudlog"
	"attendserver/collections"

	"github.com/sirupsen/logrus"
)

// EventMarked is the type of the event sent for every committed record.
const EventMarked = "attendance.marked"

// Event describes a committed attendance record to listeners outside the request.
type Event struct {
	Type         string `json:"type"`
	EmployeeID   string `json:"employeeId"`
	EmployeeName string `json:"employeeName"`
	Date         string `json:"date"`
	Time         string `json:"time"`
	PresentOrNot bool   `json:"presentornot"`
	Address      string `json:"address,omitempty"`
	Timestamp    string `json:"timestamp"`
}

// Type definitions mostly to facilitate testing; can drop in a faked struct without relying on
// the underlying Firestore and Firebase dependencies.
type datastore interface {
	GetProfile(ctx context.Context, uid string) (*collections.Profile, error)
	ProfilesByRole(ctx context.Context, role string) ([]*collections.Profile, error)
	CommitAttendance(ctx context.Context, uid string, record collections.AttendanceRecord, entry collections.LogEntry, cutoff string, onlyIfMissing bool) error
	LogEntriesFor(ctx context.Context, uid, date string) ([]*collections.LogEntry, error)
	LogEntriesOn(ctx context.Context, date string) ([]*collections.LogEntry, error)
	LogEntriesBetween(ctx context.Context, from, to string) ([]*collections.LogEntry, error)
}

// PasswordVerifier re-authenticates a signed in user.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, sess *attendauth.Session, password string) error
}

// Locator turns a device location report into a stored Location. It never fails.
type Locator interface {
	Resolve(ctx context.Context, report LocationReport) collections.Location
}

// PhotoNormalizer validates and re-encodes a photo data URL.
type PhotoNormalizer interface {
	Normalize(dataURL string) (string, error)
}

// Notifier is told about every committed record.
type Notifier interface {
	Notify(ctx context.Context, event Event)
}

// LocationReport is what the browser's geolocation call produced. Error is set when the device
// denied access, timed out or has no fix.
type LocationReport struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Accuracy  float64  `json:"accuracy,omitempty"`
	Error     string   `json:"error,omitempty"`
}

// HasFix reports whether the report carries coordinates.
func (r LocationReport) HasFix() bool {
	return r.Error == "" && r.Latitude != nil && r.Longitude != nil
}

// Options are the attendance rules the Service applies.
type Options struct {
	Location      *time.Location
	RetentionDays int
}

// Service runs the capture flows and answers attendance queries.
type Service struct {
	db        datastore
	verifier  PasswordVerifier
	locator   Locator
	photos    PhotoNormalizer
	flows     *capture.Registry
	notifiers []Notifier

	loc           *time.Location
	retentionDays int
	now           func() time.Time
}

// NewService wires the attendance service.
func NewService(db datastore, verifier PasswordVerifier, locator Locator, photos PhotoNormalizer, flows *capture.Registry, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.RetentionDays <= 0 {
		opts.RetentionDays = RetentionDays
	}
	return &Service{
		db:            db,
		verifier:      verifier,
		locator:       locator,
		photos:        photos,
		flows:         flows,
		loc:           opts.Location,
		retentionDays: opts.RetentionDays,
		now:           time.Now,
	}
}

// SetClock replaces the clock used for date keys and timestamps.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// AddNotifier registers a listener for committed records.
func (s *Service) AddNotifier(n Notifier) {
	s.notifiers = append(s.notifiers, n)
}

// Today is the current date key.
func (s *Service) Today() string {
	return DateKey(s.now(), s.loc)
}

// Flow returns the user's capture flow snapshot.
func (s *Service) Flow(uid string) capture.Snapshot {
	return s.flows.Get(uid).Snapshot()
}

// Discard forgets the user's capture flow, e.g. on sign out.
func (s *Service) Discard(uid string) {
	s.flows.Drop(uid)
}

// Start begins a capture. Location is resolved before the flow leaves Idle; a camera denial
// skips the lookup.
func (s *Service) Start(ctx context.Context, sess *attendauth.Session, mode capture.Mode, cameraGranted bool, report LocationReport) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	var location collections.Location
	if mode != capture.ModeCamera || cameraGranted {
		location = s.locator.Resolve(ctx, report)
	}
	err := flow.Start(mode, cameraGranted, location)
	return flow.Snapshot(), err
}

// Capture stores a frame from the live camera.
func (s *Service) Capture(sess *attendauth.Session, dataURL string) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	image, err := s.photos.Normalize(dataURL)
	if err != nil {
		return flow.Snapshot(), err
	}
	err = flow.Capture(image)
	return flow.Snapshot(), err
}

// Upload stores a photo chosen from the device.
func (s *Service) Upload(sess *attendauth.Session, dataURL string) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	image, err := s.photos.Normalize(dataURL)
	if err != nil {
		return flow.Snapshot(), err
	}
	err = flow.Upload(image)
	return flow.Snapshot(), err
}

// Retake discards the previewed photo.
func (s *Service) Retake(sess *attendauth.Session) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	err := flow.Retake()
	return flow.Snapshot(), err
}

// Cancel abandons the capture.
func (s *Service) Cancel(sess *attendauth.Session) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	err := flow.Cancel()
	return flow.Snapshot(), err
}

// Submit confirms the password and stores the previewed photo as today's record. Nothing is
// written unless the password is confirmed; on any failure the flow returns to Preview.
func (s *Service) Submit(ctx context.Context, sess *attendauth.Session, password string) (capture.Snapshot, error) {
	flow := s.flows.Get(sess.UID)
	image, location, err := flow.BeginVerify(password)
	if err != nil {
		return flow.Snapshot(), err
	}

	fields := logrus.Fields{"uid": sess.UID}
	record, name, err := s.submit(ctx, sess, image, location, password)
	if err != nil {
		log.WithFields(fields).WithError(err).Warn("Attendance submission failed")
		flow.Fail(err)
		return flow.Snapshot(), err
	}
	flow.Succeed(record)
	fields["date"] = record.Date
	log.WithFields(fields).Info("Attendance marked")
	s.notify(ctx, sess.UID, name, record)
	return flow.Snapshot(), nil
}

func (s *Service) submit(ctx context.Context, sess *attendauth.Session, image string, location collections.Location, password string) (collections.AttendanceRecord, string, error) {
	if err := s.verifier.VerifyPassword(ctx, sess, password); err != nil {
		return collections.AttendanceRecord{}, "", err
	}
	profile, err := s.db.GetProfile(ctx, sess.UID)
	if err != nil {
		return collections.AttendanceRecord{}, "", apperr.Store(err)
	}
	now := s.now()
	record := collections.AttendanceRecord{
		Date:         DateKey(now, s.loc),
		Time:         now.In(s.loc).Format(collections.TimeLayout),
		PresentOrNot: true,
		Location:     location,
		Image:        image,
		Timestamp:    now.UTC().Format(time.RFC3339),
	}
	if record.Location == (collections.Location{}) {
		record.Location = collections.NoteLocation(collections.NoteLocationUnavailable)
	}
	if err := s.commit(ctx, profile, record, false); err != nil {
		return collections.AttendanceRecord{}, "", err
	}
	return record, profile.Name, nil
}

// commit writes record for profile. With onlyIfMissing an existing record for the same date is
// left in place and ErrExists is returned.
func (s *Service) commit(ctx context.Context, profile *collections.Profile, record collections.AttendanceRecord, onlyIfMissing bool) error {
	cutoff, err := Cutoff(s.Today(), s.retentionDays)
	if err != nil {
		return err
	}
	entry := collections.NewLogEntry(profile.UID, profile.Name, record)
	return apperr.Store(s.db.CommitAttendance(ctx, profile.UID, record, entry, cutoff, onlyIfMissing))
}

func (s *Service) notify(ctx context.Context, uid, name string, record collections.AttendanceRecord) {
	event := Event{
		Type:         EventMarked,
		EmployeeID:   uid,
		EmployeeName: name,
		Date:         record.Date,
		Time:         record.Time,
		PresentOrNot: record.PresentOrNot,
		Address:      record.Location.Address,
		Timestamp:    record.Timestamp,
	}
	for _, n := range s.notifiers {
		n.Notify(ctx, event)
	}
}

// TodayStatus tells an employee whether they have checked in today. An absence record does not
// count as a check-in, though it is still given as Entry when there is nothing else.
type TodayStatus struct {
	Date   string                `json:"date"`
	Marked bool                  `json:"marked"`
	Entry  *collections.LogEntry `json:"entry,omitempty"`
	Flow   capture.Snapshot      `json:"flow"`
}

// TodayFor looks up the user's log entries for today.
func (s *Service) TodayFor(ctx context.Context, uid string) (TodayStatus, error) {
	status := TodayStatus{Date: s.Today(), Flow: s.Flow(uid)}
	entries, err := s.db.LogEntriesFor(ctx, uid, status.Date)
	if err != nil {
		return status, apperr.Store(err)
	}
	var latest, latestPresent *collections.LogEntry
	for _, entry := range entries {
		// Timestamps are RFC 3339 in UTC, so they order as strings.
		if latest == nil || entry.Timestamp > latest.Timestamp {
			latest = entry
		}
		if entry.PresentOrNot && (latestPresent == nil || entry.Timestamp > latestPresent.Timestamp) {
			latestPresent = entry
		}
	}
	status.Marked = latestPresent != nil
	status.Entry = latest
	if latestPresent != nil {
		status.Entry = latestPresent
	}
	return status, nil
}

func (s *Service) dateOrToday(date string) (string, error) {
	if date == "" {
		return s.Today(), nil
	}
	if !ValidDate(date) {
		return "", apperr.Invalid("date %q is not YYYY-MM-DD", date)
	}
	return date, nil
}

// Dashboard summarizes the roster's presence on date (today when empty).
func (s *Service) Dashboard(ctx context.Context, date string) (DaySummary, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return DaySummary{}, err
	}
	profiles, err := s.db.ProfilesByRole(ctx, collections.RoleEmployee)
	if err != nil {
		return DaySummary{}, apperr.Store(err)
	}
	return Summarize(profiles, date), nil
}

// EmployeeReport is an employee's profile, history and stats.
type EmployeeReport struct {
	Employee collections.UserInfo           `json:"employee"`
	History  []collections.AttendanceRecord `json:"history"`
	Stats    Stats                          `json:"stats"`
}

// EmployeeHistory builds the report for uid.
func (s *Service) EmployeeHistory(ctx context.Context, uid string) (EmployeeReport, error) {
	profile, err := s.db.GetProfile(ctx, uid)
	if err != nil {
		return EmployeeReport{}, apperr.Store(err)
	}
	history := History(profile)
	return EmployeeReport{
		Employee: profile.Info(),
		History:  history,
		Stats:    ComputeStats(history),
	}, nil
}

// LogForDate gives the flat log entries for date (today when empty).
func (s *Service) LogForDate(ctx context.Context, date string) ([]*collections.LogEntry, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return nil, err
	}
	entries, err := s.db.LogEntriesOn(ctx, date)
	return entries, apperr.Store(err)
}

// LogBetween gives the flat log entries dated from..to inclusive.
func (s *Service) LogBetween(ctx context.Context, from, to string) ([]*collections.LogEntry, error) {
	if !ValidDate(from) || !ValidDate(to) {
		return nil, apperr.Invalid("from and to must be YYYY-MM-DD")
	}
	if from > to {
		return nil, apperr.Invalid("from %s is after to %s", from, to)
	}
	entries, err := s.db.LogEntriesBetween(ctx, from, to)
	return entries, apperr.Store(err)
}

// Roster lists the active employees with their embedded records.
func (s *Service) Roster(ctx context.Context) ([]*collections.Profile, error) {
	profiles, err := s.db.ProfilesByRole(ctx, collections.RoleEmployee)
	return profiles, apperr.Store(err)
}

// MarkAbsent writes an absence record for every employee without a record on date and returns
// how many were marked. Dates outside the retention window are rejected.
func (s *Service) MarkAbsent(ctx context.Context, date string) (int, error) {
	date, err := s.dateOrToday(date)
	if err != nil {
		return 0, err
	}
	today := s.Today()
	cutoff, err := Cutoff(today, s.retentionDays)
	if err != nil {
		return 0, err
	}
	if date < cutoff || date > today {
		return 0, apperr.Invalid("date %s is outside %s..%s", date, cutoff, today)
	}
	profiles, err := s.db.ProfilesByRole(ctx, collections.RoleEmployee)
	if err != nil {
		return 0, apperr.Store(err)
	}

	now := s.now()
	marked := 0
	for _, profile := range profiles {
		if _, ok := profile.Attendance[date]; ok {
			continue
		}
		record := collections.AttendanceRecord{
			Date:         date,
			Time:         collections.TimeAbsent,
			PresentOrNot: false,
			Location:     collections.NoteLocation(collections.NoteAbsent),
			Timestamp:    now.UTC().Format(time.RFC3339),
		}
		// The roster read is not part of the transaction, so a check-in may land in between.
		if err := s.commit(ctx, profile, record, true); err != nil {
			if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrExists) {
				continue
			}
			log.WithFields(logrus.Fields{"uid": profile.UID, "date": date}).WithError(err).Error("Failed to mark absent")
			return marked, err
		}
		marked++
		s.notify(ctx, profile.UID, profile.Name, record)
	}
	log.WithFields(logrus.Fields{"date": date, "marked": marked}).Info("Marked absent employees")
	return marked, nil
}
