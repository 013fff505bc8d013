// Package storage is the Firestore side of the attendance tracker: user profiles with their
// embedded attendance maps, and the flat attendance log.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"attendserver/apperr"
	"attendserver/attendance"
	log "attendserver/cloudlog"
	"attendserver/collections"
	"attendserver/config"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go"
	"github.com/sirupsen/logrus"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Storage holds the Firebase app and the Firestore collections the server reads and writes.
type Storage struct {
	app        *firebase.App
	client     *firestore.Client
	users      *firestore.CollectionRef
	attendance *firestore.CollectionRef
}

// New initializes the Firebase app and its Firestore client.
func New(ctx context.Context, cfg config.FirebaseConfig) (*Storage, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	var fbConfig *firebase.Config
	if cfg.ProjectID != "" {
		fbConfig = &firebase.Config{ProjectID: cfg.ProjectID}
	}
	app, err := firebase.NewApp(ctx, fbConfig, opts...)
	if err != nil {
		return nil, fmt.Errorf("initiate Firebase App failed: %w", err)
	}
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate Firestore client failed: %w", err)
	}
	s := NewWithClient(client)
	s.app = app
	return s, nil
}

// NewWithClient wraps an existing Firestore client. App returns nil on the result.
func NewWithClient(client *firestore.Client) *Storage {
	return &Storage{
		client:     client,
		users:      client.Collection(collections.UsersCollection),
		attendance: client.Collection(collections.AttendanceCollection),
	}
}

// App is the Firebase app the storage was created from.
func (s *Storage) App() *firebase.App {
	return s.app
}

// Close performs cleanup for closing storage connections.
func (s *Storage) Close() {
	if err := s.client.Close(); err != nil {
		log.WithError(err).Warn("Failed to close Firestore client")
	}
}

// DocExists checks for the existence of the document with ID docID within the given collection.
// If it exists, this function also returns the snapshot it read, so callers need not read again.
// It checks the error returned from docRef.Get and silences a codes.NotFound error because
// that info is reflected in the bool return.
func (s *Storage) DocExists(ctx context.Context, docID string, collection *firestore.CollectionRef) (bool, *firestore.DocumentSnapshot, error) {
	snapshot, err := collection.Doc(docID).Get(ctx)
	if err != nil && status.Code(err) == codes.NotFound {
		err = nil
	}
	exists := snapshot != nil && snapshot.Exists()
	return exists, snapshot, err
}

// GetProfile reads users/{uid}. A missing document gives apperr.ErrNotFound.
func (s *Storage) GetProfile(ctx context.Context, uid string) (*collections.Profile, error) {
	exists, snapshot, err := s.DocExists(ctx, uid, s.users)
	if err != nil {
		return nil, apperr.Store(err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: no profile for user %s", apperr.ErrNotFound, uid)
	}
	return profileFrom(snapshot)
}

func profileFrom(snapshot *firestore.DocumentSnapshot) (*collections.Profile, error) {
	profile := &collections.Profile{}
	if err := snapshot.DataTo(profile); err != nil {
		return nil, apperr.Store(err)
	}
	profile.UID = snapshot.Ref.ID
	return profile, nil
}

// SetProfile writes the whole profile document.
func (s *Storage) SetProfile(ctx context.Context, profile *collections.Profile) error {
	if profile.UID == "" {
		return apperr.Invalid("profile has no user id")
	}
	if _, err := s.users.Doc(profile.UID).Set(ctx, profile); err != nil {
		return apperr.Store(err)
	}
	return nil
}

// UpdateProfile sets the given top level fields and bumps updatedAt.
func (s *Storage) UpdateProfile(ctx context.Context, uid string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields)+1)
	for path, value := range fields {
		updates = append(updates, firestore.Update{Path: path, Value: value})
	}
	updates = append(updates, firestore.Update{Path: collections.UpdatedAtKey, Value: time.Now().UTC()})
	_, err := s.users.Doc(uid).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: no profile for user %s", apperr.ErrNotFound, uid)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

// DeleteDocument marks the document as deleted by adding a field to it indicating so.
func (s *Storage) DeleteDocument(ctx context.Context, docRef *firestore.DocumentRef) error {
	_, err := docRef.Update(ctx, []firestore.Update{{Path: collections.DeletedKey, Value: true}})
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, docRef.Path)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

// DeleteProfile soft deletes users/{uid}.
func (s *Storage) DeleteProfile(ctx context.Context, uid string) error {
	return s.DeleteDocument(ctx, s.users.Doc(uid))
}

// ProfilesByRole lists the profiles with the given userType, skipping deleted ones.
func (s *Storage) ProfilesByRole(ctx context.Context, role string) ([]*collections.Profile, error) {
	iter := s.users.
		Where(collections.UserTypeKey, "==", role).
		Documents(ctx)
	defer iter.Stop()

	profiles := []*collections.Profile{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperr.Store(err)
		}
		profile, err := profileFrom(doc)
		if err != nil {
			log.WithFields(logrus.Fields{"uid": doc.Ref.ID}).WithError(err).Warn("Skipping unreadable profile")
			continue
		}
		if profile.Deleted {
			continue
		}
		profiles = append(profiles, profile)
	}
	return profiles, nil
}

// HasRole reports whether at least one active profile has the given userType.
func (s *Storage) HasRole(ctx context.Context, role string) (bool, error) {
	profiles, err := s.ProfilesByRole(ctx, role)
	if err != nil {
		return false, err
	}
	return len(profiles) > 0, nil
}

// CommitAttendance stores record in the user's embedded map, trimmed to cutoff, and appends
// entry to the attendance log. Both writes happen in one transaction. With onlyIfMissing nothing
// is written when the user already has a record for record.Date, and the error wraps ErrExists.
func (s *Storage) CommitAttendance(ctx context.Context, uid string, record collections.AttendanceRecord, entry collections.LogEntry, cutoff string, onlyIfMissing bool) error {
	profileRef := s.users.Doc(uid)
	logRef := s.attendance.NewDoc()
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snapshot, err := tx.Get(profileRef)
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%w: no profile for user %s", apperr.ErrNotFound, uid)
		}
		if err != nil {
			return err
		}
		profile := &collections.Profile{}
		if err := snapshot.DataTo(profile); err != nil {
			return err
		}
		if _, ok := profile.Attendance[record.Date]; ok && onlyIfMissing {
			return fmt.Errorf("%w: %s already has a record for %s", apperr.ErrExists, uid, record.Date)
		}
		merged := attendance.MergeAndTrim(profile.Attendance, record, cutoff)
		err = tx.Update(profileRef, []firestore.Update{
			{Path: collections.AttendanceKey, Value: merged},
			{Path: collections.LastAttendanceUpdateKey, Value: firestore.ServerTimestamp},
		})
		if err != nil {
			return err
		}
		return tx.Create(logRef, entry)
	})
	if errors.Is(err, apperr.ErrExists) {
		return err
	}
	if err != nil {
		log.WithFields(logrus.Fields{"uid": uid, "date": record.Date}).WithError(err).Error("Attendance commit failed")
		return apperr.Store(err)
	}
	return nil
}

// LogEntriesFor gives the user's log entries for date.
func (s *Storage) LogEntriesFor(ctx context.Context, uid, date string) ([]*collections.LogEntry, error) {
	return s.logEntries(ctx, s.attendance.
		Where(collections.EmployeeIDKey, "==", uid).
		Where(collections.DateKey, "==", date))
}

// LogEntriesOn gives every log entry for date.
func (s *Storage) LogEntriesOn(ctx context.Context, date string) ([]*collections.LogEntry, error) {
	return s.logEntries(ctx, s.attendance.Where(collections.DateKey, "==", date))
}

// LogEntriesBetween gives the log entries dated from..to inclusive, oldest first.
func (s *Storage) LogEntriesBetween(ctx context.Context, from, to string) ([]*collections.LogEntry, error) {
	return s.logEntries(ctx, s.attendance.
		Where(collections.DateKey, ">=", from).
		Where(collections.DateKey, "<=", to).
		OrderBy(collections.DateKey, firestore.Asc))
}

func (s *Storage) logEntries(ctx context.Context, query firestore.Query) ([]*collections.LogEntry, error) {
	iter := query.Documents(ctx)
	defer iter.Stop()

	entries := []*collections.LogEntry{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			log.WithError(err).Error("Query attendance log failed")
			return nil, apperr.Store(err)
		}
		entry := &collections.LogEntry{}
		if err := doc.DataTo(entry); err != nil {
			log.Printf("Data conversion error for %s: %v", doc.Ref.ID, err)
			continue
		}
		entry.ID = doc.Ref.ID
		entries = append(entries, entry)
	}
	return entries, nil
}
