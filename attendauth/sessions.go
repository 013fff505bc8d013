package attendauth

import (
	"context"
	"errors"
	"net/mail"
	"strings"
	"time"

	"attendserver/apperr"
	log "attendserver/cloudlog"
	"attendserver/collections"

	"github.com/sirupsen/logrus"
)

// MinPasswordLength is the shortest password the account provider accepts.
const MinPasswordLength = 6

type profileStore interface {
	GetProfile(ctx context.Context, uid string) (*collections.Profile, error)
	SetProfile(ctx context.Context, profile *collections.Profile) error
}

// Sessions turns credentials into session cookies and session cookies back into a Session.
type Sessions struct {
	identity Identity
	store    profileStore
	ttl      time.Duration
	now      func() time.Time
}

// NewSessions creates the session manager. Cookies minted by it live for ttl.
func NewSessions(identity Identity, store profileStore, ttl time.Duration) *Sessions {
	return &Sessions{
		identity: identity,
		store:    store,
		ttl:      ttl,
		now:      time.Now,
	}
}

// TTL is the lifetime of minted session cookies.
func (s *Sessions) TTL() time.Duration {
	return s.ttl
}

// SignupInput is what a new account is created from.
type SignupInput struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	Name       string `json:"name"`
	Role       string `json:"userType"`
	Position   string `json:"position,omitempty"`
	Department string `json:"department,omitempty"`
}

// ValidateCredentials checks an email/password pair before it reaches the account provider.
func ValidateCredentials(email, password string) error {
	if _, err := mail.ParseAddress(email); err != nil || !strings.Contains(email, "@") {
		return apperr.Auth("Invalid email")
	}
	if len(password) < MinPasswordLength {
		return apperr.Auth("Password should be at least 6 characters")
	}
	return nil
}

// Register creates the account and then its profile. When the profile write fails the account
// is deleted again; if that also fails the account is left without a profile.
func (s *Sessions) Register(ctx context.Context, in SignupInput) (*collections.Profile, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Name = strings.TrimSpace(in.Name)
	if in.Role != collections.RoleAdmin && in.Role != collections.RoleEmployee {
		return nil, apperr.Invalid("unknown user type %q", in.Role)
	}
	if in.Name == "" {
		return nil, apperr.Invalid("name is required")
	}
	if err := ValidateCredentials(in.Email, in.Password); err != nil {
		return nil, err
	}

	uid, err := s.identity.CreateAccount(ctx, in.Email, in.Password, in.Name)
	if err != nil {
		return nil, err
	}
	profile := &collections.Profile{
		UID:        uid,
		Email:      in.Email,
		Name:       in.Name,
		UserType:   in.Role,
		Position:   in.Position,
		Department: in.Department,
		CreatedAt:  s.now().UTC(),
	}
	if in.Role == collections.RoleEmployee {
		profile.Attendance = map[string]collections.AttendanceRecord{}
	}
	if err := s.store.SetProfile(ctx, profile); err != nil {
		fields := logrus.Fields{"uid": uid, "email": in.Email}
		log.WithFields(fields).WithError(err).Error("Profile write failed after account creation")
		if cleanupErr := s.identity.DeleteAccount(ctx, uid); cleanupErr != nil {
			log.WithFields(fields).WithError(cleanupErr).Error("Failed to remove account without profile")
		}
		return nil, apperr.Auth(err.Error())
	}
	log.WithFields(logrus.Fields{"uid": uid, "userType": in.Role}).Info("Account created")
	return profile, nil
}

// Signup registers a new account and signs it in.
func (s *Sessions) Signup(ctx context.Context, in SignupInput) (string, *Session, error) {
	if _, err := s.Register(ctx, in); err != nil {
		return "", nil, err
	}
	return s.Login(ctx, in.Email, in.Password)
}

// Login checks the credentials and mints a session cookie.
func (s *Sessions) Login(ctx context.Context, email, password string) (string, *Session, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return "", nil, apperr.Auth("Email and password are required")
	}
	uid, idToken, err := s.identity.SignIn(ctx, email, password)
	if err != nil {
		return "", nil, err
	}
	cookie, err := s.identity.MintSession(ctx, idToken, s.ttl)
	if err != nil {
		return "", nil, err
	}
	sess, err := s.sessionFor(ctx, uid, email)
	if err != nil {
		return "", nil, err
	}
	log.WithFields(logrus.Fields{"uid": uid, "userType": sess.Role}).Info("Signed in")
	return cookie, sess, nil
}

// Logout revokes every session of the user.
func (s *Sessions) Logout(ctx context.Context, sess *Session) error {
	if sess == nil {
		return nil
	}
	return s.identity.RevokeSessions(ctx, sess.UID)
}

// Resolve maps a session cookie to its Session. A user without a profile resolves with NoRole.
func (s *Sessions) Resolve(ctx context.Context, cookie string) (*Session, error) {
	if cookie == "" {
		return nil, apperr.Auth("not signed in")
	}
	uid, err := s.identity.VerifySession(ctx, cookie)
	if err != nil {
		return nil, err
	}
	return s.sessionFor(ctx, uid, "")
}

func (s *Sessions) sessionFor(ctx context.Context, uid, email string) (*Session, error) {
	sess := &Session{UID: uid, Email: email, Role: NoRole}
	profile, err := s.store.GetProfile(ctx, uid)
	if errors.Is(err, apperr.ErrNotFound) {
		log.WithFields(logrus.Fields{"uid": uid}).Warn("Signed in user has no profile")
		return sess, nil
	}
	if err != nil {
		return nil, err
	}
	if profile.Deleted {
		return sess, nil
	}
	sess.Email = profile.Email
	sess.Name = profile.Name
	sess.Role = profile.UserType
	return sess, nil
}

// VerifyPassword re-authenticates the signed in user with password.
func (s *Sessions) VerifyPassword(ctx context.Context, sess *Session, password string) error {
	if sess == nil || sess.Email == "" {
		return apperr.Auth("not signed in")
	}
	uid, _, err := s.identity.SignIn(ctx, sess.Email, password)
	if errors.Is(err, apperr.ErrAuth) {
		return apperr.Auth("Incorrect password")
	}
	if err != nil {
		return err
	}
	if uid != sess.UID {
		return apperr.Auth("Incorrect password")
	}
	return nil
}
