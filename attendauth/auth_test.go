package attendauth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"attendserver/apperr"
	"attendserver/collections"
)

type fakeRoles struct {
	hasAdmin bool
	err      error
}

func (fr *fakeRoles) HasRole(ctx context.Context, role string) (bool, error) {
	return fr.hasAdmin, fr.err
}

func TestVerifyAccess(t *testing.T) {
	admin := &Session{UID: "a", Role: collections.RoleAdmin}
	employee := &Session{UID: "e", Role: collections.RoleEmployee}
	noProfile := &Session{UID: "n", Role: NoRole}

	cases := []struct {
		name     string
		roles    *fakeRoles
		sess     *Session
		ops      []string
		expected bool
	}{
		{
			name:     "admin can manage the roster",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     admin,
			ops:      []string{opViewRoster, opEditRoster, opCreateAdmin},
			expected: true,
		},
		{
			name:     "admin cannot submit attendance",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     admin,
			ops:      []string{opSubmit},
			expected: false,
		},
		{
			name:     "employee can submit",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     employee,
			ops:      []string{opSubmit},
			expected: true,
		},
		{
			name:     "employee cannot see the roster",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     employee,
			ops:      []string{opViewRoster, opEditRoster, opCreateAdmin},
			expected: false,
		},
		{
			name:     "user without profile has no access",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     noProfile,
			ops:      []string{opSubmit, opViewRoster, opEditRoster, opCreateAdmin},
			expected: false,
		},
		{
			name:     "first admin can be created by anyone",
			roles:    &fakeRoles{hasAdmin: false},
			sess:     nil,
			ops:      []string{opCreateAdmin},
			expected: true,
		},
		{
			name:     "lookup failure keeps admin creation closed",
			roles:    &fakeRoles{err: errors.New("unavailable")},
			sess:     employee,
			ops:      []string{opCreateAdmin},
			expected: false,
		},
		{
			name:     "unknown op",
			roles:    &fakeRoles{hasAdmin: true},
			sess:     admin,
			ops:      []string{"DELETEEVERYTHING"},
			expected: false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			auth := &roleAuthenticator{roles: tc.roles}
			for _, op := range tc.ops {
				if got := auth.verifyAccess(context.Background(), tc.sess, op); got != tc.expected {
					t.Errorf("verifyAccess(%s) = %t, want %t", op, got, tc.expected)
				}
			}
		})
	}
}

// fakeIdentity keeps accounts in memory.
type fakeIdentity struct {
	mu       sync.Mutex
	accounts map[string]fakeAccount // by email
	revoked  map[string]bool
	deleted  []string
	next     int
}

type fakeAccount struct {
	uid      string
	password string
}

func newFakeIdentity() *fakeIdentity {
	return &fakeIdentity{accounts: map[string]fakeAccount{}, revoked: map[string]bool{}}
}

func (fi *fakeIdentity) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if _, ok := fi.accounts[email]; ok {
		return "", apperr.Auth("Email already in use")
	}
	fi.next++
	uid := fmt.Sprintf("uid-%d", fi.next)
	fi.accounts[email] = fakeAccount{uid: uid, password: password}
	return uid, nil
}

func (fi *fakeIdentity) DeleteAccount(ctx context.Context, uid string) error {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	for email, acct := range fi.accounts {
		if acct.uid == uid {
			delete(fi.accounts, email)
		}
	}
	fi.deleted = append(fi.deleted, uid)
	return nil
}

func (fi *fakeIdentity) DisableAccount(ctx context.Context, uid string) error { return nil }

func (fi *fakeIdentity) SignIn(ctx context.Context, email, password string) (string, string, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	acct, ok := fi.accounts[email]
	if !ok || acct.password != password {
		return "", "", apperr.Auth("Invalid email or password")
	}
	return acct.uid, "token-" + acct.uid, nil
}

func (fi *fakeIdentity) MintSession(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	return "cookie:" + idToken[len("token-"):], nil
}

func (fi *fakeIdentity) VerifySession(ctx context.Context, cookie string) (string, error) {
	fi.mu.Lock()
	defer fi.mu.Unlock()
	if len(cookie) <= len("cookie:") {
		return "", apperr.Auth("session expired")
	}
	uid := cookie[len("cookie:"):]
	if fi.revoked[uid] {
		return "", apperr.Auth("session expired")
	}
	return uid, nil
}

func (fi *fakeIdentity) RevokeSessions(ctx context.Context, uid string) error {
	fi.mu.Lock()
	fi.revoked[uid] = true
	fi.mu.Unlock()
	return nil
}

type fakeProfiles struct {
	profiles map[string]*collections.Profile
	setErr   error
}

func (fp *fakeProfiles) GetProfile(ctx context.Context, uid string) (*collections.Profile, error) {
	p, ok := fp.profiles[uid]
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, uid)
	}
	return p, nil
}

func (fp *fakeProfiles) SetProfile(ctx context.Context, p *collections.Profile) error {
	if fp.setErr != nil {
		return fp.setErr
	}
	fp.profiles[p.UID] = p
	return nil
}

func newTestSessions() (*Sessions, *fakeIdentity, *fakeProfiles) {
	identity := newFakeIdentity()
	store := &fakeProfiles{profiles: map[string]*collections.Profile{}}
	return NewSessions(identity, store, time.Hour), identity, store
}

func TestSignupAndResolve(t *testing.T) {
	ctx := context.Background()
	sessions, _, store := newTestSessions()

	cookie, sess, err := sessions.Signup(ctx, SignupInput{
		Email:    "ann@example.com",
		Password: "secret1",
		Name:     "Ann",
		Role:     collections.RoleEmployee,
	})
	if err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if sess.Role != collections.RoleEmployee || sess.Name != "Ann" {
		t.Errorf("session = %+v", sess)
	}
	if p := store.profiles[sess.UID]; p == nil || p.Attendance == nil {
		t.Error("employee profile should be created with an empty attendance map")
	}

	resolved, err := sessions.Resolve(ctx, cookie)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if *resolved != *sess {
		t.Errorf("Resolve = %+v, want %+v", resolved, sess)
	}

	if err := sessions.Logout(ctx, resolved); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := sessions.Resolve(ctx, cookie); !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("Resolve after logout = %v, want ErrAuth", err)
	}
}

func TestSignupErrors(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessions()
	if _, _, err := sessions.Signup(ctx, SignupInput{Email: "dup@example.com", Password: "secret1", Name: "D", Role: collections.RoleEmployee}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name    string
		in      SignupInput
		wantErr error
	}{
		{"duplicate email", SignupInput{Email: "dup@example.com", Password: "secret1", Name: "D", Role: collections.RoleEmployee}, apperr.ErrAuth},
		{"weak password", SignupInput{Email: "w@example.com", Password: "12345", Name: "W", Role: collections.RoleEmployee}, apperr.ErrAuth},
		{"invalid email", SignupInput{Email: "not-an-email", Password: "secret1", Name: "I", Role: collections.RoleEmployee}, apperr.ErrAuth},
		{"unknown role", SignupInput{Email: "r@example.com", Password: "secret1", Name: "R", Role: "owner"}, apperr.ErrInvalid},
		{"missing name", SignupInput{Email: "n@example.com", Password: "secret1", Role: collections.RoleAdmin}, apperr.ErrInvalid},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := sessions.Signup(ctx, tc.in)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Signup = %v, want %v", err, tc.wantErr)
			}
		})
	}
}

func TestSignupCleansUpAccount(t *testing.T) {
	ctx := context.Background()
	sessions, identity, store := newTestSessions()
	store.setErr = errors.New("firestore unavailable")

	_, _, err := sessions.Signup(ctx, SignupInput{Email: "c@example.com", Password: "secret1", Name: "C", Role: collections.RoleEmployee})
	if !errors.Is(err, apperr.ErrAuth) {
		t.Fatalf("Signup = %v, want ErrAuth", err)
	}
	if len(identity.deleted) != 1 {
		t.Errorf("account without profile should be removed, deleted=%v", identity.deleted)
	}
	if _, ok := identity.accounts["c@example.com"]; ok {
		t.Error("account still present")
	}
}

func TestLoginWithoutProfile(t *testing.T) {
	ctx := context.Background()
	sessions, identity, _ := newTestSessions()
	if _, err := identity.CreateAccount(ctx, "ghost@example.com", "secret1", ""); err != nil {
		t.Fatal(err)
	}
	_, sess, err := sessions.Login(ctx, "ghost@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if sess.Role != NoRole {
		t.Errorf("role = %q, want none", sess.Role)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessions()
	if _, _, err := sessions.Login(ctx, "nobody@example.com", "secret1"); !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("Login = %v, want ErrAuth", err)
	}
}

func TestVerifyPassword(t *testing.T) {
	ctx := context.Background()
	sessions, _, _ := newTestSessions()
	_, sess, err := sessions.Signup(ctx, SignupInput{Email: "v@example.com", Password: "secret1", Name: "V", Role: collections.RoleEmployee})
	if err != nil {
		t.Fatal(err)
	}
	if err := sessions.VerifyPassword(ctx, sess, "secret1"); err != nil {
		t.Errorf("VerifyPassword with the right password: %v", err)
	}
	if err := sessions.VerifyPassword(ctx, sess, "wrong"); !errors.Is(err, apperr.ErrAuth) {
		t.Errorf("VerifyPassword with a wrong password = %v, want ErrAuth", err)
	}
}
