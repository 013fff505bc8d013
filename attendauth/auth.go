// Package attendauth handles who the caller is (Firebase accounts and session cookies) and what
// their role lets them do.
package attendauth

import (
	"context"

	log "attendserver/cloudlog"
	"attendserver/collections"

	"github.com/sirupsen/logrus"
)

const (
	// NoRole is given to signed in users without a profile. They have no access.
	NoRole = ""

	opSubmit      = "SUBMIT"
	opViewRoster  = "VIEWROSTER"
	opEditRoster  = "EDITROSTER"
	opCreateAdmin = "CREATEADMIN"
)

// Session is the signed in user as seen by request handlers.
type Session struct {
	UID   string `json:"uid"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"userType"`
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == collections.RoleAdmin
}

// Authenticator defines methods for verifying user access levels.
type Authenticator interface {
	CanSubmit(ctx context.Context, sess *Session) bool
	CanViewRoster(ctx context.Context, sess *Session) bool
	CanEditRoster(ctx context.Context, sess *Session) bool
	// CanCreateAdmin allows anyone while no administrator exists, and administrators after that.
	CanCreateAdmin(ctx context.Context, sess *Session) bool
}

type roleChecker interface {
	HasRole(ctx context.Context, role string) (bool, error)
}

// roleAuthenticator implements Authenticator from the session role, consulting the store only to
// find out whether an administrator exists yet.
type roleAuthenticator struct {
	roles roleChecker
}

func (ra *roleAuthenticator) verifyAccess(ctx context.Context, sess *Session, op string) bool {
	role := NoRole
	if sess != nil {
		role = sess.Role
	}
	var ok bool
	switch op {
	case opSubmit:
		ok = role == collections.RoleEmployee
	case opViewRoster, opEditRoster:
		ok = role == collections.RoleAdmin
	case opCreateAdmin:
		ok = role == collections.RoleAdmin || !ra.hasAdmins(ctx)
	default:
		log.Printf("Unsupported operation: %s", op)
	}
	return ok
}

func (ra *roleAuthenticator) hasAdmins(ctx context.Context) bool {
	exists, err := ra.roles.HasRole(ctx, collections.RoleAdmin)
	if err != nil {
		// Treat an unreadable roster as having admins so the bootstrap path stays closed.
		log.WithFields(logrus.Fields{"op": opCreateAdmin}).WithError(err).Warn("Failed to look up admins")
		return true
	}
	return exists
}

func (ra *roleAuthenticator) CanSubmit(ctx context.Context, sess *Session) bool {
	return ra.verifyAccess(ctx, sess, opSubmit)
}

func (ra *roleAuthenticator) CanViewRoster(ctx context.Context, sess *Session) bool {
	return ra.verifyAccess(ctx, sess, opViewRoster)
}

func (ra *roleAuthenticator) CanEditRoster(ctx context.Context, sess *Session) bool {
	return ra.verifyAccess(ctx, sess, opEditRoster)
}

func (ra *roleAuthenticator) CanCreateAdmin(ctx context.Context, sess *Session) bool {
	return ra.verifyAccess(ctx, sess, opCreateAdmin)
}

// CurrentAuthenticator gives the currently used authenticator.
func CurrentAuthenticator(roles roleChecker) Authenticator {
	return &roleAuthenticator{
		roles: roles,
	}
}
