package attendauth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"attendserver/apperr"

	firebase "firebase.google.com/go"
	"firebase.google.com/go/auth"
	"google.golang.org/api/googleapi"
	identitytoolkit "google.golang.org/api/identitytoolkit/v3"
	"google.golang.org/api/option"
)

// Identity is the hosted account provider.
type Identity interface {
	CreateAccount(ctx context.Context, email, password, displayName string) (string, error)
	DeleteAccount(ctx context.Context, uid string) error
	DisableAccount(ctx context.Context, uid string) error
	// SignIn checks an email/password pair and returns the account UID and an ID token.
	SignIn(ctx context.Context, email, password string) (uid string, idToken string, err error)
	MintSession(ctx context.Context, idToken string, ttl time.Duration) (string, error)
	// VerifySession returns the UID of a valid, unrevoked session cookie.
	VerifySession(ctx context.Context, cookie string) (string, error)
	RevokeSessions(ctx context.Context, uid string) error
}

// FirebaseIdentity implements Identity with the Firebase Admin SDK for account management and
// the Identity Toolkit API for password sign in.
type FirebaseIdentity struct {
	auth    *auth.Client
	toolkit *identitytoolkit.Service
}

// NewFirebaseIdentity creates the Admin SDK auth client from app and an Identity Toolkit service
// authenticated with the project's web API key.
func NewFirebaseIdentity(ctx context.Context, app *firebase.App, webAPIKey string) (*FirebaseIdentity, error) {
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initiate Firebase Auth failed: %w", err)
	}
	toolkit, err := identitytoolkit.NewService(ctx, option.WithAPIKey(webAPIKey))
	if err != nil {
		return nil, fmt.Errorf("initiate Identity Toolkit failed: %w", err)
	}
	return &FirebaseIdentity{auth: client, toolkit: toolkit}, nil
}

func (fi *FirebaseIdentity) CreateAccount(ctx context.Context, email, password, displayName string) (string, error) {
	params := (&auth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName)
	record, err := fi.auth.CreateUser(ctx, params)
	switch {
	case err == nil:
		return record.UID, nil
	case auth.IsEmailAlreadyExists(err):
		return "", apperr.Auth("Email already in use")
	case auth.IsInvalidEmail(err):
		return "", apperr.Auth("Invalid email")
	default:
		return "", apperr.Auth(err.Error())
	}
}

func (fi *FirebaseIdentity) DeleteAccount(ctx context.Context, uid string) error {
	if err := fi.auth.DeleteUser(ctx, uid); err != nil && !auth.IsUserNotFound(err) {
		return apperr.Store(err)
	}
	return nil
}

func (fi *FirebaseIdentity) DisableAccount(ctx context.Context, uid string) error {
	_, err := fi.auth.UpdateUser(ctx, uid, (&auth.UserToUpdate{}).Disabled(true))
	if auth.IsUserNotFound(err) {
		return fmt.Errorf("%w: no account %s", apperr.ErrNotFound, uid)
	}
	if err != nil {
		return apperr.Store(err)
	}
	return nil
}

func (fi *FirebaseIdentity) SignIn(ctx context.Context, email, password string) (string, string, error) {
	resp, err := fi.toolkit.Relyingparty.VerifyPassword(&identitytoolkit.IdentitytoolkitRelyingpartyVerifyPasswordRequest{
		Email:             email,
		Password:          password,
		ReturnSecureToken: true,
	}).Context(ctx).Do()
	if err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusBadRequest {
			return "", "", apperr.Auth("Invalid email or password")
		}
		return "", "", apperr.Store(err)
	}
	return resp.LocalId, resp.IdToken, nil
}

func (fi *FirebaseIdentity) MintSession(ctx context.Context, idToken string, ttl time.Duration) (string, error) {
	cookie, err := fi.auth.SessionCookie(ctx, idToken, ttl)
	if err != nil {
		return "", apperr.Auth(err.Error())
	}
	return cookie, nil
}

func (fi *FirebaseIdentity) VerifySession(ctx context.Context, cookie string) (string, error) {
	token, err := fi.auth.VerifySessionCookieAndCheckRevoked(ctx, cookie)
	if err != nil {
		return "", apperr.Auth("session expired")
	}
	return token.UID, nil
}

func (fi *FirebaseIdentity) RevokeSessions(ctx context.Context, uid string) error {
	if err := fi.auth.RevokeRefreshTokens(ctx, uid); err != nil {
		return apperr.Store(err)
	}
	return nil
}
