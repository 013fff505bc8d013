// Package api is the HTTP surface of the attendance server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"attendserver/apperr"
	"attendserver/attendance"
	"attendserver/attendauth"
	log "attendserver/cloudlog"
	"attendserver/collections"
	"attendserver/config"
	"attendserver/roster"

	"github.com/gorilla/mux"
)

// Request bodies carry at most one photo data URL.
const maxBodyBytes = 12 << 20

type sessionManager interface {
	Register(ctx context.Context, in attendauth.SignupInput) (*collections.Profile, error)
	Signup(ctx context.Context, in attendauth.SignupInput) (string, *attendauth.Session, error)
	Login(ctx context.Context, email, password string) (string, *attendauth.Session, error)
	Logout(ctx context.Context, sess *attendauth.Session) error
	Resolve(ctx context.Context, cookie string) (*attendauth.Session, error)
	TTL() time.Duration
}

type rosterManager interface {
	Create(ctx context.Context, in roster.EmployeeInput) (collections.UserInfo, error)
	Update(ctx context.Context, uid string, in roster.EmployeeUpdate) (collections.UserInfo, error)
	Delete(ctx context.Context, uid string) error
	List(ctx context.Context) ([]collections.UserInfo, error)
}

type dashboardFeed interface {
	ServeWs(userID string, w http.ResponseWriter, r *http.Request)
}

// Server routes requests to the attendance, roster and session services.
type Server struct {
	cfg      config.ServerConfig
	sessions sessionManager
	auth     attendauth.Authenticator
	svc      *attendance.Service
	roster   rosterManager
	feed     dashboardFeed
}

// New returns a Server.
func New(cfg config.ServerConfig, sessions sessionManager, auth attendauth.Authenticator, svc *attendance.Service, employees rosterManager, feed dashboardFeed) *Server {
	if cfg.CookieName == "" {
		cfg.CookieName = config.DefaultSessionCookieName
	}
	return &Server{
		cfg:      cfg,
		sessions: sessions,
		auth:     auth,
		svc:      svc,
		roster:   employees,
		feed:     feed,
	}
}

// Handler builds the router with its middleware.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	router.HandleFunc("/ws/dashboard", s.guard(s.auth.CanViewRoster, s.dashboardSocket)).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/auth/signup", s.signup).Methods(http.MethodPost)
	api.HandleFunc("/auth/login", s.login).Methods(http.MethodPost)
	api.HandleFunc("/auth/logout", s.guard(nil, s.logout)).Methods(http.MethodPost)
	api.HandleFunc("/auth/me", s.guard(nil, s.me)).Methods(http.MethodGet)

	api.HandleFunc("/capture", s.guard(s.auth.CanSubmit, s.captureState)).Methods(http.MethodGet)
	api.HandleFunc("/capture/start", s.guard(s.auth.CanSubmit, s.captureStart)).Methods(http.MethodPost)
	api.HandleFunc("/capture/capture", s.guard(s.auth.CanSubmit, s.captureFrame)).Methods(http.MethodPost)
	api.HandleFunc("/capture/upload", s.guard(s.auth.CanSubmit, s.captureUpload)).Methods(http.MethodPost)
	api.HandleFunc("/capture/retake", s.guard(s.auth.CanSubmit, s.captureRetake)).Methods(http.MethodPost)
	api.HandleFunc("/capture/cancel", s.guard(s.auth.CanSubmit, s.captureCancel)).Methods(http.MethodPost)
	api.HandleFunc("/capture/submit", s.guard(s.auth.CanSubmit, s.captureSubmit)).Methods(http.MethodPost)

	api.HandleFunc("/attendance/today", s.guard(s.auth.CanSubmit, s.today)).Methods(http.MethodGet)
	api.HandleFunc("/attendance/history", s.guard(s.auth.CanSubmit, s.history)).Methods(http.MethodGet)

	admin := api.PathPrefix("/admin").Subrouter()
	admin.HandleFunc("/dashboard", s.guard(s.auth.CanViewRoster, s.dashboard)).Methods(http.MethodGet)
	admin.HandleFunc("/attendance", s.guard(s.auth.CanViewRoster, s.attendanceLog)).Methods(http.MethodGet)
	admin.HandleFunc("/attendance/absent", s.guard(s.auth.CanEditRoster, s.markAbsent)).Methods(http.MethodPost)
	admin.HandleFunc("/attendance/export", s.guard(s.auth.CanViewRoster, s.exportAttendance)).Methods(http.MethodGet)
	admin.HandleFunc("/employees", s.guard(s.auth.CanViewRoster, s.listEmployees)).Methods(http.MethodGet)
	admin.HandleFunc("/employees", s.guard(s.auth.CanEditRoster, s.createEmployee)).Methods(http.MethodPost)
	admin.HandleFunc("/employees/{uid}", s.guard(s.auth.CanEditRoster, s.updateEmployee)).Methods(http.MethodPatch)
	admin.HandleFunc("/employees/{uid}", s.guard(s.auth.CanEditRoster, s.deleteEmployee)).Methods(http.MethodDelete)
	admin.HandleFunc("/employees/{uid}/history", s.guard(s.auth.CanViewRoster, s.employeeHistory)).Methods(http.MethodGet)
	admin.HandleFunc("/roster/export", s.guard(s.auth.CanViewRoster, s.exportRoster)).Methods(http.MethodGet)

	if s.cfg.StaticDir != "" {
		router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.cfg.StaticDir)))
	}

	return Chain(router, RequestLogger, SecurityHeaders(SecurityHeadersConfig{}))
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *attendauth.Session)

type accessCheck func(ctx context.Context, sess *attendauth.Session) bool

// guard resolves the session cookie and applies allowed (when set) before calling next.
func (s *Server) guard(allowed accessCheck, next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.session(r)
		if err != nil {
			writeError(w, err)
			return
		}
		if allowed != nil && !allowed(r.Context(), sess) {
			writeError(w, apperr.ErrForbidden)
			return
		}
		next(w, r, sess)
	}
}

func (s *Server) session(r *http.Request) (*attendauth.Session, error) {
	cookie, err := r.Cookie(s.cfg.CookieName)
	if err != nil || cookie.Value == "" {
		return nil, apperr.Auth("not signed in")
	}
	return s.sessions.Resolve(r.Context(), cookie.Value)
}

func (s *Server) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(s.sessions.TTL().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     s.cfg.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.CookieSecure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) dashboardSocket(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	s.feed.ServeWs(sess.UID, w, r)
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		return apperr.Invalid("malformed request body")
	}
	return nil
}

func statusFor(err error) int {
	switch apperr.Kind(err) {
	case apperr.ErrAuth:
		return http.StatusUnauthorized
	case apperr.ErrPermission, apperr.ErrForbidden:
		return http.StatusForbidden
	case apperr.ErrStore:
		return http.StatusBadGateway
	case apperr.ErrInvalid:
		return http.StatusBadRequest
	case apperr.ErrNotFound:
		return http.StatusNotFound
	case apperr.ErrState, apperr.ErrExists:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// message is the user-visible part of err.
func message(err error) string {
	kind := apperr.Kind(err)
	if kind == nil {
		return "internal error"
	}
	return strings.TrimPrefix(err.Error(), kind.Error()+": ")
}

func writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		log.WithError(err).Error("Unhandled request error")
	}
	writeJSON(w, status, map[string]string{"error": message(err)})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
