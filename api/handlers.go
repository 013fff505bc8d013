package api

import (
	"fmt"
	"net/http"

	"attendserver/apperr"
	"attendserver/attendance"
	"attendserver/attendauth"
	"attendserver/capture"
	log "attendserver/cloudlog"
	"attendserver/collections"
	"attendserver/report"
	"attendserver/roster"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type startRequest struct {
	Mode          capture.Mode              `json:"mode"`
	CameraGranted bool                      `json:"cameraGranted"`
	Location      attendance.LocationReport `json:"location"`
}

type imageRequest struct {
	Image string `json:"image"`
}

type submitRequest struct {
	Password string `json:"password"`
}

// flowResponse carries the flow alongside an error so the client can keep rendering it.
type flowResponse struct {
	Error string           `json:"error,omitempty"`
	Flow  capture.Snapshot `json:"flow"`
}

func (s *Server) signup(w http.ResponseWriter, r *http.Request) {
	var in attendauth.SignupInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	current, _ := s.session(r)
	if in.Role == collections.RoleAdmin {
		// Signed out callers may only create the first administrator.
		if !s.auth.CanCreateAdmin(r.Context(), current) {
			writeError(w, apperr.ErrForbidden)
			return
		}
	}
	if current != nil {
		// The caller keeps their own session.
		profile, err := s.sessions.Register(r.Context(), in)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, profile.Info())
		return
	}
	cookie, sess, err := s.sessions.Signup(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setSessionCookie(w, cookie)
	writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in loginRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	cookie, sess, err := s.sessions.Login(r.Context(), in.Email, in.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setSessionCookie(w, cookie)
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	s.svc.Discard(sess.UID)
	s.clearSessionCookie(w)
	if err := s.sessions.Logout(r.Context(), sess); err != nil {
		log.WithFields(logrus.Fields{"uid": sess.UID}).WithError(err).Warn("Failed to revoke sessions")
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	writeJSON(w, http.StatusOK, sess)
}

func writeFlow(w http.ResponseWriter, snap capture.Snapshot, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), flowResponse{Error: message(err), Flow: snap})
		return
	}
	writeJSON(w, http.StatusOK, flowResponse{Flow: snap})
}

func (s *Server) captureState(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	writeFlow(w, s.svc.Flow(sess.UID), nil)
}

func (s *Server) captureStart(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in startRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.svc.Start(r.Context(), sess, in.Mode, in.CameraGranted, in.Location)
	writeFlow(w, snap, err)
}

func (s *Server) captureFrame(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in imageRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.svc.Capture(sess, in.Image)
	writeFlow(w, snap, err)
}

func (s *Server) captureUpload(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in imageRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.svc.Upload(sess, in.Image)
	writeFlow(w, snap, err)
}

func (s *Server) captureRetake(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	snap, err := s.svc.Retake(sess)
	writeFlow(w, snap, err)
}

func (s *Server) captureCancel(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	snap, err := s.svc.Cancel(sess)
	writeFlow(w, snap, err)
}

func (s *Server) captureSubmit(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in submitRequest
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	snap, err := s.svc.Submit(r.Context(), sess, in.Password)
	writeFlow(w, snap, err)
}

func (s *Server) today(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	status, err := s.svc.TodayFor(r.Context(), sess.UID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) history(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	rep, err := s.svc.EmployeeHistory(r.Context(), sess.UID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}

func (s *Server) dashboard(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	summary, err := s.svc.Dashboard(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (s *Server) attendanceLog(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	entries, err := s.svc.LogForDate(r.Context(), r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, err)
		return
	}
	if entries == nil {
		entries = []*collections.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) markAbsent(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.svc.Today()
	}
	marked, err := s.svc.MarkAbsent(r.Context(), date)
	if err != nil {
		writeError(w, err)
		return
	}
	log.WithFields(logrus.Fields{"admin": sess.UID, "date": date, "marked": marked}).Info("Absences recorded")
	writeJSON(w, http.StatusOK, map[string]interface{}{"date": date, "marked": marked})
}

func (s *Server) exportAttendance(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	from, to := r.URL.Query().Get("from"), r.URL.Query().Get("to")
	if from == "" && to == "" {
		from = s.svc.Today()
		to = from
	}
	entries, err := s.svc.LogBetween(r.Context(), from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := report.AttendanceWorkbook(entries)
	writeWorkbook(w, fmt.Sprintf("attendance-%s-%s.xlsx", from, to), f, err)
}

func (s *Server) exportRoster(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	date := r.URL.Query().Get("date")
	if date == "" {
		date = s.svc.Today()
	}
	if !attendance.ValidDate(date) {
		writeError(w, apperr.Invalid("date %q is not YYYY-MM-DD", date))
		return
	}
	profiles, err := s.svc.Roster(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	f, err := report.RosterWorkbook(profiles, date)
	writeWorkbook(w, fmt.Sprintf("roster-%s.xlsx", date), f, err)
}

func writeWorkbook(w http.ResponseWriter, filename string, f *excelize.File, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	data, err := report.Bytes(f)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", report.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) listEmployees(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	employees, err := s.roster.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, employees)
}

func (s *Server) createEmployee(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in roster.EmployeeInput
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.roster.Create(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) updateEmployee(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	var in roster.EmployeeUpdate
	if err := decode(w, r, &in); err != nil {
		writeError(w, err)
		return
	}
	info, err := s.roster.Update(r.Context(), mux.Vars(r)["uid"], in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) deleteEmployee(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	uid := mux.Vars(r)["uid"]
	if err := s.roster.Delete(r.Context(), uid); err != nil {
		writeError(w, err)
		return
	}
	s.svc.Discard(uid)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) employeeHistory(w http.ResponseWriter, r *http.Request, sess *attendauth.Session) {
	rep, err := s.svc.EmployeeHistory(r.Context(), mux.Vars(r)["uid"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rep)
}
