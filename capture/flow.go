// Package capture implements the attendance capture flow: the per-user state machine that
// takes an employee from requesting device access, through a captured or uploaded photo and a
// password confirmation, to a stored attendance record.
//
//	Idle -> Live -> Preview -> Verifying -> Success
//	Idle -> Upload -> Preview        Verifying -> Preview (on error)
package capture

import (
	"fmt"
	"sync"
	"time"

	"attendserver/apperr"
	"attendserver/collections"

	"github.com/google/uuid"
)

// State is a capture flow state.
type State string

const (
	Idle      State = "IDLE"
	Live      State = "LIVE"
	Upload    State = "UPLOAD"
	Preview   State = "PREVIEW"
	Verifying State = "VERIFYING"
	Success   State = "SUCCESS"
)

// Mode is how the photo is acquired.
type Mode string

const (
	ModeCamera Mode = "camera"
	ModeUpload Mode = "upload"
)

// Flow is one employee's capture flow. All methods are safe for concurrent use.
type Flow struct {
	mu sync.Mutex

	id     string
	userID string
	state  State
	mode   Mode
	// cameraHeld is true while the device camera stream is acquired (Live state only).
	cameraHeld bool
	image      string
	location   collections.Location
	errText    string
	record     *collections.AttendanceRecord

	now          func() time.Time
	lastActivity time.Time
}

// Snapshot is the client view of a flow.
type Snapshot struct {
	ID         string                        `json:"id"`
	State      State                         `json:"state"`
	Mode       Mode                          `json:"mode,omitempty"`
	CameraHeld bool                          `json:"cameraHeld"`
	Image      string                        `json:"image,omitempty"`
	Location   *collections.Location         `json:"location,omitempty"`
	Error      string                        `json:"error,omitempty"`
	Record     *collections.AttendanceRecord `json:"record,omitempty"`
}

// NewFlow returns an Idle flow for userID.
func NewFlow(userID string, now func() time.Time) *Flow {
	if now == nil {
		now = time.Now
	}
	f := &Flow{userID: userID, now: now}
	f.resetLocked()
	return f
}

func (f *Flow) resetLocked() {
	f.id = uuid.NewString()
	f.state = Idle
	f.mode = ""
	f.cameraHeld = false
	f.image = ""
	f.location = collections.Location{}
	f.errText = ""
	f.record = nil
	f.lastActivity = f.now()
}

func (f *Flow) invalid(action string) error {
	return fmt.Errorf("%w: cannot %s while %s", apperr.ErrState, action, f.state)
}

// Start requests device access. In camera mode a denied camera leaves the flow Idle with a
// PermissionError; location has already been resolved (best effort) by the caller.
func (f *Flow) Start(mode Mode, cameraGranted bool, location collections.Location) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Idle && f.state != Success {
		return f.invalid("start")
	}
	if f.state == Success {
		f.resetLocked()
	}
	switch mode {
	case ModeCamera:
		if !cameraGranted {
			f.errText = "Camera access denied. Upload a photo instead."
			return apperr.Permission("camera access denied")
		}
		f.state = Live
		f.cameraHeld = true
	case ModeUpload:
		f.state = Upload
	default:
		return apperr.Invalid("unknown capture mode %q", mode)
	}
	f.mode = mode
	f.location = location
	f.errText = ""
	return nil
}

// Capture stores a still frame taken from the live camera and releases the camera.
func (f *Flow) Capture(image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Live {
		return f.invalid("capture")
	}
	f.image = image
	f.cameraHeld = false
	f.state = Preview
	return nil
}

// Upload stores a photo chosen with the file picker.
func (f *Flow) Upload(image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Upload {
		return f.invalid("upload")
	}
	f.image = image
	f.state = Preview
	return nil
}

// Retake discards the previewed photo and goes back to acquiring one.
func (f *Flow) Retake() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Preview {
		return f.invalid("retake")
	}
	f.image = ""
	f.errText = ""
	if f.mode == ModeCamera {
		f.state = Live
		f.cameraHeld = true
	} else {
		f.state = Upload
	}
	return nil
}

// Cancel releases every held resource and returns to Idle.
func (f *Flow) Cancel() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Verifying {
		return f.invalid("cancel")
	}
	f.resetLocked()
	return nil
}

// BeginVerify moves a previewed photo into verification. It returns the image and location
// that the record will be built from.
func (f *Flow) BeginVerify(password string) (string, collections.Location, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Preview {
		return "", collections.Location{}, f.invalid("submit")
	}
	if f.image == "" || password == "" {
		f.errText = "Please capture a photo and enter your password."
		return "", collections.Location{}, apperr.Invalid("photo and password are required")
	}
	f.state = Verifying
	f.errText = ""
	return f.image, f.location, nil
}

// Succeed finishes a verification with the stored record.
func (f *Flow) Succeed(record collections.AttendanceRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Verifying {
		return
	}
	f.state = Success
	f.image = ""
	f.record = &record
}

// Fail returns a verification to Preview, keeping the photo and the error text.
func (f *Flow) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastActivity = f.now()
	if f.state != Verifying {
		return
	}
	f.state = Preview
	if err != nil {
		f.errText = err.Error()
	}
}

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Snapshot returns a copy of the flow for clients.
func (f *Flow) Snapshot() Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := Snapshot{
		ID:         f.id,
		State:      f.state,
		Mode:       f.mode,
		CameraHeld: f.cameraHeld,
		Image:      f.image,
		Error:      f.errText,
	}
	if f.state != Idle {
		loc := f.location
		s.Location = &loc
	}
	if f.record != nil {
		rec := *f.record
		s.Record = &rec
	}
	return s
}

// release resets an idle-expired flow. Flows in verification are never released.
func (f *Flow) release(deadline time.Time) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == Verifying || f.lastActivity.After(deadline) {
		return false
	}
	f.resetLocked()
	return true
}
