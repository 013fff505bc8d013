package capture

import (
	"errors"
	"testing"
	"time"

	"attendserver/apperr"
	"attendserver/collections"
)

var testLocation = collections.Location{
	Address:     "1 Main St",
	Coordinates: &collections.Coordinates{Latitude: 10, Longitude: 20},
	Accuracy:    12,
}

func TestCameraFlow(t *testing.T) {
	f := NewFlow("u1", nil)
	if err := f.Start(ModeCamera, true, testLocation); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if s := f.Snapshot(); s.State != Live || !s.CameraHeld {
		t.Fatalf("after Start got %s camera=%t, want LIVE with camera held", s.State, s.CameraHeld)
	}
	if err := f.Capture("data:image/jpeg;base64,AAAA"); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	if s := f.Snapshot(); s.State != Preview || s.CameraHeld {
		t.Fatalf("after Capture got %s camera=%t, want PREVIEW with camera released", s.State, s.CameraHeld)
	}
	image, loc, err := f.BeginVerify("secret")
	if err != nil {
		t.Fatalf("BeginVerify: %v", err)
	}
	if image == "" || loc.Address != "1 Main St" {
		t.Errorf("BeginVerify returned image=%q location=%+v", image, loc)
	}
	f.Succeed(collections.AttendanceRecord{Date: "2024-03-10", PresentOrNot: true})
	s := f.Snapshot()
	if s.State != Success || s.Record == nil || s.Record.Date != "2024-03-10" {
		t.Errorf("after Succeed got %+v", s)
	}
	if s.Image != "" {
		t.Error("photo should be dropped once stored")
	}
}

func TestCameraDenied(t *testing.T) {
	f := NewFlow("u1", nil)
	err := f.Start(ModeCamera, false, testLocation)
	if !errors.Is(err, apperr.ErrPermission) {
		t.Fatalf("Start with camera denied = %v, want ErrPermission", err)
	}
	s := f.Snapshot()
	if s.State != Idle || s.Error == "" {
		t.Errorf("got state %s error %q, want IDLE with an error", s.State, s.Error)
	}
	if err := f.Start(ModeUpload, false, testLocation); err != nil {
		t.Fatalf("upload fallback: %v", err)
	}
	if f.State() != Upload {
		t.Errorf("state = %s, want UPLOAD", f.State())
	}
}

func TestVerifyFailureKeepsPhoto(t *testing.T) {
	f := NewFlow("u1", nil)
	_ = f.Start(ModeUpload, false, testLocation)
	_ = f.Upload("data:image/png;base64,AAAA")
	if _, _, err := f.BeginVerify("wrong"); err != nil {
		t.Fatalf("BeginVerify: %v", err)
	}
	f.Fail(apperr.Auth("Incorrect password"))
	s := f.Snapshot()
	if s.State != Preview {
		t.Fatalf("state = %s, want PREVIEW", s.State)
	}
	if s.Image == "" {
		t.Error("photo should be kept after a failed verification")
	}
	if s.Error == "" {
		t.Error("error should be shown after a failed verification")
	}
}

func TestTransitions(t *testing.T) {
	cases := []struct {
		name    string
		setup   func(f *Flow)
		action  func(f *Flow) error
		want    State
		wantErr error
	}{
		{
			name:    "capture while idle",
			setup:   func(f *Flow) {},
			action:  func(f *Flow) error { return f.Capture("x") },
			want:    Idle,
			wantErr: apperr.ErrState,
		},
		{
			name:    "upload while live",
			setup:   func(f *Flow) { _ = f.Start(ModeCamera, true, testLocation) },
			action:  func(f *Flow) error { return f.Upload("x") },
			want:    Live,
			wantErr: apperr.ErrState,
		},
		{
			name: "retake camera photo",
			setup: func(f *Flow) {
				_ = f.Start(ModeCamera, true, testLocation)
				_ = f.Capture("x")
			},
			action: func(f *Flow) error { return f.Retake() },
			want:   Live,
		},
		{
			name: "retake uploaded photo",
			setup: func(f *Flow) {
				_ = f.Start(ModeUpload, false, testLocation)
				_ = f.Upload("x")
			},
			action: func(f *Flow) error { return f.Retake() },
			want:   Upload,
		},
		{
			name:   "cancel live",
			setup:  func(f *Flow) { _ = f.Start(ModeCamera, true, testLocation) },
			action: func(f *Flow) error { return f.Cancel() },
			want:   Idle,
		},
		{
			name: "cancel while verifying",
			setup: func(f *Flow) {
				_ = f.Start(ModeUpload, false, testLocation)
				_ = f.Upload("x")
				_, _, _ = f.BeginVerify("pw")
			},
			action:  func(f *Flow) error { return f.Cancel() },
			want:    Verifying,
			wantErr: apperr.ErrState,
		},
		{
			name: "submit without password",
			setup: func(f *Flow) {
				_ = f.Start(ModeUpload, false, testLocation)
				_ = f.Upload("x")
			},
			action: func(f *Flow) error {
				_, _, err := f.BeginVerify("")
				return err
			},
			want:    Preview,
			wantErr: apperr.ErrInvalid,
		},
		{
			name: "start again after success",
			setup: func(f *Flow) {
				_ = f.Start(ModeUpload, false, testLocation)
				_ = f.Upload("x")
				_, _, _ = f.BeginVerify("pw")
				f.Succeed(collections.AttendanceRecord{})
			},
			action: func(f *Flow) error { return f.Start(ModeUpload, false, testLocation) },
			want:   Upload,
		},
		{
			name:    "unknown mode",
			setup:   func(f *Flow) {},
			action:  func(f *Flow) error { return f.Start(Mode("scanner"), true, testLocation) },
			want:    Idle,
			wantErr: apperr.ErrInvalid,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := NewFlow("u1", nil)
			tc.setup(f)
			err := tc.action(f)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("error = %v, want %v", err, tc.wantErr)
			}
			if got := f.State(); got != tc.want {
				t.Errorf("state = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestRegistryReap(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	r := NewRegistry(10 * time.Minute)
	r.SetClock(clock)

	idle := r.Get("idle")
	_ = idle.Start(ModeCamera, true, testLocation)

	busy := r.Get("busy")
	_ = busy.Start(ModeUpload, false, testLocation)
	_ = busy.Upload("x")
	_, _, _ = busy.BeginVerify("pw")

	if r.Get("idle") != idle {
		t.Fatal("Get should return the same flow for the same user")
	}

	now = now.Add(5 * time.Minute)
	if n := r.Reap(); n != 0 {
		t.Fatalf("Reap before ttl released %d flows", n)
	}

	now = now.Add(6 * time.Minute)
	if n := r.Reap(); n != 1 {
		t.Fatalf("Reap after ttl released %d flows, want 1", n)
	}
	if idle.State() != Idle || idle.Snapshot().CameraHeld {
		t.Error("released flow should be Idle with the camera released")
	}
	if busy.State() != Verifying {
		t.Error("flows being verified must not be released")
	}
	if r.Len() != 1 {
		t.Errorf("Len = %d, want 1", r.Len())
	}
}
