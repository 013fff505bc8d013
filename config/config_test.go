package config

import (
	"testing"
	"time"
)

func TestNewDefaults(t *testing.T) {
	t.Setenv("SERVER_ADDR", ":9999")
	t.Setenv("LOCATION_TIMEOUT", "20")
	t.Setenv("CAPTURE_TTL", "2m")
	t.Setenv("SESSION_COOKIE_SECURE", "off")
	t.Setenv("GEOCODER_URL", "http://geo.local/")

	cfg := New()
	if cfg.Server.Addr != ":9999" {
		t.Errorf("Server.Addr = %q, want :9999", cfg.Server.Addr)
	}
	if cfg.Server.CookieSecure {
		t.Error("Server.CookieSecure = true, want false")
	}
	if cfg.Geocoder.Timeout != 20*time.Second {
		t.Errorf("Geocoder.Timeout = %v, want 20s", cfg.Geocoder.Timeout)
	}
	if cfg.Geocoder.BaseURL != "http://geo.local" {
		t.Errorf("Geocoder.BaseURL = %q, want trailing slash trimmed", cfg.Geocoder.BaseURL)
	}
	if cfg.Attendance.CaptureTTL != 2*time.Minute {
		t.Errorf("Attendance.CaptureTTL = %v, want 2m", cfg.Attendance.CaptureTTL)
	}
	if cfg.Attendance.RetentionDays != DefaultRetentionDays {
		t.Errorf("Attendance.RetentionDays = %d, want %d", cfg.Attendance.RetentionDays, DefaultRetentionDays)
	}
}

func TestAttendanceLocation(t *testing.T) {
	cases := []struct {
		name     string
		timezone string
		want     string
	}{
		{name: "known zone", timezone: "UTC", want: "UTC"},
		{name: "unknown zone falls back", timezone: "Nowhere/Special", want: "UTC"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := AttendanceConfig{Timezone: tc.timezone}
			if got := a.Location().String(); got != tc.want {
				t.Errorf("Location() = %s, want %s", got, tc.want)
			}
		})
	}
}
