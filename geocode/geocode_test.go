package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"attendserver/attendance"
	"attendserver/collections"
	"attendserver/config"
)

func fix(lat, lon float64) attendance.LocationReport {
	return attendance.LocationReport{Latitude: &lat, Longitude: &lon, Accuracy: 15}
}

func TestReverse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/reverse" {
			t.Errorf("path = %s, want /reverse", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("lat") != "10.5" || q.Get("lon") != "-20.25" || q.Get("format") != "json" {
			t.Errorf("query = %s", r.URL.RawQuery)
		}
		if r.Header.Get("User-Agent") != "attendserver-test" {
			t.Errorf("User-Agent = %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte(`{"display_name":"1 Main St, Springfield"}`))
	}))
	defer server.Close()

	client := NewClient(config.GeocoderConfig{BaseURL: server.URL, UserAgent: "attendserver-test", Timeout: time.Second})
	got, err := client.Reverse(context.Background(), 10.5, -20.25)
	if err != nil {
		t.Fatalf("Reverse: %v", err)
	}
	if got != "1 Main St, Springfield" {
		t.Errorf("Reverse = %q", got)
	}
}

func TestResolve(t *testing.T) {
	ok := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"display_name":"Somewhere"}`))
	}))
	defer ok.Close()
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer failing.Close()
	unreachable := httptest.NewServer(http.NotFoundHandler())
	unreachableURL := unreachable.URL
	unreachable.Close()

	cases := []struct {
		name        string
		baseURL     string
		report      attendance.LocationReport
		wantAddress string
		wantNote    string
	}{
		{
			name:        "resolved",
			baseURL:     ok.URL,
			report:      fix(1, 2),
			wantAddress: "Somewhere",
		},
		{
			name:        "geocoder error",
			baseURL:     failing.URL,
			report:      fix(1.5, 2.25),
			wantAddress: "1.500000, 2.250000",
		},
		{
			name:        "geocoder unreachable",
			baseURL:     unreachableURL,
			report:      fix(48.8584, 2.2945),
			wantAddress: CoordinateAddress(48.8584, 2.2945),
		},
		{
			name:     "denied",
			baseURL:  ok.URL,
			report:   attendance.LocationReport{Error: "User denied Geolocation"},
			wantNote: collections.NoteLocationUnavailable,
		},
		{
			name:     "no coordinates",
			baseURL:  ok.URL,
			report:   attendance.LocationReport{},
			wantNote: collections.NoteLocationUnavailable,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := NewClient(config.GeocoderConfig{BaseURL: tc.baseURL, Timeout: time.Second})
			got := NewResolver(client, 2*time.Second).Resolve(context.Background(), tc.report)
			if got.Address != tc.wantAddress {
				t.Errorf("Address = %q, want %q", got.Address, tc.wantAddress)
			}
			if got.Note != tc.wantNote {
				t.Errorf("Note = %q, want %q", got.Note, tc.wantNote)
			}
			if tc.wantNote == "" {
				if got.Coordinates == nil || got.Coordinates.Latitude != *tc.report.Latitude {
					t.Errorf("Coordinates = %+v", got.Coordinates)
				}
				if got.Accuracy != tc.report.Accuracy {
					t.Errorf("Accuracy = %v", got.Accuracy)
				}
			}
		})
	}
}
