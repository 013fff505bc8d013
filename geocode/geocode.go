// Package geocode resolves device coordinates into the location stored on attendance records.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"attendserver/attendance"
	log "attendserver/cloudlog"
	"attendserver/collections"
	"attendserver/config"

	"github.com/sirupsen/logrus"
)

// CoordinateAddress is the address stored when reverse geocoding fails.
func CoordinateAddress(lat, lon float64) string {
	return fmt.Sprintf("%.6f, %.6f", lat, lon)
}

// Client talks to a Nominatim compatible reverse geocoding endpoint.
type Client struct {
	baseURL   string
	userAgent string
	http      *http.Client
}

// NewClient returns a client for cfg.BaseURL.
func NewClient(cfg config.GeocoderConfig) *Client {
	return &Client{
		baseURL:   cfg.BaseURL,
		userAgent: cfg.UserAgent,
		http:      &http.Client{Timeout: cfg.Timeout},
	}
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Reverse returns the display name of the place at lat/lon.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	query.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", err
	}
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode: unexpected status %s", resp.Status)
	}
	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("reverse geocode: %w", err)
	}
	if body.Error != "" {
		return "", fmt.Errorf("reverse geocode: %s", body.Error)
	}
	return body.DisplayName, nil
}

type reverser interface {
	Reverse(ctx context.Context, lat, lon float64) (string, error)
}

// Resolver builds record locations from device reports.
type Resolver struct {
	client  reverser
	timeout time.Duration
}

// NewResolver bounds every resolution by timeout.
func NewResolver(client reverser, timeout time.Duration) *Resolver {
	return &Resolver{client: client, timeout: timeout}
}

// Resolve never fails: without a fix the location is a note, and a failed lookup keeps the
// coordinates as the address.
func (r *Resolver) Resolve(ctx context.Context, report attendance.LocationReport) collections.Location {
	if !report.HasFix() {
		if report.Error != "" {
			log.WithFields(logrus.Fields{"reason": report.Error}).Debug("No location fix")
		}
		return collections.NoteLocation(collections.NoteLocationUnavailable)
	}
	lat, lon := *report.Latitude, *report.Longitude
	location := collections.Location{
		Coordinates: &collections.Coordinates{Latitude: lat, Longitude: lon},
		Accuracy:    report.Accuracy,
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	address, err := r.client.Reverse(ctx, lat, lon)
	if err != nil || address == "" {
		if err != nil {
			log.WithError(err).Warn("Reverse geocoding failed, storing coordinates")
		}
		address = CoordinateAddress(lat, lon)
	}
	location.Address = address
	return location
}
