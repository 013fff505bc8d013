// Package config loads the server configuration from the environment (and an optional .env file).
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Default configuration values
const (
	DefaultServerAddr        = ":8080"
	DefaultGeocoderURL       = "https://nominatim.openstreetmap.org"
	DefaultGeocoderAgent     = "attendserver/1.0"
	DefaultLocationTimeout   = 15 * time.Second
	DefaultTimezone          = "UTC"
	DefaultRetentionDays     = 30
	DefaultCaptureTTL        = 10 * time.Minute
	DefaultSessionTTL        = 5 * 24 * time.Hour
	DefaultDashboardInterval = 30 * time.Second
	DefaultOutboxInterval    = time.Minute
	DefaultPhotoMaxDimension = 480
	DefaultLogName           = "attendserver"
	DefaultSessionCookieName = "__session"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr         string
	CookieName   string
	CookieSecure bool
	StaticDir    string
}

// FirebaseConfig holds what is needed to reach Firebase Auth and Firestore.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	// WebAPIKey is used for password sign-in through the Identity Toolkit API.
	WebAPIKey string
}

// GeocoderConfig configures the reverse-geocoding lookup.
type GeocoderConfig struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// AttendanceConfig holds the attendance rules.
type AttendanceConfig struct {
	Timezone          string
	RetentionDays     int
	CaptureTTL        time.Duration
	SessionTTL        time.Duration
	PhotoMaxDimension int
}

// EventsConfig configures Pub/Sub publication and the local outbox.
type EventsConfig struct {
	Topic          string
	OutboxPath     string
	OutboxInterval time.Duration
}

// LoggingConfig configures Cloud Logging forwarding.
type LoggingConfig struct {
	CloudLogging bool
	LogName      string
	Level        string
}

// Config holds all application configuration.
type Config struct {
	Server            ServerConfig
	Firebase          FirebaseConfig
	Geocoder          GeocoderConfig
	Attendance        AttendanceConfig
	Events            EventsConfig
	Logging           LoggingConfig
	DashboardInterval time.Duration
}

// New loads .env (when present) and returns the configuration with defaults applied.
func New() *Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("error loading .env: %s", err.Error())
	}

	projectID := getEnv("FIREBASE_PROJECT_ID", getEnv("GOOGLE_CLOUD_PROJECT", ""))
	return &Config{
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", DefaultServerAddr),
			CookieName:   getEnv("SESSION_COOKIE_NAME", DefaultSessionCookieName),
			CookieSecure: getEnvBool("SESSION_COOKIE_SECURE", true),
			StaticDir:    getEnv("STATIC_DIR", ""),
		},
		Firebase: FirebaseConfig{
			ProjectID:       projectID,
			CredentialsFile: getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
			WebAPIKey:       getEnv("FIREBASE_WEB_API_KEY", ""),
		},
		Geocoder: GeocoderConfig{
			BaseURL:   strings.TrimRight(getEnv("GEOCODER_URL", DefaultGeocoderURL), "/"),
			UserAgent: getEnv("GEOCODER_USER_AGENT", DefaultGeocoderAgent),
			Timeout:   getEnvDuration("LOCATION_TIMEOUT", DefaultLocationTimeout),
		},
		Attendance: AttendanceConfig{
			Timezone:          getEnv("ATTENDANCE_TIMEZONE", DefaultTimezone),
			RetentionDays:     getEnvInt("ATTENDANCE_RETENTION_DAYS", DefaultRetentionDays),
			CaptureTTL:        getEnvDuration("CAPTURE_TTL", DefaultCaptureTTL),
			SessionTTL:        getEnvDuration("SESSION_TTL", DefaultSessionTTL),
			PhotoMaxDimension: getEnvInt("PHOTO_MAX_DIMENSION", DefaultPhotoMaxDimension),
		},
		Events: EventsConfig{
			Topic:          getEnv("PUBSUB_TOPIC", ""),
			OutboxPath:     getEnv("OUTBOX_PATH", ""),
			OutboxInterval: getEnvDuration("OUTBOX_INTERVAL", DefaultOutboxInterval),
		},
		Logging: LoggingConfig{
			CloudLogging: getEnvBool("CLOUD_LOGGING", false),
			LogName:      getEnv("LOG_NAME", DefaultLogName),
			Level:        getEnv("LOG_LEVEL", "info"),
		},
		DashboardInterval: getEnvDuration("DASHBOARD_INTERVAL", DefaultDashboardInterval),
	}
}

// Location returns the attendance timezone, falling back to UTC when it can't be loaded.
func (a *AttendanceConfig) Location() *time.Location {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		logrus.Warnf("unknown timezone %q, using UTC", a.Timezone)
		return time.UTC
	}
	return loc
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		switch strings.ToLower(value) {
		case "1", "true", "t", "yes", "y", "on":
			return true
		case "0", "false", "f", "no", "n", "off":
			return false
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("15s") or a bare number of seconds.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}
