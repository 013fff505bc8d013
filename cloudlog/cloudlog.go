// Package cloudlog takes care of setting up the process logger: logrus on stderr, with entries
// forwarded to Google Cloud Logging when a project is configured.
package cloudlog

import (
	"context"
	"fmt"

	logging "cloud.google.com/go/logging"
	"github.com/sirupsen/logrus"
)

var (
	// Logger is an already set up instance of *logrus.Logger
	Logger = newLogger()

	client  *logging.Client
	working bool
)

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return l
}

// Setup sets the log level and, if projectID is non-empty, attaches a hook that mirrors every
// entry into the Cloud Logging log logName. Failure to reach Cloud Logging is not fatal.
func Setup(ctx context.Context, projectID, logName, level string) {
	if lvl, err := logrus.ParseLevel(level); err == nil {
		Logger.SetLevel(lvl)
	}
	if projectID == "" {
		return
	}
	var err error
	client, err = logging.NewClient(ctx, projectID)
	if err != nil {
		Logger.WithError(err).Warn("Failed to create logging client")
		return
	}
	Logger.AddHook(&cloudHook{logger: client.Logger(logName)})
	working = true
}

// Close flushes pending Cloud Logging entries.
func Close() {
	if working && client != nil {
		if err := client.Close(); err != nil {
			Logger.WithError(err).Warn("Failed to close logging client")
		}
	}
}

// WithFields is a proxy for Logger.WithFields
func WithFields(fields logrus.Fields) *logrus.Entry {
	return Logger.WithFields(fields)
}

// WithError is a proxy for Logger.WithError
func WithError(err error) *logrus.Entry {
	return Logger.WithError(err)
}

// Print is a proxy for Logger.Print
func Print(v ...interface{}) {
	Logger.Print(v...)
}

// Println is a proxy for Logger.Println
func Println(v ...interface{}) {
	Logger.Println(v...)
}

// Printf is a proxy for Logger.Printf
func Printf(format string, v ...interface{}) {
	Logger.Printf(format, v...)
}

// Fatal is a proxy for Logger.Fatal
func Fatal(v ...interface{}) {
	Close()
	Logger.Fatal(v...)
}

// Fatalf is a proxy for Logger.Fatalf
func Fatalf(format string, v ...interface{}) {
	Close()
	Logger.Fatalf(format, v...)
}

type cloudHook struct {
	logger *logging.Logger
}

func (h *cloudHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *cloudHook) Fire(entry *logrus.Entry) error {
	payload := make(map[string]interface{}, len(entry.Data)+1)
	for k, v := range entry.Data {
		if err, ok := v.(error); ok {
			payload[k] = err.Error()
			continue
		}
		payload[k] = fmt.Sprint(v)
	}
	payload["message"] = entry.Message
	h.logger.Log(logging.Entry{
		Timestamp: entry.Time,
		Severity:  severity(entry.Level),
		Payload:   payload,
	})
	return nil
}

func severity(level logrus.Level) logging.Severity {
	switch level {
	case logrus.TraceLevel, logrus.DebugLevel:
		return logging.Debug
	case logrus.InfoLevel:
		return logging.Info
	case logrus.WarnLevel:
		return logging.Warning
	case logrus.ErrorLevel:
		return logging.Error
	case logrus.FatalLevel:
		return logging.Critical
	case logrus.PanicLevel:
		return logging.Emergency
	default:
		return logging.Default
	}
}
