package cloudlog

import (
	"context"
	"testing"

	logging "cloud.google.com/go/logging"
	"github.com/sirupsen/logrus"
)

func TestSeverity(t *testing.T) {
	cases := []struct {
		level logrus.Level
		want  logging.Severity
	}{
		{logrus.DebugLevel, logging.Debug},
		{logrus.InfoLevel, logging.Info},
		{logrus.WarnLevel, logging.Warning},
		{logrus.ErrorLevel, logging.Error},
		{logrus.FatalLevel, logging.Critical},
	}
	for _, tc := range cases {
		if got := severity(tc.level); got != tc.want {
			t.Errorf("severity(%s) = %v, want %v", tc.level, got, tc.want)
		}
	}
}

func TestSetupWithoutProject(t *testing.T) {
	Setup(context.Background(), "", "test", "debug")
	if working {
		t.Error("Setup without a project should not enable Cloud Logging")
	}
	if Logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("Logger level = %s, want debug", Logger.GetLevel())
	}
}
