package logger

import (
	"testing"

	"github.com/memberpanel/memberpanel/config"
	"github.com/op/go-logging"
	"github.com/stretchr/testify/assert"
)

func TestGetLogsFiltersBySeverity(t *testing.T) {
	bufferMu.Lock()
	logBuffer = nil
	bufferMu.Unlock()

	Info("signup for a@x.com")
	Warning("login failed for b@x.com")
	Errorf("session store unavailable: %s", "dial tcp")

	all := GetLogs(10, "DEBUG")
	assert.Len(t, all, 3)
	assert.Contains(t, all[0], "session store unavailable: dial tcp")

	warnings := GetLogs(10, "WARNING")
	assert.Len(t, warnings, 2)

	assert.Len(t, GetLogs(1, "DEBUG"), 1)
}

func TestParseLevel(t *testing.T) {
	level, err := ParseLevel(config.Warn)
	assert.NoError(t, err)
	assert.Equal(t, logging.WARNING, level)

	_, err = ParseLevel("verbose")
	assert.Error(t, err)
}
