package logger_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ms-ticket-lifecycle/internal/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoggerWritesCategoryAndMessage(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)

	log.LogTicket("MINT", "t1", "anchored")

	out := buf.String()
	assert.Contains(t, out, "TICKET")
	assert.Contains(t, out, "[MINT] t1 - anchored")
}

func TestLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(&buf)
	log.SetLevel(logger.WARN)

	log.Info("APP", "hidden")
	log.Warn("APP", "shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Contains(t, buf.String(), "logger_test.go")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, logger.DEBUG, logger.ParseLevel("debug"))
	assert.Equal(t, logger.WARN, logger.ParseLevel("warning"))
	assert.Equal(t, logger.ERROR, logger.ParseLevel("ERROR"))
	assert.Equal(t, logger.INFO, logger.ParseLevel(""))
}

func TestNewLoggerWritesJSONFile(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewLogger(dir)
	log.Error("DATABASE", "insert failed")
	log.Close()

	files, err := filepath.Glob(filepath.Join(dir, "ticket-lifecycle-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	var found bool
	for _, line := range strings.Split(strings.TrimSpace(string(raw)), "\n") {
		var entry logger.LogEntry
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		if entry.Category == "DATABASE" {
			found = true
			assert.Equal(t, "ERROR", entry.Level)
			assert.Equal(t, "insert failed", entry.Message)
		}
	}
	assert.True(t, found)
}

func TestDomainHelpersAttachFields(t *testing.T) {
	dir := t.TempDir()
	log := logger.NewLogger(dir)
	log.LogLedger("CONFIRMED", "abc123", "TRANSFER t1")
	log.Close()

	files, err := filepath.Glob(filepath.Join(dir, "ticket-lifecycle-*.log"))
	require.NoError(t, err)
	require.Len(t, files, 1)
	raw, err := os.ReadFile(files[0])
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	var entry logger.LogEntry
	require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &entry))
	assert.Equal(t, "LEDGER", entry.Category)
	assert.Equal(t, map[string]string{"action": "CONFIRMED", "tx_hash": "abc123"}, entry.Fields)
	assert.Equal(t, "logger_test.go", entry.File)
}
