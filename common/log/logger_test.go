package log

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelThreshold(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "warn", DisableFile: true, Console: &buf})
	t.Cleanup(func() { Configure(Options{DisableFile: true}) })

	Infof("event=test action=skip")
	Warnf("event=test action=keep id=%d", 7)

	out := buf.String()
	assert.NotContains(t, out, "action=skip")
	assert.Contains(t, out, "action=keep id=7")
	assert.Contains(t, out, ":WARN:")
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Configure(Options{Level: "debug", Format: "json", DisableFile: true, Console: &buf})
	t.Cleanup(func() { Configure(Options{DisableFile: true}) })

	Debugf("event=test status=%s", "ok")

	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &payload))
	assert.Equal(t, "DEBUG", payload["level"])
	assert.Equal(t, "event=test status=ok", payload["message"])
	assert.Contains(t, payload["caller"], "TestJSONFormat")
}

func TestFileRotation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "app.log")
	var buf bytes.Buffer
	Configure(Options{FilePath: path, MaxSizeBytes: 64, Console: &buf})
	t.Cleanup(func() { Configure(Options{DisableFile: true}) })

	for i := 0; i < 5; i++ {
		Infof("event=rotation line=%d padding=%s", i, strings.Repeat("x", 20))
	}

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Greater(t, len(entries), 1)
}

func TestNextRotatedPathSkipsExisting(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	current := filepath.Join(dir, "app.log")
	taken := filepath.Join(dir, "app_20260102_030405_1.log")
	require.NoError(t, os.WriteFile(taken, []byte("x"), 0o644))

	next, err := nextRotatedPath(current, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "app_20260102_030405_2.log"), next)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DebugLevel, ParseLevel("DEBUG"))
	assert.Equal(t, WarnLevel, ParseLevel("warning"))
	assert.Equal(t, ErrorLevel, ParseLevel("error"))
	assert.Equal(t, InfoLevel, ParseLevel("bogus"))
}
