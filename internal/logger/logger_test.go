package logger

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// capture redirects output to a buffer and restores the defaults after the
// test.
func capture(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetWriter(&buf)
	t.Cleanup(func() {
		SetLevel("INFO")
		SetFormat("text")
		require.NoError(t, SetOutput("stdout"))
	})
	return &buf
}

func TestLevelFiltering(t *testing.T) {
	buf := capture(t)
	SetLevel("WARN")

	Debug("debug %d", 1)
	Info("info %d", 2)
	Warn("warn %d", 3)
	Error("error %d", 4)

	out := buf.String()
	assert.NotContains(t, out, "debug 1")
	assert.NotContains(t, out, "info 2")
	assert.Contains(t, out, "[WARN] warn 3")
	assert.Contains(t, out, "[ERROR] error 4")
	assert.False(t, IsDebugEnabled())
}

func TestSetLevel_IgnoresUnknown(t *testing.T) {
	_ = capture(t)
	SetLevel("debug")
	SetLevel("verbose")
	assert.True(t, IsDebugEnabled())
}

func TestJSONFormat(t *testing.T) {
	buf := capture(t)
	SetFormat("json")

	Info("created %s", "/a/b.txt")

	var line map[string]string
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &line))
	assert.Equal(t, "INFO", line["level"])
	assert.Equal(t, "created /a/b.txt", line["msg"])
	assert.NotEmpty(t, line["time"])
}

func TestSetOutput_File(t *testing.T) {
	_ = capture(t)
	path := filepath.Join(t.TempDir(), "repo.log")

	require.NoError(t, Configure("INFO", "text", path))
	Info("to file")
	require.NoError(t, SetOutput("stderr"))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "[INFO] to file")
}

func TestSetOutput_BadPath(t *testing.T) {
	_ = capture(t)
	err := SetOutput(filepath.Join(t.TempDir(), "missing", "dir", "repo.log"))
	assert.Error(t, err)
}
