package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gt06gateway/internal/config"
)

func TestZoneFormatter(t *testing.T) {
	loc := time.FixedZone("BRT", -3*3600)
	f := NewFormatter("text", loc, false)

	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC)
	entry.Message = "hello"

	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.Contains(t, string(out), "2024-01-02 12:00:00")
}

func TestJSONFormatter(t *testing.T) {
	f := NewFormatter("json", nil, false)
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "frame"
	out, err := f.Format(entry)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("{")))
}

func TestInitWritesFile(t *testing.T) {
	defer logrus.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "logs", "gateway.log")
	closer, err := Init(config.LogConfig{Level: "debug", FilePath: path, MaxSizeMB: 1})
	require.NoError(t, err)

	logrus.WithField("imei", "358899051025384").Info("device logged in")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), "imei=358899051025384"))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())
}

func TestLoadLocationFallback(t *testing.T) {
	assert.Equal(t, time.Local, LoadLocation("Not/AZone"))
	assert.Equal(t, time.Local, LoadLocation(""))
}
