package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")

	l, err := New(Options{Level: "info", File: path})
	require.NoError(t, err)

	l.Named("embedding").Info("submission finished")
	l.Debug("dropped below level")
	require.NoError(t, l.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `"message":"submission finished"`)
	assert.Contains(t, out, `"logger":"embedding"`)
	assert.False(t, strings.Contains(out, "dropped below level"))
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewWithoutOutputsIsNop(t *testing.T) {
	l, err := New(Options{Level: "debug"})
	require.NoError(t, err)
	l.Info("nowhere")
}

func TestOrNop(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
}
