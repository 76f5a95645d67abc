package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{"", INFO, false},
		{"debug", DEBUG, false},
		{" WARNING ", WARN, false},
		{"error", ERROR, false},
		{"trace", INFO, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	assert.Equal(t, "warn", WARN.String())
}

func TestNewLogger_SharedSinks(t *testing.T) {
	var console bytes.Buffer
	path := filepath.Join(t.TempDir(), "logs", "ogm.log")

	l, err := NewLogger(Config{Level: INFO, OutputFile: path, Console: &console, JSONFormat: true})
	require.NoError(t, err)

	l.Slog().Info("from slog", "component", "schema")
	l.Logrus().WithField("operation_id", "op-1").Info("from logrus")
	l.Slog().Debug("hidden")
	require.NoError(t, l.Close())

	lines := strings.Split(strings.TrimSpace(console.String()), "\n")
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal([]byte(line), &entry), line)
	}
	assert.Contains(t, lines[0], `"component":"schema"`)
	assert.Contains(t, lines[1], `"operation_id":"op-1"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, console.String(), string(data))
	assert.Equal(t, path, l.FilePath())
}

func TestRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ogm.log")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte("x"), 64), 0o644))
	require.NoError(t, os.WriteFile(path+".1", []byte("older"), 0o644))

	l, err := NewLogger(Config{OutputFile: path, Console: &bytes.Buffer{}, MaxSize: 32, MaxBackups: 3})
	require.NoError(t, err)
	defer l.Close()

	for i, want := range map[int]int{1: 64, 2: 5} {
		info, err := os.Stat(fmt.Sprintf("%s.%d", path, i))
		require.NoError(t, err)
		assert.Equal(t, int64(want), info.Size())
	}
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Zero(t, info.Size())
}

func TestInitialize_InstallsDefault(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var console bytes.Buffer
	l, err := Initialize(Config{Level: DEBUG, Console: &console})
	require.NoError(t, err)

	slog.Default().With("component", "neo4j").Debug("connected")
	assert.Contains(t, console.String(), "component=neo4j")
	assert.Same(t, l.Slog(), slog.Default())
	assert.NoError(t, Close())
}
