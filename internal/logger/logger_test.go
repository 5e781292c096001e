package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_WithValidConfig(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:   "valid json config stdout",
			config: Config{Level: "debug", Format: "json", Output: "stdout"},
		},
		{
			name:   "valid text config stderr",
			config: Config{Level: "info", Format: "text", Output: "stderr"},
		},
		{
			name:   "empty output and format default to json on stdout",
			config: Config{Level: "warn"},
		},
		{
			name:    "invalid level",
			config:  Config{Level: "invalid", Format: "json", Output: "stdout"},
			wantErr: true,
		},
		{
			name:    "invalid format",
			config:  Config{Level: "debug", Format: "xml", Output: "stdout"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, log)
		})
	}
}

func TestNew_FileOutputRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "ecardcut.log")

	log, err := New(Config{Level: "info", Format: "json", Output: path, MaxSizeMB: 1, MaxBackups: 2})
	require.NoError(t, err)

	log.Info("written to file", Field{Key: "k", Value: "v"})
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestLogger_Levels(t *testing.T) {
	buf := &bytes.Buffer{}
	log := createTestLogger(t, buf, "json")

	log.Debug("debug message", Field{Key: "test", Value: "value"})
	log.Info("info message")
	log.Warn("warn message", Field{Key: "key", Value: "value"})
	log.Error("error message", errors.New("boom"), Field{Key: "context", Value: "value"})

	output := buf.String()
	for _, want := range []string{"debug message", "info message", "warn message", "error message", "boom"} {
		assert.Contains(t, output, want)
	}
}

func TestLogger_ContextVariants(t *testing.T) {
	buf := &bytes.Buffer{}
	log := createTestLogger(t, buf, "json")
	ctx := context.Background()

	log.DebugCtx(ctx, "debug with context")
	log.InfoCtx(ctx, "info with context")
	log.WarnCtx(ctx, "warn with context")
	log.ErrorCtx(ctx, "error with context", errors.New("ctx failure"))

	output := buf.String()
	for _, want := range []string{"debug with context", "info with context", "warn with context", "ctx failure"} {
		assert.Contains(t, output, want)
	}
}

func TestLogger_WithAndComponent(t *testing.T) {
	buf := &bytes.Buffer{}
	log := createTestLogger(t, buf, "json")

	log.Component("cleanup").With(Field{Key: "dir", Value: "uploads"}).Info("message with fields")

	var record map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
	assert.Equal(t, "cleanup", record["component"])
	assert.Equal(t, "uploads", record["dir"])
	assert.Equal(t, "message with fields", record["msg"])
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantInfo  bool
		wantWarn  bool
	}{
		{level: "debug", wantDebug: true, wantInfo: true, wantWarn: true},
		{level: "info", wantInfo: true, wantWarn: true},
		{level: "warn", wantWarn: true},
		{level: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			buf := &bytes.Buffer{}
			log, err := NewWithWriter(buf, tt.level, "text")
			require.NoError(t, err)

			log.Debug("debug message")
			log.Info("info message")
			log.Warn("warn message")
			log.Error("error message", nil)

			output := buf.String()
			assert.Equal(t, tt.wantDebug, strings.Contains(output, "debug message"))
			assert.Equal(t, tt.wantInfo, strings.Contains(output, "info message"))
			assert.Equal(t, tt.wantWarn, strings.Contains(output, "warn message"))
			assert.Contains(t, output, "error message")
		})
	}
}

func TestNop(t *testing.T) {
	log := Nop()
	log.Info("dropped")
	log.Error("dropped", errors.New("x"))
	assert.NoError(t, log.Close())
}

func createTestLogger(t *testing.T, buf *bytes.Buffer, format string) *Logger {
	t.Helper()

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return &Logger{slog: slog.New(handler)}
}

func BenchmarkLogger_Info(b *testing.B) {
	log, _ := NewWithWriter(io.Discard, "info", "json")

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		log.Info("benchmark info message", Field{Key: "iteration", Value: i})
	}
}
