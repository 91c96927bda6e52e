package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/escrowhub/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "development", cfg: ForEnvironment("development")},
		{name: "production", cfg: ForEnvironment("production")},
		{name: "stderr", cfg: Config{Level: "debug", Format: "json", Output: "stderr"}},
		{name: "zero value", cfg: Config{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log, err := New(tt.cfg, "escrow-backend")
			require.NoError(t, err)
			require.NotNil(t, log)
		})
	}
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "escrow.log")

	log, err := New(Config{Level: "info", Format: "json", Output: path, TimeLayout: "2006-01-02"}, "escrow-backend")
	require.NoError(t, err)

	log.Debug("filtered out")
	log.Info("deposit registered")
	require.NoError(t, Sync(log))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "deposit registered")
	assert.Contains(t, string(data), `"service":"escrow-backend"`)
	assert.Contains(t, string(data), `"time":"`)
	assert.NotContains(t, string(data), "filtered out")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Output: filepath.Join(t.TempDir(), "missing", "escrow.log")}, "")
	assert.Error(t, err)

	_, err = New(Config{Level: "loud"}, "")
	assert.ErrorContains(t, err, "log level")
}

func TestForEnvironment(t *testing.T) {
	assert.Equal(t, "json", ForEnvironment("production").Format)
	assert.Equal(t, "console", ForEnvironment("staging").Format)
	assert.Equal(t, "info", ForEnvironment("development").Level)
}

func TestFromConfig(t *testing.T) {
	cfg := FromConfig(config.LogConfig{Level: "warn", Format: "json", Output: "stderr"})
	assert.Equal(t, Config{Level: "warn", Format: "json", Output: "stderr"}, cfg)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"", zapcore.InfoLevel},
		{"debug", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"WARN", zapcore.WarnLevel},
		{" warning ", zapcore.WarnLevel},
		{"Error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, err := ParseLevel(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, level)
		})
	}

	_, err := ParseLevel("bogus")
	assert.Error(t, err)
}
