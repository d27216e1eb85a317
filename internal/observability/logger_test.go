// internal/observability/logger_test.go
package observability

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xkilldash9x/cartwright/internal/config"
)

// memSink is an in-memory WriteSyncer so tests can assert on console output
// without juggling os.Stdout.
type memSink struct {
	strings.Builder
}

func (m *memSink) Sync() error { return nil }

func initForTest(t *testing.T, cfg config.LoggerConfig) *memSink {
	t.Helper()
	ResetForTest()
	t.Cleanup(ResetForTest)
	sink := &memSink{}
	Initialize(cfg, zapcore.Lock(zapcore.AddSync(sink)))
	return sink
}

func TestInitialize(t *testing.T) {
	t.Run("console format colorizes the level", func(t *testing.T) {
		sink := initForTest(t, config.LoggerConfig{
			Level:       "debug",
			Format:      "console",
			ServiceName: "TestService",
			Colors:      config.ColorConfig{Info: "green"},
		})

		GetLogger().Info("This is a test message.")

		output := sink.String()
		assert.Contains(t, output, "INFO")
		assert.Contains(t, output, "This is a test message.")
		assert.Contains(t, output, colorGreen)
		assert.Contains(t, output, colorReset)
	})

	t.Run("json format emits structured entries", func(t *testing.T) {
		sink := initForTest(t, config.LoggerConfig{
			Level:       "info",
			Format:      "json",
			ServiceName: "JSONTest",
		})

		GetLogger().Warn("This is a JSON message.", zap.String("key", "value"))

		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(sink.String()), &entry), "log output should be valid JSON")
		assert.Equal(t, "warn", entry["level"])
		assert.Equal(t, "JSONTest", entry["logger"])
		assert.Equal(t, "This is a JSON message.", entry["msg"])
		assert.Equal(t, "value", entry["key"])
	})

	t.Run("invalid level falls back to info", func(t *testing.T) {
		sink := initForTest(t, config.LoggerConfig{
			Level:  "nonsense",
			Format: "json",
		})

		GetLogger().Debug("should be suppressed")
		GetLogger().Info("should appear")

		output := sink.String()
		assert.NotContains(t, output, "should be suppressed")
		assert.Contains(t, output, "should appear")
	})

	t.Run("writes a rotated file when configured", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "cartwright-test.log")
		initForTest(t, config.LoggerConfig{
			Level:   "debug",
			Format:  "json",
			LogFile: logFile,
			MaxSize: 1,
		})

		GetLogger().Info("persisted entry")
		Sync()

		data, err := os.ReadFile(logFile)
		require.NoError(t, err)
		assert.Contains(t, string(data), "persisted entry")
	})
}

func TestGetLoggerBeforeInitialize(t *testing.T) {
	ResetForTest()
	t.Cleanup(ResetForTest)

	logger := GetLogger()
	require.NotNil(t, logger, "fallback logger must never be nil")
}
