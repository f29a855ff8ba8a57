package observability

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
)

func resetGlobalLogger() {
	once = sync.Once{}
	globalLogger.Store(nil)
}

func TestNewConsoleColoursLevels(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := New(config.LoggerConfig{
		Level:       "debug",
		Format:      "console",
		ServiceName: "webauto",
		Colors:      config.ColorConfig{Info: "green", Warn: "no-such-colour"},
	}, zapcore.AddSync(buf))

	logger.Info("Workflow started")
	logger.Warn("Step failed, continuing")
	require.NoError(t, logger.Sync())

	out := buf.String()
	assert.Contains(t, out, ansiColors["green"]+"INFO"+ansiReset)
	assert.Contains(t, out, "\tWARN\t", "an unknown colour prints the bare level")
	assert.Contains(t, out, "webauto")
}

func TestNewJSONWithRunFields(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := New(config.LoggerConfig{Level: "info", Format: "json", ServiceName: "webauto"}, zapcore.AddSync(buf))

	RunLogger(logger.Named("workflow"), "tiktok_post", "run-1", "sess-1").Warn("Step failed, continuing")
	require.NoError(t, logger.Sync())

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.Equal(t, "webauto.workflow", entry["logger"])
	assert.Equal(t, "tiktok_post", entry[FieldWorkflow])
	assert.Equal(t, "run-1", entry[FieldRunID])
	assert.Equal(t, "sess-1", entry[FieldSessionID])
}

func TestNewLevelFiltering(t *testing.T) {
	buf := new(bytes.Buffer)
	logger := New(config.LoggerConfig{Level: "warn", Format: "json"}, zapcore.AddSync(buf))

	logger.Info("Polling")
	assert.Empty(t, buf.String())

	bad := New(config.LoggerConfig{Level: "chatty", Format: "json"}, zapcore.AddSync(buf))
	bad.Debug("hidden")
	bad.Info("shown")
	assert.NotContains(t, buf.String(), "hidden", "an unparsable level falls back to info")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewFileSinkOnly(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "webauto.log")
	logger := New(config.LoggerConfig{Level: "debug", Format: "console", LogFile: logFile, MaxSize: 1}, nil)

	JobLogger(logger, "job-7", "douyin_user").Error("Job failed")
	require.NoError(t, logger.Sync())

	content, err := os.ReadFile(logFile)
	require.NoError(t, err)
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(content, &entry), "the file sink is always JSON")
	assert.Equal(t, "job-7", entry[FieldJobID])
	assert.Equal(t, "douyin_user", entry[FieldWorkflow])
}

func TestNewWithoutSinksIsSilent(t *testing.T) {
	logger := New(config.LoggerConfig{Level: "debug"}, nil)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
}

func TestConsoleSink(t *testing.T) {
	assert.Nil(t, consoleSink(OutputNone))
	assert.NotNil(t, consoleSink(OutputStdout))
	assert.NotNil(t, consoleSink(OutputStderr))
	assert.NotNil(t, consoleSink(""))
}

func TestRunLogger(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)

	RunLogger(zap.New(core), "chatgpt_image", "run-2", "").Info("Workflow completed")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "chatgpt_image", fields[FieldWorkflow])
	assert.Equal(t, "run-2", fields[FieldRunID])
	assert.NotContains(t, fields, FieldSessionID, "an empty session is left out")
}

func TestInitializeLoggerOnce(t *testing.T) {
	resetGlobalLogger()
	t.Cleanup(resetGlobalLogger)

	InitializeLogger(config.LoggerConfig{Level: "info", Output: OutputNone, ServiceName: "first"})
	first := GetLogger()
	InitializeLogger(config.LoggerConfig{Level: "debug", Output: OutputStderr, ServiceName: "second"})

	assert.Same(t, first, GetLogger())
	assert.Same(t, first, globalLogger.Load())
}

func TestGetLoggerFallback(t *testing.T) {
	resetGlobalLogger()
	t.Cleanup(resetGlobalLogger)

	logger := GetLogger()
	require.NotNil(t, logger)
	assert.Nil(t, globalLogger.Load(), "the fallback is not installed")
	Sync()
}
