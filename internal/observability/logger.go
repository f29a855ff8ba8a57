package observability

import (
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/nmthangdn2000/web-automation-tools/internal/config"
)

// Field keys shared by every component that logs about a run.
const (
	FieldRunID     = "run_id"
	FieldWorkflow  = "workflow"
	FieldSessionID = "session_id"
	FieldJobID     = "job_id"
)

// Console sinks accepted by logger.output.
const (
	OutputStderr = "stderr"
	OutputStdout = "stdout"
	OutputNone   = "none"
)

var (
	globalLogger atomic.Pointer[zap.Logger]
	once         sync.Once
)

const ansiReset = "\x1b[0m"

var ansiColors = map[string]string{
	"black":   "\x1b[30m",
	"red":     "\x1b[31m",
	"green":   "\x1b[32m",
	"yellow":  "\x1b[33m",
	"blue":    "\x1b[34m",
	"magenta": "\x1b[35m",
	"cyan":    "\x1b[36m",
	"white":   "\x1b[37m",
}

// InitializeLogger installs the process logger described by cfg. Only the
// first call has an effect.
func InitializeLogger(cfg config.LoggerConfig) {
	once.Do(func() {
		install(New(cfg, consoleSink(cfg.Output)))
	})
}

func install(logger *zap.Logger) {
	globalLogger.Store(logger)
	zap.ReplaceGlobals(logger)
	zap.RedirectStdLog(logger)
}

// consoleSink maps logger.output to a writer. Results go to stdout, so logs
// default to stderr. A nil sink means no console core.
func consoleSink(output string) zapcore.WriteSyncer {
	switch output {
	case OutputNone:
		return nil
	case OutputStdout:
		return zapcore.Lock(os.Stdout)
	default:
		return zapcore.Lock(os.Stderr)
	}
}

// New builds a logger writing to console in cfg.Format and, when cfg.LogFile
// is set, to a rotated JSON file. With neither sink the logger is a no-op.
func New(cfg config.LoggerConfig, console zapcore.WriteSyncer) *zap.Logger {
	level := zap.NewAtomicLevel()
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level.SetLevel(zap.InfoLevel)
	}

	var cores []zapcore.Core
	if console != nil {
		cores = append(cores, zapcore.NewCore(encoder(cfg.Format, cfg.Colors), console, level))
	}
	if cfg.LogFile != "" {
		cores = append(cores, zapcore.NewCore(encoder("json", cfg.Colors), zapcore.AddSync(rotated(cfg)), level))
	}
	if len(cores) == 0 {
		return zap.NewNop()
	}

	options := []zap.Option{zap.AddStacktrace(zap.ErrorLevel)}
	if cfg.AddSource {
		options = append(options, zap.AddCaller())
	}
	logger := zap.New(zapcore.NewTee(cores...), options...)
	if cfg.ServiceName != "" {
		logger = logger.Named(cfg.ServiceName)
	}
	return logger
}

func rotated(cfg config.LoggerConfig) io.Writer {
	return &lumberjack.Logger{
		Filename:   cfg.LogFile,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   cfg.Compress,
	}
}

func encoder(format string, colors config.ColorConfig) zapcore.Encoder {
	ec := zap.NewProductionEncoderConfig()
	ec.EncodeTime = zapcore.ISO8601TimeEncoder
	if format == "json" {
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewJSONEncoder(ec)
	}
	ec.EncodeLevel = levelEncoder(colors)
	return zapcore.NewConsoleEncoder(ec)
}

// levelEncoder wraps each level name in the ANSI colour configured for it.
// Unknown or empty colour names print the bare level.
func levelEncoder(colors config.ColorConfig) zapcore.LevelEncoder {
	byLevel := map[zapcore.Level]string{
		zapcore.DebugLevel:  ansiColors[colors.Debug],
		zapcore.InfoLevel:   ansiColors[colors.Info],
		zapcore.WarnLevel:   ansiColors[colors.Warn],
		zapcore.ErrorLevel:  ansiColors[colors.Error],
		zapcore.DPanicLevel: ansiColors[colors.DPanic],
		zapcore.PanicLevel:  ansiColors[colors.Panic],
		zapcore.FatalLevel:  ansiColors[colors.Fatal],
	}
	return func(l zapcore.Level, enc zapcore.PrimitiveArrayEncoder) {
		if c := byLevel[l]; c != "" {
			enc.AppendString(c + l.CapitalString() + ansiReset)
			return
		}
		enc.AppendString(l.CapitalString())
	}
}

// RunLogger returns the child logger every step of one workflow run logs
// through.
func RunLogger(base *zap.Logger, workflow, runID, sessionID string) *zap.Logger {
	fields := []zap.Field{zap.String(FieldWorkflow, workflow), zap.String(FieldRunID, runID)}
	if sessionID != "" {
		fields = append(fields, SessionID(sessionID))
	}
	return base.With(fields...)
}

// JobLogger returns the child logger for one queued engine job.
func JobLogger(base *zap.Logger, jobID, workflow string) *zap.Logger {
	return base.With(zap.String(FieldJobID, jobID), zap.String(FieldWorkflow, workflow))
}

func SessionID(id string) zap.Field { return zap.String(FieldSessionID, id) }

// GetLogger returns the process logger, or a development logger named
// "fallback" before InitializeLogger has run.
func GetLogger() *zap.Logger {
	if logger := globalLogger.Load(); logger != nil {
		return logger
	}
	l, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return l.Named("fallback")
}

// Sync flushes buffered entries on exit.
func Sync() {
	logger := globalLogger.Load()
	if logger == nil {
		return
	}
	if err := logger.Sync(); err != nil {
		fmt.Fprintln(os.Stderr, "Error: failed to sync logger:", err)
	}
}
