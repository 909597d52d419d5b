// Package logger provides wolfs' structured logger: a log/slog logger with
// an extra TRACE level below DEBUG, a choice of text or json output shape,
// and file-based rotation via lumberjack.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/wolfs-fs/wolfs/cfg"
)

// Extra severities beyond the four log/slog ships with.
const (
	LevelTrace = slog.LevelDebug - 4
	LevelDebug = slog.LevelDebug
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	// LevelOff is above any level ever logged; setting the program level
	// this high silences every call.
	LevelOff = slog.Level(1000)
)

const timeLayout = "01/02/2006 15:04:05.000000"

// loggerFactory holds the configuration defaultLogger was last built from,
// so SetLogFormat/SetLogSeverity can rebuild it without needing the caller to
// resupply everything.
type loggerFactory struct {
	file      *os.File
	sysWriter io.Writer
	format    string
	level     string

	logRotateConfig cfg.LogRotateConfig
}

func (f *loggerFactory) writer() io.Writer {
	if f.file != nil {
		return NewAsyncLogger(&lumberjack.Logger{
			Filename:   f.file.Name(),
			MaxSize:    f.logRotateConfig.MaxFileSizeMB,
			MaxBackups: f.logRotateConfig.BackupFileCount,
			Compress:   f.logRotateConfig.Compress,
		}, 1000)
	}
	if f.sysWriter != nil {
		return f.sysWriter
	}
	return os.Stderr
}

// createJsonOrTextHandler builds the slog.Handler matching f.format, writing
// to w and gated by programLevel. prefix is prepended to every message,
// letting tests isolate their own log lines from anything else writing
// through the same handler.
func (f *loggerFactory) createJsonOrTextHandler(w io.Writer, programLevel *slog.LevelVar, prefix string) slog.Handler {
	if f.format == "text" {
		return &textHandler{w: w, level: programLevel, prefix: prefix}
	}
	return &jsonHandler{w: w, level: programLevel, prefix: prefix}
}

func severityFor(l slog.Level) string {
	switch {
	case l < slog.LevelDebug:
		return cfg.TRACE
	case l < slog.LevelInfo:
		return cfg.DEBUG
	case l < slog.LevelWarn:
		return cfg.INFO
	case l < slog.LevelError:
		return cfg.WARNING
	default:
		return cfg.ERROR
	}
}

type textHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *textHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level.Level() }

func (h *textHandler) Handle(_ context.Context, r slog.Record) error {
	line := fmt.Sprintf("time=%q severity=%s message=%q\n", r.Time.Format(timeLayout), severityFor(r.Level), h.prefix+r.Message)
	_, err := h.w.Write([]byte(line))
	return err
}

func (h *textHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *textHandler) WithGroup(_ string) slog.Handler      { return h }

type jsonHandler struct {
	w      io.Writer
	level  *slog.LevelVar
	prefix string
}

func (h *jsonHandler) Enabled(_ context.Context, level slog.Level) bool { return level >= h.level.Level() }

type jsonTimestamp struct {
	Seconds int64 `json:"seconds"`
	Nanos   int   `json:"nanos"`
}

type jsonPayload struct {
	Timestamp jsonTimestamp `json:"timestamp"`
	Severity  string        `json:"severity"`
	Message   string        `json:"message"`
}

func (h *jsonHandler) Handle(_ context.Context, r slog.Record) error {
	p := jsonPayload{
		Timestamp: jsonTimestamp{Seconds: r.Time.Unix(), Nanos: r.Time.Nanosecond()},
		Severity:  severityFor(r.Level),
		Message:   h.prefix + r.Message,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return err
	}
	_, err = h.w.Write(append(b, '\n'))
	return err
}

func (h *jsonHandler) WithAttrs(_ []slog.Attr) slog.Handler { return h }
func (h *jsonHandler) WithGroup(_ string) slog.Handler      { return h }

// setLoggingLevel sets programLevel to the slog.Level matching a
// cfg.TRACE/DEBUG/INFO/WARNING/ERROR/OFF string, defaulting to INFO for an
// unrecognized value.
func setLoggingLevel(level string, programLevel *slog.LevelVar) {
	switch level {
	case cfg.TRACE:
		programLevel.Set(LevelTrace)
	case cfg.DEBUG:
		programLevel.Set(LevelDebug)
	case cfg.INFO:
		programLevel.Set(slog.LevelInfo)
	case cfg.WARNING:
		programLevel.Set(LevelWarn)
	case cfg.ERROR:
		programLevel.Set(LevelError)
	case cfg.OFF:
		programLevel.Set(LevelOff)
	default:
		programLevel.Set(slog.LevelInfo)
	}
}

var (
	defaultLoggerFactory *loggerFactory
	defaultLogger        *slog.Logger
)

func init() {
	defaultLoggerFactory = &loggerFactory{
		format:          "json",
		level:           cfg.INFO,
		sysWriter:       os.Stderr,
		logRotateConfig: cfg.DefaultLogRotateConfig(),
	}
	rebuildDefaultLogger()
}

func rebuildDefaultLogger() {
	programLevel := new(slog.LevelVar)
	setLoggingLevel(defaultLoggerFactory.level, programLevel)
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(defaultLoggerFactory.writer(), programLevel, ""))
}

// InitLogFile points the default logger at logConfig's file (or stderr, if
// FilePath is empty), format and severity.
func InitLogFile(logConfig cfg.LoggingConfig) error {
	var f *os.File
	var sysWriter io.Writer
	if logConfig.FilePath != "" {
		var err error
		f, err = os.OpenFile(string(logConfig.FilePath), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("logger: open log file %s: %w", logConfig.FilePath, err)
		}
	} else {
		sysWriter = os.Stderr
	}

	format := logConfig.Format
	if format == "" {
		format = "json"
	}

	defaultLoggerFactory = &loggerFactory{
		file:            f,
		sysWriter:       sysWriter,
		format:          format,
		level:           logConfig.Severity,
		logRotateConfig: logConfig.LogRotate,
	}
	rebuildDefaultLogger()
	return nil
}

// SetLogFormat switches the default logger's output shape without touching
// its destination or severity.
func SetLogFormat(format string) {
	defaultLoggerFactory.format = format
	rebuildDefaultLogger()
}

// SetLogSeverity switches the default logger's severity without touching
// its destination or format.
func SetLogSeverity(severity string) {
	defaultLoggerFactory.level = severity
	rebuildDefaultLogger()
}

func Tracef(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelTrace, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelDebug, fmt.Sprintf(format, args...))
}

func Infof(format string, args ...any) {
	defaultLogger.Log(context.Background(), slog.LevelInfo, fmt.Sprintf(format, args...))
}

func Warnf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelWarn, fmt.Sprintf(format, args...))
}

func Errorf(format string, args ...any) {
	defaultLogger.Log(context.Background(), LevelError, fmt.Sprintf(format, args...))
}

// Fatalf logs at ERROR severity and then terminates the process, for
// invariant violations the caller has nothing sensible to do but abort
// from.
func Fatalf(format string, args ...any) {
	Errorf(format, args...)
	os.Exit(1)
}

// stdLoggerWriter bridges defaultLogger to a *log.Logger at a fixed severity, for
// third-party APIs (jacobsa/fuse's MountConfig.ErrorLogger/DebugLogger) that
// want the standard library's logger type rather than slog.
type stdLoggerWriter struct {
	logf func(format string, args ...any)
}

func (w stdLoggerWriter) Write(p []byte) (int, error) {
	w.logf("%s", string(p))
	return len(p), nil
}

// NewStdErrorLogger returns a *log.Logger whose output lines are emitted
// through defaultLogger at ERROR severity.
func NewStdErrorLogger(prefix string) *log.Logger {
	return log.New(stdLoggerWriter{logf: Errorf}, prefix, 0)
}

// NewStdDebugLogger returns a *log.Logger whose output lines are emitted
// through defaultLogger at DEBUG severity.
func NewStdDebugLogger(prefix string) *log.Logger {
	return log.New(stdLoggerWriter{logf: Debugf}, prefix, 0)
}
