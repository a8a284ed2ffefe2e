package kitelog

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger encapsulates multiple logging handlers
type Logger struct {
	Default   *zap.SugaredLogger
	Durations Durations
}

// Interface encapsulates the relevant methods of log.Logger
type Interface interface {
	Printf(format string, v ...interface{})
	Println(v ...interface{})
}

// Options control the encoder and verbosity of a Logger
type Options struct {
	// JSON selects the JSON encoder instead of the console encoder
	JSON bool
	// Debug enables debug level output
	Debug bool
}

// New builds a Logger that writes errors to stderr and everything else to stdout.
func New(opts Options) *Logger {
	isErrorLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel
	})
	isInfoLevel := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		if !opts.Debug && lvl < zapcore.InfoLevel {
			return false
		}
		return lvl < zapcore.ErrorLevel
	})
	stdoutWriter := zapcore.Lock(os.Stdout)
	stderrWriter := zapcore.Lock(os.Stderr)

	config := zap.NewProductionEncoderConfig()
	config.EncodeTime = zapcore.RFC3339TimeEncoder

	var encoder zapcore.Encoder
	if opts.JSON {
		encoder = zapcore.NewJSONEncoder(config)
	} else {
		config.EncodeLevel = zapcore.CapitalLevelEncoder
		encoder = zapcore.NewConsoleEncoder(config)
	}

	core := zapcore.NewTee(
		zapcore.NewCore(encoder, stderrWriter, isErrorLevel),
		zapcore.NewCore(encoder, stdoutWriter, isInfoLevel),
	)
	return &Logger{
		Default: zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).Sugar(),
	}
}

// Basic is the process logger used by commands
var Basic = New(Options{})

// Nop discards everything, for tests
var Nop = &Logger{Default: zap.NewNop().Sugar()}

// With returns a derived Logger whose lines carry the given key/value pairs
func (l *Logger) With(kv ...interface{}) *Logger {
	return &Logger{Default: l.Default.With(kv...)}
}

// Printf implements Interface
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Default.Infof(format, v...)
}

// Println implements Interface
func (l *Logger) Println(v ...interface{}) {
	l.Default.Info(strings.TrimSuffix(fmt.Sprintln(v...), "\n"))
}

// Debugf logs at debug level
func (l *Logger) Debugf(format string, v ...interface{}) {
	l.Default.Debugf(format, v...)
}

// Infof logs at info level
func (l *Logger) Infof(format string, v ...interface{}) {
	l.Default.Infof(format, v...)
}

// Warnf logs at warn level
func (l *Logger) Warnf(format string, v ...interface{}) {
	l.Default.Warnf(format, v...)
}

// Errorf logs at error level
func (l *Logger) Errorf(format string, v ...interface{}) {
	l.Default.Errorf(format, v...)
}

// Sync flushes buffered entries
func (l *Logger) Sync() {
	l.Default.Sync()
}
