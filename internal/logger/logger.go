// Package logger builds the zap loggers used by the command line tool.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New returns a JSON logger teeing debug/info entries to out and warn and
// above to errOut. Debug entries are only emitted when debug is set.
func New(debug bool, out, errOut zapcore.WriteSyncer) *zap.Logger {
	// debug and info level enabler
	debugInfoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level == zapcore.DebugLevel || level == zapcore.InfoLevel
	})

	// info level enabler
	infoLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level == zapcore.InfoLevel
	})

	// warn, error and fatal level enabler
	warnErrorFatalLevel := zap.LevelEnablerFunc(func(level zapcore.Level) bool {
		return level >= zapcore.WarnLevel
	})

	encoderConfig := zap.NewProductionEncoderConfig()
	var lowLevel zapcore.LevelEnabler = infoLevel
	if debug {
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		lowLevel = debugInfoLevel
	}

	core := zapcore.NewTee(
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(out), lowLevel),
		zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig), zapcore.Lock(errOut), warnErrorFatalLevel),
	)
	return zap.New(core)
}
