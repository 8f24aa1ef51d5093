// Package logger builds the process-wide zap logger: readable console
// output plus a rotating JSON file for post-trade analysis.
package logger

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

// New returns a logger writing to stdout and to dir/llmtrader.json with
// rotation. Debug lowers the console level; the file always records INFO
// and above. Returns an error rather than panicking so the CLI can report
// a bad log directory cleanly.
func New(dir string, debug bool) (*zap.Logger, error) {
	if dir == "" {
		dir = "logs"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir %s: %w", dir, err)
	}

	consoleCfg := zap.NewDevelopmentEncoderConfig()
	consoleCfg.EncodeLevel = zapcore.CapitalColorLevelEncoder
	consoleCfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	consoleCfg.EncodeCaller = zapcore.ShortCallerEncoder
	consoleCore := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleCfg),
		zapcore.AddSync(os.Stdout),
		consoleLevel(debug),
	)

	fileCfg := zap.NewProductionEncoderConfig()
	fileCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(fileCfg),
		zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(dir, "llmtrader.json"),
			MaxSize:    10, // MB
			MaxBackups: 30,
			MaxAge:     30, // days
			Compress:   true,
		}),
		zapcore.InfoLevel,
	)

	log := zap.New(
		zapcore.NewTee(consoleCore, fileCore),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	zap.ReplaceGlobals(log)
	return log, nil
}

func consoleLevel(debug bool) zapcore.LevelEnabler {
	if debug {
		return zapcore.DebugLevel
	}
	return zapcore.InfoLevel
}
