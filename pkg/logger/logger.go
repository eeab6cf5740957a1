package logger

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var Log = zap.NewNop()

// InitLogger builds the global logger. release mode logs JSON at info, any
// other mode logs coloured console output at debug. level overrides either.
func InitLogger(mode, level string) {
	var config zap.Config

	if mode == "release" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	if level != "" {
		if lvl, err := zap.ParseAtomicLevel(level); err == nil {
			config.Level = lvl
		}
	}

	config.OutputPaths = []string{"stdout"}
	var err error
	Log, err = config.Build()
	if err != nil {
		os.Exit(1)
	}
	zap.ReplaceGlobals(Log)
}

// Match returns a child logger tagged with a match's game id.
func Match(gameID string) *zap.Logger {
	return Log.With(zap.String("gameID", gameID))
}
