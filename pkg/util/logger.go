package util

import (
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func InitZapLog() *zap.Logger {
	config := zap.NewProductionConfig()
	config.DisableStacktrace = true
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.DateTime + ".000")
	config.Encoding = "console"
	config.Level = zap.NewAtomicLevelAt(logLevelFromEnv())
	logger, _ := config.Build()
	return logger
}

// logLevelFromEnv 通过 LOG_LEVEL 环境变量调整日志级别，默认 debug
func logLevelFromEnv() zapcore.Level {
	switch os.Getenv("LOG_LEVEL") {
	case "info":
		return zap.InfoLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.DebugLevel
	}
}
