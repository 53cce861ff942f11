// Package logging 构建 zap 日志：JSON 输出到 stderr，配置了日志文件时同时写入按大小滚动的文件。
package logging

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"

	"hyperliquid-market-aggregator/internal/config"
)

// New 创建日志
// 参数 cfg: 应用配置，LogLevel 无法解析时使用 info
// 返回: 日志与关闭函数（刷新缓冲并关闭滚动文件）
func New(cfg config.AppConfig) (*zap.Logger, func()) {
	lvl := zapcore.InfoLevel
	if err := lvl.Set(cfg.LogLevel); err != nil {
		lvl = zapcore.InfoLevel
	}
	level := zap.NewAtomicLevelAt(lvl)

	encCfg := zap.NewProductionEncoderConfig()
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder
	encoder := zapcore.NewJSONEncoder(encCfg)

	cores := []zapcore.Core{
		zapcore.NewCore(encoder, zapcore.Lock(os.Stderr), level),
	}

	var rotator *lumberjack.Logger
	if cfg.LogFile != "" {
		rotator = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    max(1, cfg.LogMaxSizeMB),
			MaxBackups: cfg.LogMaxBackups,
			Compress:   true,
		}
		cores = append(cores, zapcore.NewCore(encoder, zapcore.AddSync(rotator), level))
	}

	logger := zap.New(zapcore.NewTee(cores...), zap.AddCaller())
	if cfg.Name != "" {
		logger = logger.With(zap.String("app", cfg.Name))
	}

	closeFn := func() {
		_ = logger.Sync()
		if rotator != nil {
			_ = rotator.Close()
		}
	}
	return logger, closeFn
}
