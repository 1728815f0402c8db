package logging

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var logger atomic.Pointer[zap.Logger]

// InitLogger 初始化全局日志器（生产环境输出JSON，开发环境彩色控制台）
func InitLogger(production bool) error {
	var config zap.Config

	if production {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	built, err := config.Build()
	if err != nil {
		return err
	}

	logger.Store(built)
	return nil
}

var (
	initOnce sync.Once
	initErr  error
)

// InitOnce 只在冷启动时初始化一次（Vercel 函数每次调用都会进入入口）
func InitOnce(production bool) error {
	initOnce.Do(func() {
		initErr = InitLogger(production)
	})
	return initErr
}

// L returns the process logger. Before InitLogger runs it is a no-op logger.
func L() *zap.Logger {
	if l := logger.Load(); l != nil {
		return l
	}
	return zap.NewNop()
}

// SetLogger replaces the process logger (used by tests with zaptest/observer loggers)
func SetLogger(l *zap.Logger) {
	if l == nil {
		l = zap.NewNop()
	}
	logger.Store(l)
}

// Sync flushes buffered entries
func Sync() {
	_ = L().Sync()
}
