// Package logger 提供本项目统一的日志系统
//
// 基于标准库 log/slog，支持：
//   - 按子系统配置日志级别
//   - 环境变量配置（P2PBENCH_LOG_LEVEL, P2PBENCH_LOG_FORMAT）
//   - 结构化日志
//
// 使用示例:
//
//	package session
//
//	import "github.com/gpauloski/libp2p-playground/internal/util/logger"
//
//	var log = logger.Logger("session")
//
//	func foo() {
//	    log.Info("relay dialed", "relay", addr)
//	    log.Error("reservation failed", "err", err)
//	}
//
// 环境变量配置:
//
//	# 所有子系统 info，engine 子系统 debug
//	P2PBENCH_LOG_LEVEL=engine=debug,info
//
//	# JSON 格式输出
//	P2PBENCH_LOG_FORMAT=json
package logger

import (
	"io"
	"log/slog"
	"sync"
)

var (
	// loggers 缓存各子系统的 Logger
	loggers sync.Map // map[string]*slog.Logger

	// handlers 缓存各子系统的 Handler（用于动态调整级别）
	handlers sync.Map // map[string]*subsystemHandler
)

// Logger 获取指定子系统的 Logger
//
// 同一子系统多次调用返回相同实例。级别由 P2PBENCH_LOG_LEVEL 决定。
func Logger(subsystem string) *slog.Logger {
	if l, ok := loggers.Load(subsystem); ok {
		return l.(*slog.Logger)
	}

	cfg := ConfigFromEnv()
	handler := newHandler(subsystem, cfg.LevelForSubsystem(subsystem), cfg.Format)
	l := slog.New(handler)

	actual, loaded := loggers.LoadOrStore(subsystem, l)
	if !loaded {
		handlers.Store(subsystem, handler)
	}
	return actual.(*slog.Logger)
}

// SetLevel 动态设置子系统的日志级别
func SetLevel(subsystem string, level slog.Level) {
	if h, ok := handlers.Load(subsystem); ok {
		h.(*subsystemHandler).SetLevel(level)
	}
}

// Discard 返回一个丢弃所有日志的 Logger
//
// 用于测试，避免日志输出干扰测试结果。
func Discard() *slog.Logger {
	return slog.New(discardHandler{})
}

// SetOutput 设置全局日志输出目标
//
// 所有已创建的 Logger 都通过动态 writer 输出，调用后立即生效。
func SetOutput(w io.Writer) {
	globalOutputMu.Lock()
	globalOutput = w
	globalOutputMu.Unlock()
}
