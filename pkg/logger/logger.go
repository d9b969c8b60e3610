// Package logger 提供全局结构化日志与结算审计日志。普通日志记录
// 协议推进过程，审计日志单独落盘并滚动保留，记录每一次轮次达成与
// 结算结论，供事后对账。
package logger

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Config 描述日志系统的行为。
type Config struct {
	// Level 取值 debug/info/warn/error，默认 info。
	Level string
	// Format 取值 json/text，默认 json。
	Format string
	// Outputs 是日志输出目标，支持 stdout、stderr 或文件路径。
	Outputs []string
	// Audit 控制结算审计日志。
	Audit AuditConfig
}

// AuditConfig 控制审计日志的落盘与滚动。
type AuditConfig struct {
	Enabled    bool
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu       sync.Mutex
	root     *slog.Logger
	audit    *slog.Logger
	cleanups []io.Closer
)

// Init 初始化全局日志器，重复调用是幂等的。
func Init(cfg Config) error {
	mu.Lock()
	defer mu.Unlock()
	if root != nil {
		return nil
	}

	handler, err := newHandler(cfg)
	if err != nil {
		return err
	}
	root = slog.New(handler)

	audit = root
	if cfg.Audit.Enabled {
		if cfg.Audit.Path == "" {
			root = nil
			return errors.New("启用审计日志时必须指定路径")
		}
		writer, err := newAuditFile(cfg.Audit.Path, cfg.Audit.MaxSizeMB, cfg.Audit.MaxBackups, cfg.Audit.MaxAgeDays)
		if err != nil {
			root = nil
			return err
		}
		cleanups = append(cleanups, writer)
		audit = slog.New(slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return nil
}

func newHandler(cfg Config) (slog.Handler, error) {
	outputs := cfg.Outputs
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	writers := make([]io.Writer, 0, len(outputs))
	for _, target := range outputs {
		switch strings.ToLower(target) {
		case "stdout":
			writers = append(writers, os.Stdout)
		case "stderr":
			writers = append(writers, os.Stderr)
		default:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return nil, fmt.Errorf("创建日志目录失败: %w", err)
			}
			file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
			if err != nil {
				return nil, fmt.Errorf("打开日志文件 %s 失败: %w", target, err)
			}
			cleanups = append(cleanups, file)
			writers = append(writers, file)
		}
	}

	var sink io.Writer = writers[0]
	if len(writers) > 1 {
		sink = io.MultiWriter(writers...)
	}

	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(sink, opts), nil
	}
	return slog.NewJSONHandler(sink, opts), nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// L 返回全局日志器，未初始化时退化为标准输出。
func L() *slog.Logger {
	mu.Lock()
	defer mu.Unlock()
	if root == nil {
		root = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
		audit = root
	}
	return root
}

// Audit 返回结算审计日志器。
func Audit() *slog.Logger {
	mu.Lock()
	a := audit
	mu.Unlock()
	if a == nil {
		return L()
	}
	return a
}

// Named 返回带组件标签的子日志器。
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync 关闭所有日志输出文件。
func Sync() error {
	mu.Lock()
	defer mu.Unlock()
	var err error
	for _, closer := range cleanups {
		err = errors.Join(err, closer.Close())
	}
	cleanups = nil
	return err
}
