package logger

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// auditFile 是按大小滚动的审计日志文件。写满后当前文件改名为 .1，
// 既有备份依次后移，超过保留数量或保留时长的备份被删除。
type auditFile struct {
	mu      sync.Mutex
	path    string
	limit   int64
	backups int
	maxAge  time.Duration
	file    *os.File
	written int64
}

func newAuditFile(path string, maxSizeMB, maxBackups, maxAgeDays int) (*auditFile, error) {
	if path == "" {
		return nil, errors.New("审计日志路径不能为空")
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	if maxBackups <= 0 {
		maxBackups = 10
	}
	if maxAgeDays <= 0 {
		maxAgeDays = 90
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("创建审计日志目录失败: %w", err)
	}
	return &auditFile{
		path:    path,
		limit:   int64(maxSizeMB) << 20,
		backups: maxBackups,
		maxAge:  time.Duration(maxAgeDays) * 24 * time.Hour,
	}, nil
}

func (a *auditFile) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.open(); err != nil {
		return 0, err
	}
	if a.written+int64(len(p)) > a.limit {
		a.rotate()
		if err := a.open(); err != nil {
			return 0, err
		}
	}
	n, err := a.file.Write(p)
	a.written += int64(n)
	return n, err
}

func (a *auditFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	a.written = 0
	return err
}

func (a *auditFile) open() error {
	if a.file != nil {
		return nil
	}
	file, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开审计日志失败: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return fmt.Errorf("读取审计日志状态失败: %w", err)
	}
	a.file = file
	a.written = info.Size()
	return nil
}

func (a *auditFile) rotate() {
	if a.file != nil {
		_ = a.file.Close()
		a.file = nil
	}
	a.written = 0

	for i := a.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", a.path, i)
		if _, err := os.Stat(src); err == nil {
			_ = os.Rename(src, fmt.Sprintf("%s.%d", a.path, i+1))
		}
	}
	if _, err := os.Stat(a.path); err == nil {
		_ = os.Rename(a.path, a.path+".1")
	}

	cutoff := time.Now().Add(-a.maxAge)
	for i := 1; i <= a.backups; i++ {
		backup := fmt.Sprintf("%s.%d", a.path, i)
		info, err := os.Stat(backup)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(backup)
		}
	}
}
