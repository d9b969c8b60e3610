package journal

import (
	"context"
	"sync"

	xerrors "LiquiSafe-Chain/internal/errors"
)

// MemoryStore 将审计记录保留在内存中，用于单进程演练和测试。
type MemoryStore struct {
	mu      sync.RWMutex
	records []*Record
}

// NewMemoryStore 创建内存审计存储。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Append 追加一条记录。
func (s *MemoryStore) Append(_ context.Context, record *Record) error {
	if record == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "record 不能为空")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *record
	s.records = append(s.records, &clone)
	return nil
}

// ListByPeriod 返回指定周期的记录，按写入顺序排列。
func (s *MemoryStore) ListByPeriod(_ context.Context, periodID string, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Record, 0)
	for _, r := range s.records {
		if r.PeriodID != periodID {
			continue
		}
		clone := *r
		out = append(out, &clone)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Recent 返回最近写入的记录，最新的在前。
func (s *MemoryStore) Recent(_ context.Context, limit int) ([]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 || limit > len(s.records) {
		limit = len(s.records)
	}
	out := make([]*Record, 0, limit)
	for i := len(s.records) - 1; i >= 0 && len(out) < limit; i-- {
		clone := *s.records[i]
		out = append(out, &clone)
	}
	return out, nil
}

// Close 实现 Store 接口，内存实现无需释放资源。
func (s *MemoryStore) Close() error {
	return nil
}
