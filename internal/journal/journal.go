// Package journal 持久化每个周期内达成的事实，供审计与故障排查使用。
// 它是旁路存储：协议推进不依赖写入成功，但每一次轮次达成、执行者
// 当选和结算结论都应留下记录。
package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Record 是一条审计记录，对应一个轮次达成的事实或一次状态迁移。
type Record struct {
	ID        string `json:"id"`
	PeriodID  string `json:"period_id"`
	Round     string `json:"round"`
	Event     string `json:"event"`
	Detail    string `json:"detail"`
	CreatedAt int64  `json:"created_at"`
}

// NewRecord 构造一条带唯一标识与时间戳的记录。
func NewRecord(periodID, round, event, detail string) *Record {
	return &Record{
		ID:        uuid.NewString(),
		PeriodID:  periodID,
		Round:     round,
		Event:     event,
		Detail:    detail,
		CreatedAt: time.Now().Unix(),
	}
}

// Store 是审计记录的持久化接口。
type Store interface {
	Append(ctx context.Context, record *Record) error
	ListByPeriod(ctx context.Context, periodID string, limit int) ([]*Record, error)
	Recent(ctx context.Context, limit int) ([]*Record, error)
	Close() error
}
