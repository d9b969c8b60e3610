// Package randomness 提供周期随机数的来源。随机数用于推举执行者，
// 必须来自所有参与方都能独立观察到的信标，而不是任何一方的本地熵。
package randomness

import (
	"context"
)

// Observation 是一次信标观测：轮次编号与该轮次发布的随机值。
type Observation struct {
	Round      uint64 `json:"round"`
	Randomness string `json:"randomness"`
}

// Source 是随机数信标的抽象。
type Source interface {
	// Latest 返回信标当前最新一轮的观测值。
	Latest(ctx context.Context) (*Observation, error)
}
