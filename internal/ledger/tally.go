package ledger

import (
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// 计票模式。不同轮次对"达成"的定义不同：多数表决要求同一取值获得
// 门限数量的票；收集模式只要求分片数量达到门限，不比较取值；
// 执行者模式只认指定执行者的那一条提案。
type tallyMode int

const (
	modeMostVoted tallyMode = iota
	modeCollection
	modeKeeperOnly
)

// Tally 对一个轮次内收到的提案计票。同一发送方只计第一票。
type Tally struct {
	mu     sync.Mutex
	round  string
	kind   Kind
	state  *PeriodState
	mode   tallyMode
	keeper common.Address
	votes  map[common.Address]string
}

// NewMostVotedTally 创建多数表决计票器：某一取值获得门限票数即达成。
func NewMostVotedTally(round string, kind Kind, state *PeriodState) *Tally {
	return &Tally{
		round: round,
		kind:  kind,
		state: state,
		mode:  modeMostVoted,
		votes: make(map[common.Address]string),
	}
}

// NewCollectionTally 创建收集计票器：不同发送方的分片达到门限即达成。
func NewCollectionTally(round string, kind Kind, state *PeriodState) *Tally {
	return &Tally{
		round: round,
		kind:  kind,
		state: state,
		mode:  modeCollection,
		votes: make(map[common.Address]string),
	}
}

// NewKeeperTally 创建执行者计票器：只有指定执行者的提案构成结论。
func NewKeeperTally(round string, kind Kind, state *PeriodState, keeper common.Address) *Tally {
	return &Tally{
		round:  round,
		kind:   kind,
		state:  state,
		mode:   modeKeeperOnly,
		keeper: keeper,
		votes:  make(map[common.Address]string),
	}
}

// Observe 将一条提案计入票箱。不属于本轮次、本周期或参与方集合的
// 提案被静默忽略，重复提案同样忽略。
func (t *Tally) Observe(p *Payload) {
	if p == nil || p.Round != t.round || p.Kind != t.kind || p.PeriodID != t.state.PeriodID {
		return
	}
	if !t.state.IsParticipant(p.Sender) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, seen := t.votes[p.Sender]; seen {
		return
	}
	t.votes[p.Sender] = p.Value
}

// MostVoted 返回获得门限票数的取值。第二个返回值表示是否已达成。
func (t *Tally) MostVoted() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	counts := make(map[string]int, len(t.votes))
	for _, value := range t.votes {
		counts[value]++
		if counts[value] >= t.state.Threshold {
			return value, true
		}
	}
	return "", false
}

// NoMajority 判断是否所有参与方都已投票却没有任何取值达到门限。
func (t *Tally) NoMajority() bool {
	if t.mode != modeMostVoted {
		return false
	}
	t.mu.Lock()
	voted := len(t.votes)
	t.mu.Unlock()
	if voted < len(t.state.Participants) {
		return false
	}
	_, concluded := t.MostVoted()
	return !concluded
}

// Collected 返回已收集的分片集合。第二个返回值表示数量是否达到门限。
func (t *Tally) Collected() (map[common.Address]string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.votes) < t.state.Threshold {
		return nil, false
	}
	out := make(map[common.Address]string, len(t.votes))
	for addr, value := range t.votes {
		out[addr] = value
	}
	return out, true
}

// KeeperValue 返回执行者提交的取值。第二个返回值表示是否已收到。
func (t *Tally) KeeperValue() (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	value, ok := t.votes[t.keeper]
	return value, ok
}

// Votes 返回当前已计入的票数，用于可观测性上报。
func (t *Tally) Votes() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.votes)
}
