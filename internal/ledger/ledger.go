package ledger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
)

// Kind 标识一条提案承载的事实类别，不同类别采用不同的达成规则。
type Kind string

const (
	// KindRandomness 提交本周期的共享随机数。
	KindRandomness Kind = "randomness"
	// KindSelectKeeper 提交本周期推举的执行者地址。
	KindSelectKeeper Kind = "select_keeper"
	// KindStrategy 提交策略评估结果的规范化编码。
	KindStrategy Kind = "strategy"
	// KindTxHash 提交各方独立推导出的批量交易哈希。
	KindTxHash Kind = "tx_hash"
	// KindSignature 提交对已达成哈希的门限签名分片。
	KindSignature Kind = "signature"
	// KindFinalTx 由执行者提交广播后的链上交易哈希。
	KindFinalTx Kind = "final_tx"
	// KindValidation 提交结算校验的布尔结论。
	KindValidation Kind = "validation"
	// KindSafeAddress 提交各方观察到的多签钱包地址。
	KindSafeAddress Kind = "safe_address"
	// KindReset 声明本方已准备好进入下一周期。
	KindReset Kind = "reset"
)

// Payload 是参与方之间交换的最小事实单元。同一参与方在同一轮次
// 只有第一条提案生效，后续重复提交会被计票器忽略。
type Payload struct {
	ID       uuid.UUID      `json:"id"`
	PeriodID string         `json:"period_id"`
	Round    string         `json:"round"`
	Sender   common.Address `json:"sender"`
	Kind     Kind           `json:"kind"`
	Value    string         `json:"value"`
	SentAt   time.Time      `json:"sent_at"`
}

// NewPayload 构造一条带唯一标识的提案。
func NewPayload(periodID, round string, sender common.Address, kind Kind, value string) *Payload {
	return &Payload{
		ID:       uuid.New(),
		PeriodID: periodID,
		Round:    round,
		Sender:   sender,
		Kind:     kind,
		Value:    value,
		SentAt:   time.Now().UTC(),
	}
}

// Encode 将提案序列化为在中继上传输的字节串。
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "序列化提案失败")
	}
	return data, nil
}

// DecodePayload 从中继收到的字节串还原提案。
func DecodePayload(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "解析提案失败")
	}
	return &p, nil
}

// Relay 是参与方之间的提案中继。Broadcast 把本方提案送达所有参与方
// （包括自己），Deliveries 按到达顺序吐出全部参与方的提案。
type Relay interface {
	Broadcast(ctx context.Context, payload *Payload) error
	Deliveries() <-chan *Payload
	Close() error
}

// PeriodState 承载一个周期内已经达成的全部事实。写操作返回新副本，
// 旧副本保持不变，协议层据此安全地在轮次间传递状态。
//
// PeriodID 由参与方集合、门限与周期序号确定性推导：各参与方不交换
// 任何消息就能得到相同的标识，跨进程的提案才能通过周期过滤。
type PeriodState struct {
	PeriodID     string
	Sequence     uint64
	Participants []common.Address
	Threshold    int

	SafeAddress common.Address
	Randomness  string
	Keeper      common.Address
	Strategy    string
	TxHash      string
	Signatures  map[common.Address]string
	FinalTxHash string
	Settled     bool
}

// NewPeriodState 以排序后的参与方集合创建首个周期。
func NewPeriodState(participants []common.Address, threshold int) (*PeriodState, error) {
	return newPeriodStateAt(participants, threshold, 0)
}

func newPeriodStateAt(participants []common.Address, threshold int, sequence uint64) (*PeriodState, error) {
	if len(participants) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "参与方集合不能为空")
	}
	if threshold <= 0 || threshold > len(participants) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("门限 %d 必须在 1 和参与方数量 %d 之间", threshold, len(participants)))
	}
	sorted := make([]common.Address, len(participants))
	copy(sorted, participants)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Hex() < sorted[j].Hex()
	})
	return &PeriodState{
		PeriodID:     derivePeriodID(sorted, threshold, sequence),
		Sequence:     sequence,
		Participants: sorted,
		Threshold:    threshold,
	}, nil
}

func derivePeriodID(sorted []common.Address, threshold int, sequence uint64) string {
	buf := make([]byte, 0, len(sorted)*common.AddressLength+16)
	for _, p := range sorted {
		buf = append(buf, p.Bytes()...)
	}
	buf = binary.BigEndian.AppendUint64(buf, uint64(threshold))
	buf = binary.BigEndian.AppendUint64(buf, sequence)
	digest := crypto.Keccak256(buf)
	return fmt.Sprintf("%d-%x", sequence, digest[:8])
}

func (s *PeriodState) clone() *PeriodState {
	next := *s
	next.Participants = make([]common.Address, len(s.Participants))
	copy(next.Participants, s.Participants)
	if s.Signatures != nil {
		next.Signatures = make(map[common.Address]string, len(s.Signatures))
		for addr, sig := range s.Signatures {
			next.Signatures[addr] = sig
		}
	}
	return &next
}

// WithSafeAddress 记录达成一致的多签钱包地址。
func (s *PeriodState) WithSafeAddress(addr common.Address) *PeriodState {
	next := s.clone()
	next.SafeAddress = addr
	return next
}

// WithRandomness 记录达成一致的共享随机数。
func (s *PeriodState) WithRandomness(randomness string) *PeriodState {
	next := s.clone()
	next.Randomness = randomness
	return next
}

// WithKeeper 记录达成一致的执行者。
func (s *PeriodState) WithKeeper(keeper common.Address) *PeriodState {
	next := s.clone()
	next.Keeper = keeper
	return next
}

// WithStrategy 记录达成一致的策略编码。
func (s *PeriodState) WithStrategy(strategy string) *PeriodState {
	next := s.clone()
	next.Strategy = strategy
	return next
}

// WithTxHash 记录达成一致的待签交易哈希。
func (s *PeriodState) WithTxHash(txHash string) *PeriodState {
	next := s.clone()
	next.TxHash = txHash
	return next
}

// WithSignatures 记录收集完成的门限签名分片。
func (s *PeriodState) WithSignatures(signatures map[common.Address]string) *PeriodState {
	next := s.clone()
	next.Signatures = make(map[common.Address]string, len(signatures))
	for addr, sig := range signatures {
		next.Signatures[addr] = sig
	}
	return next
}

// WithFinalTxHash 记录执行者广播后的链上交易哈希。
func (s *PeriodState) WithFinalTxHash(txHash string) *PeriodState {
	next := s.clone()
	next.FinalTxHash = txHash
	return next
}

// WithSettled 记录结算校验通过。
func (s *PeriodState) WithSettled(settled bool) *PeriodState {
	next := s.clone()
	next.Settled = settled
	return next
}

// NextPeriod 保留参与方与门限，丢弃周期内事实，周期序号递增。
func (s *PeriodState) NextPeriod() (*PeriodState, error) {
	return newPeriodStateAt(s.Participants, s.Threshold, s.Sequence+1)
}

// SortedParticipants 返回按地址升序排列的参与方副本。
func (s *PeriodState) SortedParticipants() []common.Address {
	out := make([]common.Address, len(s.Participants))
	copy(out, s.Participants)
	return out
}

// IsParticipant 判断地址是否属于本周期的参与方集合。
func (s *PeriodState) IsParticipant(addr common.Address) bool {
	for _, p := range s.Participants {
		if p == addr {
			return true
		}
	}
	return false
}
