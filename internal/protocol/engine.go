package protocol

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"LiquiSafe-Chain/internal/chain"
	"LiquiSafe-Chain/internal/contracts"
	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/journal"
	"LiquiSafe-Chain/internal/ledger"
	"LiquiSafe-Chain/internal/observability/alerting"
	"LiquiSafe-Chain/internal/observability/metrics"
	"LiquiSafe-Chain/internal/randomness"
	"LiquiSafe-Chain/internal/signer"
	"LiquiSafe-Chain/internal/strategy"
	"LiquiSafe-Chain/pkg/logger"

	"github.com/ethereum/go-ethereum/common"
)

const (
	defaultRoundTimeout    = 60 * time.Second
	defaultResetPause      = 30 * time.Second
	defaultReceiptAttempts = 30
	defaultReceiptInterval = 2 * time.Second
	defaultMaxRetries      = 5
)

// Config 是状态机的运行参数。
type Config struct {
	// Participants 是参与方集合，必须与所有参与方一致。
	Participants []common.Address
	// Threshold 是签名门限。
	Threshold int
	// SafeAddress 指向已部署的多签钱包，留空则由协议自行部署。
	SafeAddress common.Address
	// RoundTimeout 是单个轮次的达成时限。
	RoundTimeout time.Duration
	// ResetPause 是两个周期之间的观察停顿。
	ResetPause time.Duration
	// ReceiptAttempts 与 ReceiptInterval 共同构成回执轮询预算。
	ReceiptAttempts int
	ReceiptInterval time.Duration
	// MaxRetries 是连续失败轮次的上限，超出后状态机终止并告警。
	MaxRetries int
}

func (c *Config) applyDefaults() {
	if c.RoundTimeout <= 0 {
		c.RoundTimeout = defaultRoundTimeout
	}
	if c.ResetPause <= 0 {
		c.ResetPause = defaultResetPause
	}
	if c.ReceiptAttempts <= 0 {
		c.ReceiptAttempts = defaultReceiptAttempts
	}
	if c.ReceiptInterval <= 0 {
		c.ReceiptInterval = defaultReceiptInterval
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = defaultMaxRetries
	}
}

// Dependencies 聚合状态机需要的外部能力。
type Dependencies struct {
	Signer    signer.Signer
	Relay     ledger.Relay
	Client    chain.Client
	Encoder   *contracts.Encoder
	MultiSend common.Address
	Strategy  strategy.Provider
	Beacon    randomness.Source
}

// Engine 驱动一个参与方走完全部轮次。每个参与方进程运行一个 Engine，
// 它们通过中继交换提案，在本地独立计票得出相同结论。
type Engine struct {
	self       signer.Signer
	relay      ledger.Relay
	client     chain.Client
	encoder    *contracts.Encoder
	multisend  common.Address
	strategies strategy.Provider
	beacon     randomness.Source
	journal    journal.Store
	alerts     alerting.Dispatcher
	log        *slog.Logger
	cfg        Config
	phases     map[string]Phase

	mu      sync.RWMutex
	state   *ledger.PeriodState
	round   string
	retries int
}

// Option 调整 Engine 的可选组件。
type Option func(*Engine)

// WithJournal 启用审计存储。
func WithJournal(store journal.Store) Option {
	return func(e *Engine) { e.journal = store }
}

// WithAlerts 启用告警分发。
func WithAlerts(dispatcher alerting.Dispatcher) Option {
	return func(e *Engine) { e.alerts = dispatcher }
}

// WithLogger 覆盖默认日志器。
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// NewEngine 构造状态机实例。
func NewEngine(deps Dependencies, cfg Config, opts ...Option) (*Engine, error) {
	if deps.Signer == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供签名器")
	}
	if deps.Relay == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供提案中继")
	}
	if deps.Client == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供链客户端")
	}
	if deps.Encoder == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供合约编码器")
	}
	if deps.Strategy == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供策略来源")
	}
	if deps.Beacon == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供随机数信标")
	}
	if deps.MultiSend == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "multisend 合约地址不能为空")
	}
	cfg.applyDefaults()

	state, err := ledger.NewPeriodState(cfg.Participants, cfg.Threshold)
	if err != nil {
		return nil, err
	}
	self := deps.Signer.Address()
	if !state.IsParticipant(self) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("本方地址 %s 不在参与方集合中", self.Hex()))
	}

	round := RoundDeploySafeRandomness
	if cfg.SafeAddress != (common.Address{}) {
		state = state.WithSafeAddress(cfg.SafeAddress)
		round = RoundStrategyEvaluation
	}

	e := &Engine{
		self:       deps.Signer,
		relay:      deps.Relay,
		client:     deps.Client,
		encoder:    deps.Encoder,
		multisend:  deps.MultiSend,
		strategies: deps.Strategy,
		beacon:     deps.Beacon,
		log:        logger.Named("protocol"),
		cfg:        cfg,
		phases:     buildPhases(),
		state:      state,
		round:      round,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run 驱动状态机直至上下文取消或遇到不可恢复错误。
func (e *Engine) Run(ctx context.Context) error {
	e.log.Info("状态机启动",
		"round", e.round, "period_id", e.currentState().PeriodID,
		"participants", len(e.cfg.Participants), "threshold", e.cfg.Threshold)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		round := e.currentRound()
		phase, ok := e.phases[round]
		if !ok {
			return xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("未注册的轮次: %s", round))
		}

		state := e.currentState()
		start := time.Now()
		event, next, err := e.runPhase(ctx, phase, state)
		if err != nil {
			return err
		}
		elapsed := time.Since(start)
		metrics.ObserveRound(round, string(event), elapsed)
		// 记录达成后的状态，让本轮确立的事实出现在本轮的记录里。
		e.record(ctx, next, round, event)
		e.log.Info("轮次结束",
			"round", round, "event", string(event),
			"period_id", state.PeriodID, "elapsed", elapsed.String())

		if event == EventDone || event == EventWait {
			e.setRetries(0)
		} else {
			retries := e.bumpRetries()
			if retries > e.cfg.MaxRetries {
				err := xerrors.New(xerrors.CodeRoundTimeout,
					fmt.Sprintf("轮次 %s 连续失败 %d 次，超出重试上限", round, retries),
					xerrors.WithAlert(true), xerrors.WithSeverity(xerrors.SeverityCritical))
				e.alert(ctx, state, round, err)
				return err
			}
		}

		nextRound, ok := NextRound(round, event)
		if !ok {
			err := xerrors.New(xerrors.CodeUnknown,
				fmt.Sprintf("轮次 %s 无法处理事件 %s", round, event),
				xerrors.WithAlert(true), xerrors.WithSeverity(xerrors.SeverityCritical))
			e.alert(ctx, state, round, err)
			return err
		}
		e.advance(nextRound, next)
	}
}

// runPhase 执行单个轮次：行动、广播、计票直至达成或超时。
func (e *Engine) runPhase(ctx context.Context, phase Phase, state *ledger.PeriodState) (Event, *ledger.PeriodState, error) {
	tally := phase.NewTally(state)

	payload, err := phase.Act(ctx, e, state)
	if err != nil {
		if ctx.Err() != nil {
			return "", state, ctx.Err()
		}
		e.log.Error("轮次行动失败", "round", phase.Round(), "error", err)
		if xerrors.ShouldAlert(err) {
			e.alert(ctx, state, phase.Round(), err)
		}
		if xerrors.SeverityOf(err) == xerrors.SeverityCritical {
			return "", state, err
		}
		return EventError, state, nil
	}
	if payload != nil {
		if err := e.relay.Broadcast(ctx, payload); err != nil {
			if ctx.Err() != nil {
				return "", state, ctx.Err()
			}
			e.log.Error("广播提案失败", "round", phase.Round(), "error", err)
			return EventError, state, nil
		}
	}

	timer := time.NewTimer(e.cfg.RoundTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", state, ctx.Err()
		case <-timer.C:
			return EventRoundTimeout, state, nil
		case delivery, ok := <-e.relay.Deliveries():
			if !ok {
				return "", state, xerrors.New(xerrors.CodeLedgerFailure, "提案中继已关闭")
			}
			tally.Observe(delivery)
			if event, next, done := phase.Conclude(tally, state); done {
				return event, next, nil
			}
		}
	}
}

// pause 在周期之间等待观察窗口。
func (e *Engine) pause(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(e.cfg.ResetPause):
		return nil
	}
}

func (e *Engine) record(ctx context.Context, state *ledger.PeriodState, round string, event Event) {
	detail := e.recordDetail(state)
	logger.Audit().Info("轮次达成",
		"period_id", state.PeriodID, "round", round, "event", string(event), "detail", detail)
	if e.journal == nil {
		return
	}
	rec := journal.NewRecord(state.PeriodID, round, string(event), detail)
	if err := e.journal.Append(ctx, rec); err != nil {
		e.log.Warn("写入审计记录失败", "round", round, "error", err)
	}
}

func (e *Engine) recordDetail(state *ledger.PeriodState) string {
	parts := make([]string, 0, 4)
	if state.Keeper != (common.Address{}) {
		parts = append(parts, "keeper="+state.Keeper.Hex())
	}
	if state.SafeAddress != (common.Address{}) {
		parts = append(parts, "safe="+state.SafeAddress.Hex())
	}
	if state.TxHash != "" {
		parts = append(parts, "tx_hash="+state.TxHash)
	}
	if state.FinalTxHash != "" {
		parts = append(parts, "final_tx="+state.FinalTxHash)
	}
	if state.Settled {
		parts = append(parts, "settled=true")
	}
	return strings.Join(parts, " ")
}

func (e *Engine) alert(ctx context.Context, state *ledger.PeriodState, round string, cause error) {
	if e.alerts == nil {
		return
	}
	event := alerting.Event{
		Code:       xerrors.CodeOf(cause),
		Message:    cause.Error(),
		Severity:   xerrors.SeverityOf(cause),
		PeriodID:   state.PeriodID,
		Round:      round,
		Keeper:     state.Keeper.Hex(),
		Attempts:   e.currentRetries(),
		MaxRetries: e.cfg.MaxRetries,
		OccurredAt: time.Now(),
	}
	if err := e.alerts.Notify(ctx, event); err != nil {
		e.log.Warn("发送告警失败", "round", round, "error", err)
	}
}

func (e *Engine) currentState() *ledger.PeriodState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

func (e *Engine) currentRound() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.round
}

func (e *Engine) currentRetries() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.retries
}

func (e *Engine) setRetries(n int) {
	e.mu.Lock()
	e.retries = n
	e.mu.Unlock()
}

func (e *Engine) bumpRetries() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.retries++
	return e.retries
}

func (e *Engine) advance(round string, state *ledger.PeriodState) {
	e.mu.Lock()
	e.round = round
	e.state = state
	e.mu.Unlock()
}

// Snapshot 是对外暴露的状态机快照，供状态接口查询。
type Snapshot struct {
	Round        string   `json:"round"`
	PeriodID     string   `json:"period_id"`
	SafeAddress  string   `json:"safe_address,omitempty"`
	Keeper       string   `json:"keeper,omitempty"`
	Randomness   string   `json:"randomness,omitempty"`
	TxHash       string   `json:"tx_hash,omitempty"`
	FinalTxHash  string   `json:"final_tx_hash,omitempty"`
	Settled      bool     `json:"settled"`
	Participants []string `json:"participants"`
	Threshold    int      `json:"threshold"`
	Retries      int      `json:"retries"`
}

// Snapshot 返回当前状态机的只读快照。
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	state := e.state
	snap := Snapshot{
		Round:     e.round,
		PeriodID:  state.PeriodID,
		Settled:   state.Settled,
		Threshold: state.Threshold,
		Retries:   e.retries,
	}
	if state.SafeAddress != (common.Address{}) {
		snap.SafeAddress = state.SafeAddress.Hex()
	}
	if state.Keeper != (common.Address{}) {
		snap.Keeper = state.Keeper.Hex()
	}
	snap.Randomness = state.Randomness
	snap.TxHash = state.TxHash
	snap.FinalTxHash = state.FinalTxHash
	for _, p := range state.Participants {
		snap.Participants = append(snap.Participants, p.Hex())
	}
	return snap
}
