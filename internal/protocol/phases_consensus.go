package protocol

import (
	"context"

	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/ledger"
	"LiquiSafe-Chain/internal/liquidity"
	"LiquiSafe-Chain/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// randomnessPhase 从信标读取最新随机值并与其他参与方比对。门限数量
// 的参与方观察到同一轮信标值后，该值成为本周期的共享随机数。
type randomnessPhase struct {
	round string
}

func (p *randomnessPhase) Round() string { return p.round }

func (p *randomnessPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(p.round, ledger.KindRandomness, state)
}

func (p *randomnessPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	obs, err := e.beacon.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindRandomness, obs.Randomness), nil
}

func (p *randomnessPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if value, ok := tally.MostVoted(); ok {
		return EventDone, state.WithRandomness(value), true
	}
	if tally.NoMajority() {
		return EventNoMajority, state, true
	}
	return "", state, false
}

// selectKeeperPhase 用共享随机数确定性地推举执行者。投票只是交叉
// 验证：诚实参与方的计算结果必然一致。
type selectKeeperPhase struct {
	round string
}

func (p *selectKeeperPhase) Round() string { return p.round }

func (p *selectKeeperPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(p.round, ledger.KindSelectKeeper, state)
}

func (p *selectKeeperPhase) Act(_ context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if state.Randomness == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "推举执行者前必须先达成随机数")
	}
	keeper := SelectKeeper(state.Randomness, state.SortedParticipants())
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindSelectKeeper, keeper.Hex()), nil
}

func (p *selectKeeperPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if value, ok := tally.MostVoted(); ok {
		return EventDone, state.WithKeeper(common.HexToAddress(value)), true
	}
	if tally.NoMajority() {
		return EventNoMajority, state, true
	}
	return "", state, false
}

// strategyPhase 各自评估策略并广播规范化编码。达成 WAIT 表示当前
// 持仓最优，本周期直接进入重置。
type strategyPhase struct{}

func (p *strategyPhase) Round() string { return RoundStrategyEvaluation }

func (p *strategyPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(RoundStrategyEvaluation, ledger.KindStrategy, state)
}

func (p *strategyPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	params, err := e.strategies.GetStrategy(ctx)
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	canonical, err := params.Canonical()
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, RoundStrategyEvaluation, e.self.Address(), ledger.KindStrategy, canonical), nil
}

func (p *strategyPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	value, ok := tally.MostVoted()
	if !ok {
		if tally.NoMajority() {
			return EventNoMajority, state, true
		}
		return "", state, false
	}
	params, err := strategy.ParseCanonical(value)
	if err != nil {
		return EventNoMajority, state, true
	}
	next := state.WithStrategy(value)
	if params.Action == strategy.ActionWait {
		return EventWait, next, true
	}
	return EventDone, next, true
}

// txHashPhase 各自从共识策略装配批量交易并广播授权哈希。哈希达成
// 一致意味着所有参与方对整笔批量的每个字节都达成了一致。
type txHashPhase struct {
	round string
	enter bool
}

func (p *txHashPhase) Round() string { return p.round }

func (p *txHashPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(p.round, ledger.KindTxHash, state)
}

func (p *txHashPhase) Act(_ context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	batch, err := e.buildBatch(state, p.enter)
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindTxHash, batch.TxHash.Hex()), nil
}

func (p *txHashPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if value, ok := tally.MostVoted(); ok {
		return EventDone, state.WithTxHash(value), true
	}
	if tally.NoMajority() {
		return EventNoMajority, state, true
	}
	return "", state, false
}

// signaturePhase 对已达成的授权哈希出具签名分片。收集到门限数量的
// 分片即可组装钱包合约接受的签名串，不要求全员到齐。
type signaturePhase struct {
	round string
}

func (p *signaturePhase) Round() string { return p.round }

func (p *signaturePhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewCollectionTally(p.round, ledger.KindSignature, state)
}

func (p *signaturePhase) Act(_ context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if state.TxHash == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名前必须先达成交易哈希")
	}
	sig, err := e.self.SignHash(common.HexToHash(state.TxHash))
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindSignature, hexutil.Encode(sig)), nil
}

func (p *signaturePhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	collected, ok := tally.Collected()
	if !ok {
		return "", state, false
	}
	return EventDone, state.WithSignatures(collected), true
}

// buildBatch 用周期内的共识事实重建批量交易。进场退场共用：装配器
// 是纯函数，同一策略编码在任何参与方机器上产出同一哈希。
func (e *Engine) buildBatch(state *ledger.PeriodState, enter bool) (*liquidity.Batch, error) {
	if state.SafeAddress == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "装配批量前必须先确定钱包地址")
	}
	if state.Strategy == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "装配批量前必须先达成策略")
	}
	params, err := strategy.ParseCanonical(state.Strategy)
	if err != nil {
		return nil, err
	}
	assembler, err := liquidity.NewAssembler(e.encoder, state.SafeAddress, e.multisend)
	if err != nil {
		return nil, err
	}
	if enter {
		return assembler.BuildEnterPool(params)
	}
	return assembler.BuildExitPool(params)
}
