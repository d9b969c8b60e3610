package protocol

import (
	"context"

	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/ledger"
)

// resetPhase 在两个周期之间停顿一段观察窗口，随后与其他参与方互相
// 确认就绪。门限数量的参与方声明就绪后，所有人丢弃旧周期的事实，
// 以新的周期标识重新开始。
type resetPhase struct{}

func (p *resetPhase) Round() string { return RoundResetAndPause }

func (p *resetPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewCollectionTally(RoundResetAndPause, ledger.KindReset, state)
}

func (p *resetPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if err := e.pause(ctx); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "周期间停顿被取消")
	}
	return ledger.NewPayload(state.PeriodID, RoundResetAndPause, e.self.Address(), ledger.KindReset, state.PeriodID), nil
}

func (p *resetPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if _, ok := tally.Collected(); !ok {
		return "", state, false
	}
	next, err := state.NextPeriod()
	if err != nil {
		return EventError, state, true
	}
	return EventDone, next, true
}
