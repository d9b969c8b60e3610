package protocol

import (
	"context"

	"LiquiSafe-Chain/internal/ledger"
)

// Phase 是状态机中的一个轮次。Act 产生本方要广播的提案（不承担本轮
// 职责时返回 nil），Conclude 检查计票结果是否构成轮次结论。
type Phase interface {
	Round() string
	NewTally(state *ledger.PeriodState) *ledger.Tally
	Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error)
	Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool)
}

func buildPhases() map[string]Phase {
	phases := []Phase{
		&randomnessPhase{round: RoundDeploySafeRandomness},
		&selectKeeperPhase{round: RoundDeploySafeSelectKeeper},
		&deploySafeSendPhase{},
		&deploySafeValidationPhase{},
		&strategyPhase{},
		&randomnessPhase{round: RoundEnterRandomness},
		&selectKeeperPhase{round: RoundEnterSelectKeeper},
		&txHashPhase{round: RoundEnterTxHash, enter: true},
		&signaturePhase{round: RoundEnterSignature},
		&sendPhase{round: RoundEnterSend, enter: true},
		&validationPhase{round: RoundEnterValidation, enter: true},
		&randomnessPhase{round: RoundExitRandomness},
		&selectKeeperPhase{round: RoundExitSelectKeeper},
		&txHashPhase{round: RoundExitTxHash, enter: false},
		&signaturePhase{round: RoundExitSignature},
		&sendPhase{round: RoundExitSend, enter: false},
		&validationPhase{round: RoundExitValidation, enter: false},
		&resetPhase{},
	}
	out := make(map[string]Phase, len(phases))
	for _, p := range phases {
		out[p.Round()] = p
	}
	return out
}
