package protocol

import (
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// 轮次名称。部署段只在没有现成多签钱包时运行一次，进场段和退场段
// 形状相同，失败时各自回到本段的随机数轮次重新推举执行者。
const (
	RoundDeploySafeRandomness   = "deploy_safe_randomness"
	RoundDeploySafeSelectKeeper = "deploy_safe_select_keeper"
	RoundDeploySafeSend         = "deploy_safe_send"
	RoundDeploySafeValidation   = "deploy_safe_validation"

	RoundStrategyEvaluation = "strategy_evaluation"

	RoundEnterRandomness   = "enter_pool_randomness"
	RoundEnterSelectKeeper = "enter_pool_select_keeper"
	RoundEnterTxHash       = "enter_pool_tx_hash"
	RoundEnterSignature    = "enter_pool_signature"
	RoundEnterSend         = "enter_pool_send"
	RoundEnterValidation   = "enter_pool_validation"

	RoundExitRandomness   = "exit_pool_randomness"
	RoundExitSelectKeeper = "exit_pool_select_keeper"
	RoundExitTxHash       = "exit_pool_tx_hash"
	RoundExitSignature    = "exit_pool_signature"
	RoundExitSend         = "exit_pool_send"
	RoundExitValidation   = "exit_pool_validation"

	RoundResetAndPause = "reset_and_pause"
)

// transitions 是状态机的迁移表。没有列出的 (轮次, 事件) 组合视为
// 不可恢复，状态机终止并上报。
var transitions = map[string]map[Event]string{
	RoundDeploySafeRandomness: {
		EventDone:         RoundDeploySafeSelectKeeper,
		EventNoMajority:   RoundDeploySafeRandomness,
		EventRoundTimeout: RoundDeploySafeRandomness,
	},
	RoundDeploySafeSelectKeeper: {
		EventDone:         RoundDeploySafeSend,
		EventNoMajority:   RoundDeploySafeRandomness,
		EventRoundTimeout: RoundDeploySafeRandomness,
	},
	RoundDeploySafeSend: {
		EventDone:         RoundDeploySafeValidation,
		EventRoundTimeout: RoundDeploySafeRandomness,
		EventError:        RoundDeploySafeRandomness,
	},
	RoundDeploySafeValidation: {
		EventDone:         RoundStrategyEvaluation,
		EventNegative:     RoundDeploySafeRandomness,
		EventNoMajority:   RoundDeploySafeRandomness,
		EventRoundTimeout: RoundDeploySafeRandomness,
	},
	RoundStrategyEvaluation: {
		EventDone:         RoundEnterRandomness,
		EventWait:         RoundResetAndPause,
		EventNoMajority:   RoundResetAndPause,
		EventRoundTimeout: RoundResetAndPause,
	},
	RoundEnterRandomness: {
		EventDone:         RoundEnterSelectKeeper,
		EventNoMajority:   RoundEnterRandomness,
		EventRoundTimeout: RoundEnterRandomness,
	},
	RoundEnterSelectKeeper: {
		EventDone:         RoundEnterTxHash,
		EventNoMajority:   RoundEnterRandomness,
		EventRoundTimeout: RoundEnterRandomness,
	},
	RoundEnterTxHash: {
		EventDone:         RoundEnterSignature,
		EventNoMajority:   RoundEnterRandomness,
		EventRoundTimeout: RoundEnterRandomness,
		EventError:        RoundEnterRandomness,
	},
	RoundEnterSignature: {
		EventDone:         RoundEnterSend,
		EventRoundTimeout: RoundEnterRandomness,
	},
	RoundEnterSend: {
		EventDone:         RoundEnterValidation,
		EventRoundTimeout: RoundEnterRandomness,
		EventError:        RoundEnterRandomness,
	},
	RoundEnterValidation: {
		EventDone:         RoundExitRandomness,
		EventNegative:     RoundEnterRandomness,
		EventNoMajority:   RoundEnterRandomness,
		EventRoundTimeout: RoundEnterRandomness,
	},
	RoundExitRandomness: {
		EventDone:         RoundExitSelectKeeper,
		EventNoMajority:   RoundExitRandomness,
		EventRoundTimeout: RoundExitRandomness,
	},
	RoundExitSelectKeeper: {
		EventDone:         RoundExitTxHash,
		EventNoMajority:   RoundExitRandomness,
		EventRoundTimeout: RoundExitRandomness,
	},
	RoundExitTxHash: {
		EventDone:         RoundExitSignature,
		EventNoMajority:   RoundExitRandomness,
		EventRoundTimeout: RoundExitRandomness,
		EventError:        RoundExitRandomness,
	},
	RoundExitSignature: {
		EventDone:         RoundExitSend,
		EventRoundTimeout: RoundExitRandomness,
	},
	RoundExitSend: {
		EventDone:         RoundExitValidation,
		EventRoundTimeout: RoundExitRandomness,
		EventError:        RoundExitRandomness,
	},
	RoundExitValidation: {
		EventDone:         RoundResetAndPause,
		EventNegative:     RoundExitRandomness,
		EventNoMajority:   RoundExitRandomness,
		EventRoundTimeout: RoundExitRandomness,
	},
	RoundResetAndPause: {
		EventDone:         RoundStrategyEvaluation,
		EventRoundTimeout: RoundResetAndPause,
		EventError:        RoundResetAndPause,
	},
}

// NextRound 查询迁移表。第二个返回值为 false 表示该事件在当前轮次
// 不可恢复。
func NextRound(round string, event Event) (string, bool) {
	targets, ok := transitions[round]
	if !ok {
		return "", false
	}
	next, ok := targets[event]
	return next, ok
}

// SelectKeeper 从已达成的随机数确定性地推举执行者：随机数按十六进制
// 解释为整数，对按地址升序排列的参与方数量取模。每个参与方独立计算
// 都会得到同一个执行者。
func SelectKeeper(randomness string, sorted []common.Address) common.Address {
	if len(sorted) == 0 {
		return common.Address{}
	}
	cleaned := strings.TrimPrefix(strings.TrimSpace(randomness), "0x")
	n, ok := new(big.Int).SetString(cleaned, 16)
	if !ok {
		// 非十六进制的信标值先散列再取整，保持确定性。
		n = new(big.Int).SetBytes(crypto.Keccak256([]byte(randomness)))
	}
	idx := new(big.Int).Mod(n, big.NewInt(int64(len(sorted))))
	return sorted[idx.Int64()]
}
