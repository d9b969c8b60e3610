package protocol

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"strconv"

	"LiquiSafe-Chain/internal/chain"
	"LiquiSafe-Chain/internal/contracts"
	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/ledger"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// deploySafeSendPhase 由执行者部署多签钱包并广播新地址，其余参与方
// 只等待。执行者失联时轮次超时，状态机回到部署段的随机数轮次换人。
type deploySafeSendPhase struct{}

func (p *deploySafeSendPhase) Round() string { return RoundDeploySafeSend }

func (p *deploySafeSendPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewKeeperTally(RoundDeploySafeSend, ledger.KindSafeAddress, state, state.Keeper)
}

func (p *deploySafeSendPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if state.Keeper != e.self.Address() {
		return nil, nil
	}
	threshold := uint64(state.Threshold)
	addr, txHash, err := e.client.DeploySafe(ctx, e.self, state.SortedParticipants(), threshold)
	if err != nil {
		return nil, err
	}
	e.log.Info("多签钱包部署完成",
		"safe_address", addr.Hex(), "tx_hash", txHash.Hex(), "period_id", state.PeriodID)
	return ledger.NewPayload(state.PeriodID, RoundDeploySafeSend, e.self.Address(), ledger.KindSafeAddress, addr.Hex()), nil
}

func (p *deploySafeSendPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if value, ok := tally.KeeperValue(); ok {
		return EventDone, state.WithSafeAddress(common.HexToAddress(value)), true
	}
	return "", state, false
}

// deploySafeValidationPhase 各自读取链上钱包的所有者集合与门限，
// 与约定的参与方集合比对后投票。
type deploySafeValidationPhase struct{}

func (p *deploySafeValidationPhase) Round() string { return RoundDeploySafeValidation }

func (p *deploySafeValidationPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(RoundDeploySafeValidation, ledger.KindValidation, state)
}

func (p *deploySafeValidationPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	verified, err := e.verifySafeSetup(ctx, state)
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, RoundDeploySafeValidation, e.self.Address(),
		ledger.KindValidation, strconv.FormatBool(verified)), nil
}

func (p *deploySafeValidationPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	return concludeValidation(tally, state, nil)
}

// sendPhase 由执行者组装签名串、封装 execTransaction 并广播上链，
// 随后把链上交易哈希告知其余参与方。
type sendPhase struct {
	round string
	enter bool
}

func (p *sendPhase) Round() string { return p.round }

func (p *sendPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewKeeperTally(p.round, ledger.KindFinalTx, state, state.Keeper)
}

func (p *sendPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if state.Keeper != e.self.Address() {
		return nil, nil
	}
	execData, err := e.execTransactionData(state, p.enter)
	if err != nil {
		return nil, err
	}
	txHash, err := e.client.SubmitCall(ctx, e.self, state.SafeAddress, execData, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeBroadcastFailure, err, "广播批量交易失败")
	}
	if txHash == (common.Hash{}) {
		// 广播声称成功却没有交易哈希，协议无法继续跟踪这笔交易。
		return nil, xerrors.New(xerrors.CodeBroadcastFailure, "广播返回空交易哈希",
			xerrors.WithAlert(true), xerrors.WithSeverity(xerrors.SeverityCritical))
	}
	e.log.Info("批量交易已广播",
		"tx_hash", txHash.Hex(), "safe_address", state.SafeAddress.Hex(), "period_id", state.PeriodID)
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindFinalTx, txHash.Hex()), nil
}

func (p *sendPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	if value, ok := tally.KeeperValue(); ok {
		return EventDone, state.WithFinalTxHash(value), true
	}
	return "", state, false
}

// validationPhase 实施三级结算校验：回执缺席时不投票，让轮次超时
// 重试；回执表明执行失败投反对票；执行成功则进一步核对链上交易的
// 目标地址与 calldata 是否等于本方独立重建的结果。
type validationPhase struct {
	round string
	enter bool
}

func (p *validationPhase) Round() string { return p.round }

func (p *validationPhase) NewTally(state *ledger.PeriodState) *ledger.Tally {
	return ledger.NewMostVotedTally(p.round, ledger.KindValidation, state)
}

func (p *validationPhase) Act(ctx context.Context, e *Engine, state *ledger.PeriodState) (*ledger.Payload, error) {
	if state.FinalTxHash == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "校验前必须先得到链上交易哈希")
	}
	finalTx := common.HexToHash(state.FinalTxHash)
	receipt, err := e.client.WaitForReceipt(ctx, finalTx, e.cfg.ReceiptAttempts, e.cfg.ReceiptInterval)
	if err != nil {
		return nil, err
	}
	if receipt == nil {
		// 悬而未决：不能断言失败，弃权等待下一次尝试。
		e.log.Warn("回执在预算内未出现，本轮弃权",
			"tx_hash", state.FinalTxHash, "period_id", state.PeriodID)
		return nil, nil
	}
	if !chain.IsSettled(receipt) {
		return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(), ledger.KindValidation, "false"), nil
	}
	verified, err := e.verifyFinalTx(ctx, state, p.enter)
	if err != nil {
		return nil, err
	}
	return ledger.NewPayload(state.PeriodID, p.round, e.self.Address(),
		ledger.KindValidation, strconv.FormatBool(verified)), nil
}

func (p *validationPhase) Conclude(tally *ledger.Tally, state *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	return concludeValidation(tally, state, func(s *ledger.PeriodState) *ledger.PeriodState {
		return s.WithSettled(true)
	})
}

func concludeValidation(tally *ledger.Tally, state *ledger.PeriodState,
	onPositive func(*ledger.PeriodState) *ledger.PeriodState) (Event, *ledger.PeriodState, bool) {
	value, ok := tally.MostVoted()
	if !ok {
		if tally.NoMajority() {
			return EventNoMajority, state, true
		}
		return "", state, false
	}
	if value != "true" {
		return EventNegative, state, true
	}
	if onPositive != nil {
		state = onPositive(state)
	}
	return EventDone, state, true
}

// execTransactionData 从周期事实重建 execTransaction 的 calldata。
// 签名串的组装按所有者地址排序，执行者与校验者得到相同的字节串。
func (e *Engine) execTransactionData(state *ledger.PeriodState, enter bool) ([]byte, error) {
	batch, err := e.buildBatch(state, enter)
	if err != nil {
		return nil, err
	}
	if common.HexToHash(state.TxHash) != batch.TxHash {
		return nil, xerrors.New(xerrors.CodeVerificationFailure,
			fmt.Sprintf("重建的交易哈希 %s 与共识哈希 %s 不符", batch.TxHash.Hex(), state.TxHash))
	}
	sigs := make(map[common.Address][]byte, len(state.Signatures))
	for addr, raw := range state.Signatures {
		decoded, err := hexutil.Decode(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err,
				fmt.Sprintf("解析 %s 的签名分片失败", addr.Hex()))
		}
		sigs[addr] = decoded
	}
	assembled, err := contracts.AssembleSignatures(sigs)
	if err != nil {
		return nil, err
	}
	signers, err := contracts.RecoverSigners(batch.TxHash, assembled)
	if err != nil {
		return nil, err
	}
	for _, signer := range signers {
		if !state.IsParticipant(signer) {
			return nil, xerrors.New(xerrors.CodeVerificationFailure,
				fmt.Sprintf("签名串中出现非参与方地址 %s", signer.Hex()))
		}
	}
	return e.encoder.ExecTransactionData(batch.SafeTx, assembled)
}

// verifyFinalTx 独立核对链上交易：目标必须是共识确定的钱包，解码出
// 的内层批量必须与本方重建的逐字节一致，签名串必须出自参与方集合且
// 数量达到门限。签名串本身不做字节比对，执行者收集到的签名子集可能
// 与本方不同。
func (e *Engine) verifyFinalTx(ctx context.Context, state *ledger.PeriodState, enter bool) (bool, error) {
	tx, err := e.client.TransactionByHash(ctx, common.HexToHash(state.FinalTxHash))
	if err != nil {
		return false, err
	}
	if tx.To() == nil || *tx.To() != state.SafeAddress {
		return false, nil
	}

	decoded, signatures, err := e.encoder.DecodeExecTransaction(tx.Data())
	if err != nil {
		e.log.Warn("解码链上交易失败", "period_id", state.PeriodID, "error", err)
		return false, nil
	}
	batch, err := e.buildBatch(state, enter)
	if err != nil {
		// 重建失败说明共识事实自相矛盾，按校验不通过处理。
		e.log.Warn("重建批量交易失败", "period_id", state.PeriodID, "error", err)
		return false, nil
	}
	if common.HexToHash(state.TxHash) != batch.TxHash {
		return false, nil
	}
	if decoded.To != e.multisend || decoded.Operation != contracts.OperationDelegateCall {
		return false, nil
	}
	if decoded.Value != nil && decoded.Value.Sign() != 0 {
		return false, nil
	}
	if !bytes.Equal(decoded.Data, batch.MultiSendData) {
		return false, nil
	}

	signers, err := contracts.RecoverSigners(batch.TxHash, signatures)
	if err != nil {
		return false, nil
	}
	seen := make(map[common.Address]bool, len(signers))
	for _, signerAddr := range signers {
		if !state.IsParticipant(signerAddr) {
			return false, nil
		}
		seen[signerAddr] = true
	}
	return len(seen) >= state.Threshold, nil
}

// verifySafeSetup 读取链上钱包的所有者集合与门限并与约定值比对。
func (e *Engine) verifySafeSetup(ctx context.Context, state *ledger.PeriodState) (bool, error) {
	if state.SafeAddress == (common.Address{}) {
		return false, xerrors.New(xerrors.CodeInvalidArgument, "校验前必须先确定钱包地址")
	}

	ownersData, err := e.encoder.Encode(contracts.ContractSafe, "getOwners")
	if err != nil {
		return false, err
	}
	ownersRaw, err := e.client.CallContract(ctx, state.SafeAddress, ownersData)
	if err != nil {
		return false, err
	}
	ownersVals, err := e.encoder.Unpack(contracts.ContractSafe, "getOwners", ownersRaw)
	if err != nil {
		return false, err
	}
	owners, ok := ownersVals[0].([]common.Address)
	if !ok {
		return false, xerrors.New(xerrors.CodeEncodingFailure, "getOwners 返回值类型不符")
	}

	thresholdData, err := e.encoder.Encode(contracts.ContractSafe, "getThreshold")
	if err != nil {
		return false, err
	}
	thresholdRaw, err := e.client.CallContract(ctx, state.SafeAddress, thresholdData)
	if err != nil {
		return false, err
	}
	thresholdVals, err := e.encoder.Unpack(contracts.ContractSafe, "getThreshold", thresholdRaw)
	if err != nil {
		return false, err
	}
	threshold, ok := thresholdVals[0].(*big.Int)
	if !ok {
		return false, xerrors.New(xerrors.CodeEncodingFailure, "getThreshold 返回值类型不符")
	}

	if threshold.Cmp(big.NewInt(int64(state.Threshold))) != 0 {
		return false, nil
	}
	if len(owners) != len(state.Participants) {
		return false, nil
	}
	expected := make(map[common.Address]bool, len(state.Participants))
	for _, p := range state.Participants {
		expected[p] = true
	}
	for _, owner := range owners {
		if !expected[owner] {
			return false, nil
		}
	}
	return true, nil
}
