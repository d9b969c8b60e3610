package liquidity

import (
	"math/big"

	"LiquiSafe-Chain/internal/contracts"
	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
)

// deadlineHorizonSeconds 是路由合约调用允许的执行窗口，与策略中商定
// 的基准时间相加得到 deadline。
const deadlineHorizonSeconds = 300

// maxAllowance 为进场时授予路由合约的额度，退场时清零。
var maxAllowance = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// Batch 是装配完成的一笔批量交易：有序子调用、multiSend calldata、
// 外层钱包交易及其授权哈希。
type Batch struct {
	Calls         []contracts.MultiSendTx
	MultiSendData []byte
	SafeTx        contracts.SafeTx
	TxHash        common.Hash
}

// Assembler 从已共识的策略参数确定性地装配批量交易。相同输入在任何
// 参与者机器上必须产生比特级一致的批量与哈希，因为被签名的正是这个
// 哈希。
type Assembler struct {
	encoder   *contracts.Encoder
	safe      common.Address
	multisend common.Address
}

// NewAssembler 构造 Assembler。
func NewAssembler(encoder *contracts.Encoder, safe, multisend common.Address) (*Assembler, error) {
	if encoder == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供合约编码器")
	}
	if safe == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "钱包地址不能为空")
	}
	if multisend == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "multisend 合约地址不能为空")
	}
	return &Assembler{encoder: encoder, safe: safe, multisend: multisend}, nil
}

// WithSafe 返回替换了钱包地址的 Assembler 副本，部署轮次结束后使用。
func (a *Assembler) WithSafe(safe common.Address) (*Assembler, error) {
	return NewAssembler(a.encoder, safe, a.multisend)
}

// BuildEnterPool 装配进场批量：换入两条腿、授权路由、注入流动性。
// 注入时对最小数量应用 1% 滑点容忍（向零取整）。
func (a *Assembler) BuildEnterPool(params *strategy.Params) (*Batch, error) {
	if err := a.checkParams(params); err != nil {
		return nil, err
	}
	deadline := deadlineOf(params)
	calls := make([]contracts.MultiSendTx, 0, 5)

	// 1. 基础资产换入腿 A（A 为原生币时走 ETH 变体）。
	var (
		swapAData []byte
		err       error
	)
	pathToA := []common.Address{params.BaseToken, params.TokenA.Address}
	if params.TokenA.IsNative {
		swapAData, err = a.encoder.SwapExactTokensForETH(params.TokenA.Amount, params.TokenA.AmountMin, pathToA, a.safe, deadline)
	} else {
		swapAData, err = a.encoder.SwapExactTokensForTokens(params.TokenA.Amount, params.TokenA.AmountMin, pathToA, a.safe, deadline)
	}
	if err != nil {
		return nil, err
	}
	calls = append(calls, routerCall(params.RouterAddress, nil, swapAData))

	// 2. 基础资产换入腿 B（恒为 ERC20）。
	swapBData, err := a.encoder.SwapExactTokensForTokens(
		params.TokenB.Amount, params.TokenB.AmountMin,
		[]common.Address{params.BaseToken, params.TokenB.Address}, a.safe, deadline)
	if err != nil {
		return nil, err
	}
	calls = append(calls, routerCall(params.RouterAddress, nil, swapBData))

	// 3/4. 给路由授予两条腿的最大额度。
	for _, token := range []common.Address{params.TokenA.Address, params.TokenB.Address} {
		approveData, err := a.encoder.Approve(params.RouterAddress, maxAllowance)
		if err != nil {
			return nil, err
		}
		calls = append(calls, contracts.MultiSendTx{
			Operation: contracts.OperationCall,
			To:        token,
			Value:     big.NewInt(0),
			Data:      approveData,
		})
	}

	// 5. 注入流动性，最小数量打 1% 折扣。
	minA := applySlippage(params.TokenA.AmountMin)
	minB := applySlippage(params.TokenB.AmountMin)
	if params.TokenA.IsNative {
		addData, err := a.encoder.AddLiquidityETH(params.TokenB.Address, params.TokenB.Amount, minB, minA, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, params.TokenA.Amount, addData))
	} else {
		addData, err := a.encoder.AddLiquidity(
			params.TokenA.Address, params.TokenB.Address,
			params.TokenA.Amount, params.TokenB.Amount,
			minA, minB, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, nil, addData))
	}

	return a.finalize(calls, params.SafeNonce)
}

// BuildExitPool 装配退场批量，是进场的镜像：先撤出流动性、清零授权、
// 再把两条腿换回基础资产。最小数量不打折扣。
func (a *Assembler) BuildExitPool(params *strategy.Params) (*Batch, error) {
	if err := a.checkParams(params); err != nil {
		return nil, err
	}
	if params.LiquidityToRemove == nil || params.LiquidityToRemove.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "退场批量需要正的待撤流动性数量")
	}
	deadline := deadlineOf(params)
	calls := make([]contracts.MultiSendTx, 0, 5)

	// 1. 撤出流动性，最小数量按共识值原样使用。
	if params.TokenA.IsNative {
		removeData, err := a.encoder.RemoveLiquidityETH(
			params.TokenB.Address, params.LiquidityToRemove,
			params.TokenB.AmountMin, params.TokenA.AmountMin, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, nil, removeData))
	} else {
		removeData, err := a.encoder.RemoveLiquidity(
			params.TokenA.Address, params.TokenB.Address, params.LiquidityToRemove,
			params.TokenA.AmountMin, params.TokenB.AmountMin, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, nil, removeData))
	}

	// 2/3. 清零两条腿的授权。
	for _, token := range []common.Address{params.TokenA.Address, params.TokenB.Address} {
		approveData, err := a.encoder.Approve(params.RouterAddress, big.NewInt(0))
		if err != nil {
			return nil, err
		}
		calls = append(calls, contracts.MultiSendTx{
			Operation: contracts.OperationCall,
			To:        token,
			Value:     big.NewInt(0),
			Data:      approveData,
		})
	}

	// 4. 腿 A 换回基础资产（原生币时走 ETH 变体，输入由 value 承载）。
	pathFromA := []common.Address{params.TokenA.Address, params.BaseToken}
	if params.TokenA.IsNative {
		swapAData, err := a.encoder.SwapExactETHForTokens(params.TokenA.AmountMin, pathFromA, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, params.TokenA.Amount, swapAData))
	} else {
		swapAData, err := a.encoder.SwapExactTokensForTokens(params.TokenA.Amount, params.TokenA.AmountMin, pathFromA, a.safe, deadline)
		if err != nil {
			return nil, err
		}
		calls = append(calls, routerCall(params.RouterAddress, nil, swapAData))
	}

	// 5. 腿 B 换回基础资产。
	swapBData, err := a.encoder.SwapExactTokensForTokens(
		params.TokenB.Amount, params.TokenB.AmountMin,
		[]common.Address{params.TokenB.Address, params.BaseToken}, a.safe, deadline)
	if err != nil {
		return nil, err
	}
	calls = append(calls, routerCall(params.RouterAddress, nil, swapBData))

	return a.finalize(calls, params.SafeNonce)
}

// finalize 打包子调用并计算授权哈希。外层钱包交易通过委托调用进入
// multisend 合约执行整个批量。
func (a *Assembler) finalize(calls []contracts.MultiSendTx, nonce uint64) (*Batch, error) {
	multiSendData, err := a.encoder.MultiSendData(calls)
	if err != nil {
		return nil, err
	}
	safeTx := contracts.SafeTx{
		To:        a.multisend,
		Value:     big.NewInt(0),
		Data:      multiSendData,
		Operation: contracts.OperationDelegateCall,
		Nonce:     nonce,
	}
	txHash, err := contracts.SafeTxHash(a.safe, safeTx)
	if err != nil {
		return nil, err
	}
	return &Batch{
		Calls:         calls,
		MultiSendData: multiSendData,
		SafeTx:        safeTx,
		TxHash:        txHash,
	}, nil
}

func (a *Assembler) checkParams(params *strategy.Params) error {
	if a == nil || a.encoder == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "装配器未初始化")
	}
	if err := params.Validate(); err != nil {
		return err
	}
	if params.Action != strategy.ActionGo {
		return xerrors.New(xerrors.CodeInvalidArgument, "只有 GO 策略才能装配批量交易")
	}
	return nil
}

// applySlippage 对最小数量应用 1% 滑点容忍：min * 99 / 100，向零取整。
func applySlippage(min *big.Int) *big.Int {
	if min == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(min, big.NewInt(99))
	return out.Quo(out, big.NewInt(100))
}

func deadlineOf(params *strategy.Params) *big.Int {
	return big.NewInt(params.DeadlineUnix + deadlineHorizonSeconds)
}

func routerCall(router common.Address, value *big.Int, data []byte) contracts.MultiSendTx {
	if value == nil {
		value = big.NewInt(0)
	}
	return contracts.MultiSendTx{
		Operation: contracts.OperationCall,
		To:        router,
		Value:     value,
		Data:      data,
	}
}
