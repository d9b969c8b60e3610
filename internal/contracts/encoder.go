package contracts

import (
	"fmt"
	"strings"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// 合约标识，Encode 以此选择对应的 ABI。
const (
	ContractRouter       = "uniswap_v2_router_02"
	ContractERC20        = "uniswap_v2_erc20"
	ContractMultiSend    = "multisend"
	ContractSafe         = "gnosis_safe"
	ContractProxyFactory = "gnosis_safe_proxy_factory"
)

const routerABI = `[
  {"type":"function","name":"swapExactTokensForTokens","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactTokensForETH","inputs":[{"name":"amountIn","type":"uint256"},{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"swapExactETHForTokens","stateMutability":"payable","inputs":[{"name":"amountOutMin","type":"uint256"},{"name":"path","type":"address[]"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amounts","type":"uint256[]"}]},
  {"type":"function","name":"addLiquidity","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"amountADesired","type":"uint256"},{"name":"amountBDesired","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
  {"type":"function","name":"addLiquidityETH","stateMutability":"payable","inputs":[{"name":"token","type":"address"},{"name":"amountTokenDesired","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"},{"name":"liquidity","type":"uint256"}]},
  {"type":"function","name":"removeLiquidity","inputs":[{"name":"tokenA","type":"address"},{"name":"tokenB","type":"address"},{"name":"liquidity","type":"uint256"},{"name":"amountAMin","type":"uint256"},{"name":"amountBMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountA","type":"uint256"},{"name":"amountB","type":"uint256"}]},
  {"type":"function","name":"removeLiquidityETH","inputs":[{"name":"token","type":"address"},{"name":"liquidity","type":"uint256"},{"name":"amountTokenMin","type":"uint256"},{"name":"amountETHMin","type":"uint256"},{"name":"to","type":"address"},{"name":"deadline","type":"uint256"}],"outputs":[{"name":"amountToken","type":"uint256"},{"name":"amountETH","type":"uint256"}]}
]`

const erc20ABI = `[
  {"type":"function","name":"approve","inputs":[{"name":"spender","type":"address"},{"name":"value","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]}
]`

const multiSendABI = `[
  {"type":"function","name":"multiSend","inputs":[{"name":"transactions","type":"bytes"}],"outputs":[]}
]`

const safeABI = `[
  {"type":"function","name":"execTransaction","inputs":[{"name":"to","type":"address"},{"name":"value","type":"uint256"},{"name":"data","type":"bytes"},{"name":"operation","type":"uint8"},{"name":"safeTxGas","type":"uint256"},{"name":"baseGas","type":"uint256"},{"name":"gasPrice","type":"uint256"},{"name":"gasToken","type":"address"},{"name":"refundReceiver","type":"address"},{"name":"signatures","type":"bytes"}],"outputs":[{"name":"success","type":"bool"}]},
  {"type":"function","name":"getOwners","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address[]"}]},
  {"type":"function","name":"getThreshold","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"nonce","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"setup","inputs":[{"name":"_owners","type":"address[]"},{"name":"_threshold","type":"uint256"},{"name":"to","type":"address"},{"name":"data","type":"bytes"},{"name":"fallbackHandler","type":"address"},{"name":"paymentToken","type":"address"},{"name":"payment","type":"uint256"},{"name":"paymentReceiver","type":"address"}],"outputs":[]}
]`

const proxyFactoryABI = `[
  {"type":"function","name":"createProxy","inputs":[{"name":"masterCopy","type":"address"},{"name":"data","type":"bytes"}],"outputs":[{"name":"proxy","type":"address"}]},
  {"type":"event","name":"ProxyCreation","inputs":[{"name":"proxy","type":"address","indexed":false}]}
]`

// Encoder 将结构化的合约调用参数编码成交易 calldata。
// 它是纯函数式的：相同输入必然产生相同字节串，这是多方独立推导
// 同一笔交易哈希的前提。
type Encoder struct {
	abis map[string]abi.ABI
}

// NewEncoder 解析内置 ABI 并构造 Encoder。
func NewEncoder() (*Encoder, error) {
	abis := make(map[string]abi.ABI, 5)
	for name, raw := range map[string]string{
		ContractRouter:       routerABI,
		ContractERC20:        erc20ABI,
		ContractMultiSend:    multiSendABI,
		ContractSafe:         safeABI,
		ContractProxyFactory: proxyFactoryABI,
	} {
		parsed, err := abi.JSON(strings.NewReader(raw))
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, fmt.Sprintf("解析 %s ABI 失败", name))
		}
		abis[name] = parsed
	}
	return &Encoder{abis: abis}, nil
}

// Encode 按合约标识与方法名编码一次调用。
func (e *Encoder) Encode(contract, method string, args ...any) ([]byte, error) {
	if e == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编码器未初始化")
	}
	parsed, ok := e.abis[contract]
	if !ok {
		return nil, xerrors.New(xerrors.CodeEncodingFailure, fmt.Sprintf("未知的合约标识: %s", contract))
	}
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, fmt.Sprintf("编码 %s.%s 失败", contract, method))
	}
	return data, nil
}

// Unpack 解码合约返回值，主要用于结算校验时读取钱包状态。
func (e *Encoder) Unpack(contract, method string, output []byte) ([]any, error) {
	if e == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "编码器未初始化")
	}
	parsed, ok := e.abis[contract]
	if !ok {
		return nil, xerrors.New(xerrors.CodeEncodingFailure, fmt.Sprintf("未知的合约标识: %s", contract))
	}
	values, err := parsed.Unpack(method, output)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, fmt.Sprintf("解码 %s.%s 返回值失败", contract, method))
	}
	return values, nil
}
