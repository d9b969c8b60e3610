package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SwapExactTokensForTokens 编码一次 ERC20 到 ERC20 的精确输入兑换。
func (e *Encoder) SwapExactTokensForTokens(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "swapExactTokensForTokens", amountIn, amountOutMin, path, to, deadline)
}

// SwapExactTokensForETH 编码一次 ERC20 换回原生币的精确输入兑换。
func (e *Encoder) SwapExactTokensForETH(amountIn, amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "swapExactTokensForETH", amountIn, amountOutMin, path, to, deadline)
}

// SwapExactETHForTokens 编码一次原生币换 ERC20 的兑换，输入数量由附带的 value 决定。
func (e *Encoder) SwapExactETHForTokens(amountOutMin *big.Int, path []common.Address, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "swapExactETHForTokens", amountOutMin, path, to, deadline)
}

// AddLiquidity 编码双 ERC20 注入流动性。
func (e *Encoder) AddLiquidity(tokenA, tokenB common.Address, amountADesired, amountBDesired, amountAMin, amountBMin *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "addLiquidity", tokenA, tokenB, amountADesired, amountBDesired, amountAMin, amountBMin, to, deadline)
}

// AddLiquidityETH 编码原生币加 ERC20 注入流动性，原生部分由附带的 value 决定。
func (e *Encoder) AddLiquidityETH(token common.Address, amountTokenDesired, amountTokenMin, amountETHMin *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "addLiquidityETH", token, amountTokenDesired, amountTokenMin, amountETHMin, to, deadline)
}

// RemoveLiquidity 编码双 ERC20 撤出流动性。
func (e *Encoder) RemoveLiquidity(tokenA, tokenB common.Address, liquidity, amountAMin, amountBMin *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "removeLiquidity", tokenA, tokenB, liquidity, amountAMin, amountBMin, to, deadline)
}

// RemoveLiquidityETH 编码原生币加 ERC20 撤出流动性。
func (e *Encoder) RemoveLiquidityETH(token common.Address, liquidity, amountTokenMin, amountETHMin *big.Int, to common.Address, deadline *big.Int) ([]byte, error) {
	return e.Encode(ContractRouter, "removeLiquidityETH", token, liquidity, amountTokenMin, amountETHMin, to, deadline)
}

// Approve 编码 ERC20 授权，value 为授权额度。
func (e *Encoder) Approve(spender common.Address, value *big.Int) ([]byte, error) {
	return e.Encode(ContractERC20, "approve", spender, value)
}
