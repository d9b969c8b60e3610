package liquidity

import (
	"bytes"
	"math/big"
	"testing"

	"LiquiSafe-Chain/internal/contracts"
	"LiquiSafe-Chain/internal/strategy"

	"github.com/ethereum/go-ethereum/common"
)

var (
	testSafe      = common.HexToAddress("0x5afe00000000000000000000000000000000005a")
	testMultisend = common.HexToAddress("0x8d29be29923b68abfdd21e541b9374737b49cdad")
	testRouter    = common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d")
	testBase      = common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	testTokenA    = common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2")
	testTokenB    = common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f")
)

func testParams(native bool) *strategy.Params {
	return &strategy.Params{
		Action:    strategy.ActionGo,
		Chain:     "ethereum",
		BaseToken: testBase,
		TokenA: strategy.Leg{
			Ticker:    "WETH",
			Address:   testTokenA,
			Amount:    big.NewInt(1_000_000),
			AmountMin: big.NewInt(900_000),
			IsNative:  native,
		},
		TokenB: strategy.Leg{
			Ticker:    "DAI",
			Address:   testTokenB,
			Amount:    big.NewInt(2_000_000),
			AmountMin: big.NewInt(1_800_000),
		},
		RouterAddress:     testRouter,
		SafeNonce:         7,
		DeadlineUnix:      1_700_000_000,
		LiquidityToRemove: big.NewInt(500_000),
	}
}

func testAssembler(t *testing.T) (*Assembler, *contracts.Encoder) {
	t.Helper()
	encoder, err := contracts.NewEncoder()
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	assembler, err := NewAssembler(encoder, testSafe, testMultisend)
	if err != nil {
		t.Fatalf("new assembler: %v", err)
	}
	return assembler, encoder
}

func TestBuildEnterPoolDeterministic(t *testing.T) {
	assembler, _ := testAssembler(t)

	first, err := assembler.BuildEnterPool(testParams(false))
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	second, err := assembler.BuildEnterPool(testParams(false))
	if err != nil {
		t.Fatalf("build again: %v", err)
	}
	if first.TxHash != second.TxHash {
		t.Fatalf("same params must yield same hash: %s vs %s", first.TxHash.Hex(), second.TxHash.Hex())
	}
	if !bytes.Equal(first.MultiSendData, second.MultiSendData) {
		t.Fatalf("same params must yield same multisend data")
	}

	params := testParams(false)
	params.SafeNonce = 8
	third, err := assembler.BuildEnterPool(params)
	if err != nil {
		t.Fatalf("build with new nonce: %v", err)
	}
	if third.TxHash == first.TxHash {
		t.Fatalf("nonce change must change the authorized hash")
	}
}

func TestBuildEnterPoolCallOrder(t *testing.T) {
	assembler, encoder := testAssembler(t)
	params := testParams(false)

	batch, err := assembler.BuildEnterPool(params)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(batch.Calls) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(batch.Calls))
	}

	// 换入、换入、授权、授权、注入。
	for i, wantTo := range []common.Address{testRouter, testRouter, testTokenA, testTokenB, testRouter} {
		if batch.Calls[i].To != wantTo {
			t.Fatalf("call %d targets %s, want %s", i, batch.Calls[i].To.Hex(), wantTo.Hex())
		}
	}
	for i, call := range batch.Calls {
		if call.Operation != contracts.OperationCall {
			t.Fatalf("call %d must be a plain call", i)
		}
	}

	approveData, err := encoder.Approve(testRouter, maxAllowance)
	if err != nil {
		t.Fatalf("encode approve: %v", err)
	}
	if !bytes.Equal(batch.Calls[2].Data, approveData) || !bytes.Equal(batch.Calls[3].Data, approveData) {
		t.Fatalf("approvals must grant the maximum allowance")
	}

	// 注入流动性的最小数量打 1% 折扣，deadline 为共识基准时间 +300 秒。
	deadline := big.NewInt(params.DeadlineUnix + deadlineHorizonSeconds)
	wantAdd, err := encoder.AddLiquidity(
		testTokenA, testTokenB,
		params.TokenA.Amount, params.TokenB.Amount,
		applySlippage(params.TokenA.AmountMin), applySlippage(params.TokenB.AmountMin),
		testSafe, deadline)
	if err != nil {
		t.Fatalf("encode addLiquidity: %v", err)
	}
	if !bytes.Equal(batch.Calls[4].Data, wantAdd) {
		t.Fatalf("unexpected addLiquidity call data")
	}

	if batch.SafeTx.To != testMultisend {
		t.Fatalf("outer transaction must target the multisend contract")
	}
	if batch.SafeTx.Operation != contracts.OperationDelegateCall {
		t.Fatalf("outer transaction must be a delegatecall")
	}
	if batch.SafeTx.Nonce != params.SafeNonce {
		t.Fatalf("outer transaction nonce %d, want %d", batch.SafeTx.Nonce, params.SafeNonce)
	}
}

func TestBuildEnterPoolNativeLeg(t *testing.T) {
	assembler, encoder := testAssembler(t)
	params := testParams(true)

	batch, err := assembler.BuildEnterPool(params)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(batch.Calls) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(batch.Calls))
	}

	deadline := big.NewInt(params.DeadlineUnix + deadlineHorizonSeconds)
	wantSwap, err := encoder.SwapExactTokensForETH(
		params.TokenA.Amount, params.TokenA.AmountMin,
		[]common.Address{testBase, testTokenA}, testSafe, deadline)
	if err != nil {
		t.Fatalf("encode swap: %v", err)
	}
	if !bytes.Equal(batch.Calls[0].Data, wantSwap) {
		t.Fatalf("native leg must use the ETH swap variant")
	}

	// 原生币数量通过 value 随调用送入路由。
	if batch.Calls[4].Value.Cmp(params.TokenA.Amount) != 0 {
		t.Fatalf("addLiquidityETH value %s, want %s", batch.Calls[4].Value, params.TokenA.Amount)
	}
}

func TestBuildExitPoolMirrorsEnter(t *testing.T) {
	assembler, encoder := testAssembler(t)
	params := testParams(false)

	batch, err := assembler.BuildExitPool(params)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if len(batch.Calls) != 5 {
		t.Fatalf("expected 5 calls, got %d", len(batch.Calls))
	}

	// 撤出、清零、清零、换回、换回。
	deadline := big.NewInt(params.DeadlineUnix + deadlineHorizonSeconds)
	wantRemove, err := encoder.RemoveLiquidity(
		testTokenA, testTokenB, params.LiquidityToRemove,
		params.TokenA.AmountMin, params.TokenB.AmountMin,
		testSafe, deadline)
	if err != nil {
		t.Fatalf("encode removeLiquidity: %v", err)
	}
	if !bytes.Equal(batch.Calls[0].Data, wantRemove) {
		t.Fatalf("exit must remove liquidity first, with undiscounted minimums")
	}

	wantZero, err := encoder.Approve(testRouter, big.NewInt(0))
	if err != nil {
		t.Fatalf("encode approve: %v", err)
	}
	if !bytes.Equal(batch.Calls[1].Data, wantZero) || !bytes.Equal(batch.Calls[2].Data, wantZero) {
		t.Fatalf("exit must revoke both allowances")
	}
	if batch.Calls[1].To != testTokenA || batch.Calls[2].To != testTokenB {
		t.Fatalf("allowance revocations must target the two legs")
	}

	wantSwapBack, err := encoder.SwapExactTokensForTokens(
		params.TokenA.Amount, params.TokenA.AmountMin,
		[]common.Address{testTokenA, testBase}, testSafe, deadline)
	if err != nil {
		t.Fatalf("encode swap back: %v", err)
	}
	if !bytes.Equal(batch.Calls[3].Data, wantSwapBack) {
		t.Fatalf("exit must swap leg A back to the base token")
	}
}

func TestBuildExitPoolRequiresLiquidity(t *testing.T) {
	assembler, _ := testAssembler(t)
	params := testParams(false)
	params.LiquidityToRemove = big.NewInt(0)

	if _, err := assembler.BuildExitPool(params); err == nil {
		t.Fatalf("expected error when liquidity to remove is zero")
	}
}

func TestBuildRejectsWaitStrategy(t *testing.T) {
	assembler, _ := testAssembler(t)
	params := testParams(false)
	params.Action = strategy.ActionWait

	if _, err := assembler.BuildEnterPool(params); err == nil {
		t.Fatalf("expected error for WAIT strategy")
	}
}

func TestApplySlippage(t *testing.T) {
	if got := applySlippage(big.NewInt(100)); got.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("100 with 1%% slippage should be 99, got %s", got)
	}
	// 向零取整。
	if got := applySlippage(big.NewInt(101)); got.Cmp(big.NewInt(99)) != 0 {
		t.Fatalf("101 with 1%% slippage should floor to 99, got %s", got)
	}
	if got := applySlippage(nil); got.Sign() != 0 {
		t.Fatalf("nil minimum should map to zero, got %s", got)
	}
}
