package strategy

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func sampleParams() *Params {
	return &Params{
		Action:    ActionGo,
		Chain:     "ethereum",
		BaseToken: common.HexToAddress("0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48"),
		TokenA: Leg{
			Ticker:    "WETH",
			Address:   common.HexToAddress("0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"),
			Amount:    big.NewInt(1000),
			AmountMin: big.NewInt(900),
			IsNative:  true,
		},
		TokenB: Leg{
			Ticker:    "DAI",
			Address:   common.HexToAddress("0x6b175474e89094c44da98b954eedeac495271d0f"),
			Amount:    big.NewInt(2000),
			AmountMin: big.NewInt(1800),
		},
		RouterAddress:     common.HexToAddress("0x7a250d5630b4cf539739df2c5dacb4c659f2488d"),
		SafeNonce:         5,
		DeadlineUnix:      1_700_000_000,
		LiquidityToRemove: big.NewInt(400),
	}
}

func TestCanonicalRoundTrip(t *testing.T) {
	params := sampleParams()
	encoded, err := params.Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}

	decoded, err := ParseCanonical(encoded)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	reencoded, err := decoded.Canonical()
	if err != nil {
		t.Fatalf("canonical again: %v", err)
	}
	if encoded != reencoded {
		t.Fatalf("round trip changed encoding:\n%s\n%s", encoded, reencoded)
	}
	if decoded.TokenA.Amount.Cmp(params.TokenA.Amount) != 0 {
		t.Fatalf("amount lost in round trip")
	}
	if !decoded.TokenA.IsNative {
		t.Fatalf("native flag lost in round trip")
	}
	if decoded.SafeNonce != params.SafeNonce || decoded.DeadlineUnix != params.DeadlineUnix {
		t.Fatalf("nonce or deadline lost in round trip")
	}
}

func TestCanonicalStableAcrossCopies(t *testing.T) {
	first, err := sampleParams().Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	second, err := sampleParams().Canonical()
	if err != nil {
		t.Fatalf("canonical: %v", err)
	}
	if first != second {
		t.Fatalf("identical params must encode identically")
	}
}

func TestValidateRejectsNativeTokenB(t *testing.T) {
	params := sampleParams()
	params.TokenB.IsNative = true
	if err := params.Validate(); err == nil {
		t.Fatalf("expected error for native token B")
	}
}

func TestValidateRejectsNonPositiveAmount(t *testing.T) {
	params := sampleParams()
	params.TokenA.Amount = big.NewInt(0)
	if err := params.Validate(); err == nil {
		t.Fatalf("expected error for zero amount")
	}
}

func TestValidateAcceptsWaitWithoutLegs(t *testing.T) {
	params := &Params{Action: ActionWait}
	if err := params.Validate(); err != nil {
		t.Fatalf("WAIT params should validate: %v", err)
	}
}

func TestStaticProviderReturnsCopy(t *testing.T) {
	provider, err := NewStaticProvider(sampleParams())
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	first, err := provider.GetStrategy(context.Background())
	if err != nil {
		t.Fatalf("get strategy: %v", err)
	}
	first.TokenA.Amount.SetInt64(1)

	second, err := provider.GetStrategy(context.Background())
	if err != nil {
		t.Fatalf("get strategy again: %v", err)
	}
	if second.TokenA.Amount.Cmp(big.NewInt(1000)) != 0 {
		t.Fatalf("provider state was mutated through a returned copy")
	}
}
