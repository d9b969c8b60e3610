package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Action 表示策略给出的动作指令。
type Action string

const (
	// ActionWait 表示当前持仓仍然最优，本期不做任何操作。
	ActionWait Action = "WAIT"
	// ActionGo 表示按照参数进入指定的流动性池。
	ActionGo Action = "GO"
)

// Leg 描述交易对中的一条腿。
type Leg struct {
	Ticker    string
	Address   common.Address
	Amount    *big.Int
	AmountMin *big.Int
	IsNative  bool
}

// Params 是一个周期内达成共识的策略参数，交易装配逻辑将其视为不可变输入。
type Params struct {
	Action            Action
	Chain             string
	BaseToken         common.Address
	TokenA            Leg
	TokenB            Leg
	RouterAddress     common.Address
	SafeNonce         uint64
	DeadlineUnix      int64
	LiquidityToRemove *big.Int
}

// Provider 是外部策略供给方的抽象，核心协议不关心其内部实现。
type Provider interface {
	GetStrategy(ctx context.Context) (*Params, error)
}

// Validate 校验策略参数是否可以被交易装配逻辑安全使用。
func (p *Params) Validate() error {
	if p == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "策略参数不能为空")
	}
	switch p.Action {
	case ActionWait:
		return nil
	case ActionGo:
	default:
		return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("未知的策略动作: %s", p.Action))
	}
	if p.RouterAddress == (common.Address{}) {
		return xerrors.New(xerrors.CodeInvalidArgument, "路由合约地址不能为空")
	}
	// 只有 TokenA 允许是原生币。
	if p.TokenB.IsNative {
		return xerrors.New(xerrors.CodeInvalidArgument, "TokenB 不允许是原生币")
	}
	for _, leg := range []struct {
		name string
		leg  Leg
	}{{"token_a", p.TokenA}, {"token_b", p.TokenB}} {
		if leg.leg.Address == (common.Address{}) {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 地址不能为空", leg.name))
		}
		if leg.leg.Amount == nil || leg.leg.Amount.Sign() <= 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 数量必须为正", leg.name))
		}
		if leg.leg.AmountMin == nil || leg.leg.AmountMin.Sign() < 0 {
			return xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("%s 最小数量不能为负", leg.name))
		}
	}
	return nil
}

// wireLeg 是 Leg 的规范化编码形式，数量用十进制字符串承载避免精度问题。
type wireLeg struct {
	Ticker    string `json:"ticker"`
	Address   string `json:"address"`
	Amount    string `json:"amount"`
	AmountMin string `json:"amount_min"`
	IsNative  bool   `json:"is_native"`
}

type wireParams struct {
	Action            string  `json:"action"`
	Chain             string  `json:"chain"`
	BaseToken         string  `json:"base_token"`
	TokenA            wireLeg `json:"token_a"`
	TokenB            wireLeg `json:"token_b"`
	RouterAddress     string  `json:"router_address"`
	SafeNonce         uint64  `json:"safe_nonce"`
	DeadlineUnix      int64   `json:"deadline_unix"`
	LiquidityToRemove string  `json:"liquidity_to_remove"`
}

func toWireLeg(l Leg) wireLeg {
	return wireLeg{
		Ticker:    l.Ticker,
		Address:   strings.ToLower(l.Address.Hex()),
		Amount:    bigString(l.Amount),
		AmountMin: bigString(l.AmountMin),
		IsNative:  l.IsNative,
	}
}

func fromWireLeg(w wireLeg) (Leg, error) {
	amount, err := parseBig(w.Amount)
	if err != nil {
		return Leg{}, err
	}
	amountMin, err := parseBig(w.AmountMin)
	if err != nil {
		return Leg{}, err
	}
	return Leg{
		Ticker:    w.Ticker,
		Address:   common.HexToAddress(w.Address),
		Amount:    amount,
		AmountMin: amountMin,
		IsNative:  w.IsNative,
	}, nil
}

// Canonical 返回策略参数的规范化编码。所有参与者对同一参数必须得到
// 完全一致的字节串，否则共识轮次无法汇聚到同一取值。
func (p *Params) Canonical() (string, error) {
	if p == nil {
		return "", xerrors.New(xerrors.CodeInvalidArgument, "策略参数不能为空")
	}
	wire := wireParams{
		Action:            string(p.Action),
		Chain:             p.Chain,
		BaseToken:         strings.ToLower(p.BaseToken.Hex()),
		TokenA:            toWireLeg(p.TokenA),
		TokenB:            toWireLeg(p.TokenB),
		RouterAddress:     strings.ToLower(p.RouterAddress.Hex()),
		SafeNonce:         p.SafeNonce,
		DeadlineUnix:      p.DeadlineUnix,
		LiquidityToRemove: bigString(p.LiquidityToRemove),
	}
	raw, err := json.Marshal(wire)
	if err != nil {
		return "", xerrors.Wrap(xerrors.CodeEncodingFailure, err, "编码策略参数失败")
	}
	return string(raw), nil
}

// ParseCanonical 还原规范化编码的策略参数。
func ParseCanonical(raw string) (*Params, error) {
	var wire wireParams
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "解析策略参数失败")
	}
	tokenA, err := fromWireLeg(wire.TokenA)
	if err != nil {
		return nil, err
	}
	tokenB, err := fromWireLeg(wire.TokenB)
	if err != nil {
		return nil, err
	}
	liquidity, err := parseBig(wire.LiquidityToRemove)
	if err != nil {
		return nil, err
	}
	return &Params{
		Action:            Action(wire.Action),
		Chain:             wire.Chain,
		BaseToken:         common.HexToAddress(wire.BaseToken),
		TokenA:            tokenA,
		TokenB:            tokenB,
		RouterAddress:     common.HexToAddress(wire.RouterAddress),
		SafeNonce:         wire.SafeNonce,
		DeadlineUnix:      wire.DeadlineUnix,
		LiquidityToRemove: liquidity,
	}, nil
}

func bigString(n *big.Int) string {
	if n == nil {
		return "0"
	}
	return n.String()
}

func parseBig(s string) (*big.Int, error) {
	if strings.TrimSpace(s) == "" {
		return big.NewInt(0), nil
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, xerrors.New(xerrors.CodeEncodingFailure, fmt.Sprintf("无法解析数量: %s", s))
	}
	return n, nil
}
