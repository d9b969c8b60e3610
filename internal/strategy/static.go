package strategy

import (
	"context"
	"math/big"
	"os"
	"strings"
	"sync"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// fileLeg 描述策略文件中的一条腿，数量使用十进制字符串。
type fileLeg struct {
	Ticker    string `yaml:"ticker"`
	Address   string `yaml:"address"`
	Amount    string `yaml:"amount"`
	AmountMin string `yaml:"amount_min"`
	IsNative  bool   `yaml:"is_native"`
}

// fileStrategy 对应 configs/strategy.yaml 的结构。
type fileStrategy struct {
	Action            string  `yaml:"action"`
	Chain             string  `yaml:"chain"`
	BaseToken         string  `yaml:"base_token"`
	TokenA            fileLeg `yaml:"token_a"`
	TokenB            fileLeg `yaml:"token_b"`
	RouterAddress     string  `yaml:"router_address"`
	SafeNonce         uint64  `yaml:"safe_nonce"`
	DeadlineUnix      int64   `yaml:"deadline_unix"`
	LiquidityToRemove string  `yaml:"liquidity_to_remove"`
}

// StaticProvider 从本地文件读取策略参数，主要用于联调与测试环境。
// 真实部署时应替换为接入行情与仓位评估的实现。
type StaticProvider struct {
	mu     sync.RWMutex
	params *Params
}

// LoadStaticProvider 解析 YAML 策略文件并构造 StaticProvider。
func LoadStaticProvider(path string) (*StaticProvider, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "策略文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取策略文件失败")
	}

	var def fileStrategy
	if err := yaml.Unmarshal(content, &def); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeEncodingFailure, err, "解析策略文件失败")
	}

	params, err := def.toParams()
	if err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{params: params}, nil
}

// NewStaticProvider 直接使用给定参数构造 StaticProvider。
func NewStaticProvider(params *Params) (*StaticProvider, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return &StaticProvider{params: params}, nil
}

// GetStrategy 返回当前策略参数的拷贝。
func (p *StaticProvider) GetStrategy(_ context.Context) (*Params, error) {
	if p == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "策略供给方未初始化")
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.params == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "策略参数尚未加载")
	}
	clone := *p.params
	clone.TokenA = cloneLeg(p.params.TokenA)
	clone.TokenB = cloneLeg(p.params.TokenB)
	if p.params.LiquidityToRemove != nil {
		clone.LiquidityToRemove = new(big.Int).Set(p.params.LiquidityToRemove)
	}
	return &clone, nil
}

// Update 替换当前策略参数，便于运营侧热更新。
func (p *StaticProvider) Update(params *Params) error {
	if err := params.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.params = params
	p.mu.Unlock()
	return nil
}

func (f fileStrategy) toParams() (*Params, error) {
	tokenA, err := f.TokenA.toLeg()
	if err != nil {
		return nil, err
	}
	tokenB, err := f.TokenB.toLeg()
	if err != nil {
		return nil, err
	}
	liquidity, err := parseBig(f.LiquidityToRemove)
	if err != nil {
		return nil, err
	}
	action := Action(strings.ToUpper(strings.TrimSpace(f.Action)))
	if action == "" {
		action = ActionWait
	}
	return &Params{
		Action:            action,
		Chain:             f.Chain,
		BaseToken:         common.HexToAddress(f.BaseToken),
		TokenA:            tokenA,
		TokenB:            tokenB,
		RouterAddress:     common.HexToAddress(f.RouterAddress),
		SafeNonce:         f.SafeNonce,
		DeadlineUnix:      f.DeadlineUnix,
		LiquidityToRemove: liquidity,
	}, nil
}

func (l fileLeg) toLeg() (Leg, error) {
	amount, err := parseBig(l.Amount)
	if err != nil {
		return Leg{}, err
	}
	amountMin, err := parseBig(l.AmountMin)
	if err != nil {
		return Leg{}, err
	}
	return Leg{
		Ticker:    l.Ticker,
		Address:   common.HexToAddress(l.Address),
		Amount:    amount,
		AmountMin: amountMin,
		IsNative:  l.IsNative,
	}, nil
}

func cloneLeg(l Leg) Leg {
	clone := l
	if l.Amount != nil {
		clone.Amount = new(big.Int).Set(l.Amount)
	}
	if l.AmountMin != nil {
		clone.AmountMin = new(big.Int).Set(l.AmountMin)
	}
	return clone
}
