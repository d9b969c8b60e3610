package ethereum

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"LiquiSafe-Chain/internal/chain"
	"LiquiSafe-Chain/internal/contracts"
	xerrors "LiquiSafe-Chain/internal/errors"
	"LiquiSafe-Chain/internal/signer"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// 预估失败时使用的保底 gas 上限。
const fallbackGasLimit = 10_000_000

// Config describes how to construct an EVM compatible client.
type Config struct {
	Name          string
	RPCURL        string
	SafeFactory   common.Address
	SafeSingleton common.Address
	Notes         string
}

// Client implements the chain.Client interface for EVM compatible chains.
type Client struct {
	name        string
	notes       string
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	encoder     *contracts.Encoder
	safeFactory common.Address
	singleton   common.Address

	mu      sync.Mutex
	chainID *big.Int
}

// NewClient dials the configured RPC endpoint and returns a ready-to-use client.
func NewClient(ctx context.Context, encoder *contracts.Encoder, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, errors.New("未配置以太坊 RPC 地址")
	}
	if encoder == nil {
		return nil, errors.New("未提供合约编码器")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接以太坊节点失败: %w", err)
	}

	return &Client{
		name:        cfg.Name,
		notes:       cfg.Notes,
		rpcClient:   rpcClient,
		eth:         ethclient.NewClient(rpcClient),
		encoder:     encoder,
		safeFactory: cfg.SafeFactory,
		singleton:   cfg.SafeSingleton,
	}, nil
}

// Name 返回链的可读名称。
func (c *Client) Name() string {
	if c == nil {
		return ""
	}
	return c.name
}

// Close 释放网络连接。
func (c *Client) Close() {
	if c == nil {
		return
	}
	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
}

// ChainID 返回链 ID，首次查询后缓存。
func (c *Client) ChainID(ctx context.Context) (*big.Int, error) {
	if c == nil || c.eth == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	c.mu.Lock()
	cached := c.chainID
	c.mu.Unlock()
	if cached != nil {
		return new(big.Int).Set(cached), nil
	}

	id, err := c.eth.ChainID(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "获取链 ID 失败")
	}
	c.mu.Lock()
	c.chainID = new(big.Int).Set(id)
	c.mu.Unlock()
	return id, nil
}

// SubmitCall 构造、签名并广播一笔调用交易。广播成功却得不到交易哈希
// 在 go-ethereum 下不会发生（哈希由本地交易计算），失败路径只有 RPC 错误。
func (c *Client) SubmitCall(ctx context.Context, s signer.Signer, to common.Address, data []byte, value *big.Int) (common.Hash, error) {
	if c == nil || c.eth == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	if s == nil {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "未提供交易签名器")
	}
	if value == nil {
		value = big.NewInt(0)
	}

	chainID, err := c.ChainID(ctx)
	if err != nil {
		return common.Hash{}, err
	}
	from := s.Address()
	nonce, err := c.eth.PendingNonceAt(ctx, from)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 nonce 失败")
	}
	gasPrice, err := c.eth.SuggestGasPrice(ctx)
	if err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询 gas 价格失败")
	}

	gasLimit, err := c.eth.EstimateGas(ctx, gethcore.CallMsg{
		From:  from,
		To:    &to,
		Value: value,
		Data:  data,
	})
	if err != nil || gasLimit == 0 {
		gasLimit = fallbackGasLimit
	}

	tx := coretypes.NewTx(&coretypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := s.SignTx(tx, chainID)
	if err != nil {
		return common.Hash{}, err
	}
	if err := c.eth.SendTransaction(ctx, signed); err != nil {
		return common.Hash{}, xerrors.Wrap(xerrors.CodeChainFailure, err, "广播交易失败")
	}
	return signed.Hash(), nil
}

// DeploySafe 通过代理工厂部署新的多签钱包，并从回执事件中解析地址。
func (c *Client) DeploySafe(ctx context.Context, s signer.Signer, owners []common.Address, threshold uint64) (common.Address, common.Hash, error) {
	if c == nil || c.eth == nil {
		return common.Address{}, common.Hash{}, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	if c.safeFactory == (common.Address{}) || c.singleton == (common.Address{}) {
		return common.Address{}, common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "未配置钱包工厂或 singleton 地址")
	}

	setupData, err := c.encoder.SetupData(owners, threshold)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	createData, err := c.encoder.CreateProxyData(c.singleton, setupData)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}

	txHash, err := c.SubmitCall(ctx, s, c.safeFactory, createData, nil)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}

	receipt, err := c.WaitForReceipt(ctx, txHash, 30, 2*time.Second)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	if receipt == nil {
		return common.Address{}, common.Hash{}, xerrors.New(xerrors.CodeSettlementPending,
			fmt.Sprintf("部署交易 %s 在预算内未取得回执", txHash.Hex()))
	}
	if !chain.IsSettled(receipt) {
		return common.Address{}, common.Hash{}, xerrors.New(xerrors.CodeChainFailure,
			fmt.Sprintf("部署交易 %s 执行失败", txHash.Hex()))
	}

	proxy, err := contracts.ProxyAddressFromReceipt(receipt)
	if err != nil {
		return common.Address{}, common.Hash{}, err
	}
	return proxy, txHash, nil
}

// Receipt 查询交易回执，未上链时返回 (nil, nil)。
func (c *Client) Receipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error) {
	if c == nil || c.eth == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	receipt, err := c.eth.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, gethcore.NotFound) {
			return nil, nil
		}
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询回执失败")
	}
	return receipt, nil
}

// WaitForReceipt 以固定的尝试次数和间隔轮询回执，预算耗尽返回 (nil, nil)。
func (c *Client) WaitForReceipt(ctx context.Context, txHash common.Hash, attempts int, interval time.Duration) (*coretypes.Receipt, error) {
	if attempts <= 0 {
		attempts = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	for i := 0; i < attempts; i++ {
		receipt, err := c.Receipt(ctx, txHash)
		if err != nil {
			return nil, err
		}
		if receipt != nil {
			return receipt, nil
		}
		select {
		case <-ctx.Done():
			return nil, xerrors.Wrap(xerrors.CodeTimeout, ctx.Err(), "等待回执被取消")
		case <-time.After(interval):
		}
	}
	return nil, nil
}

// TransactionByHash 返回已广播的交易原文。
func (c *Client) TransactionByHash(ctx context.Context, txHash common.Hash) (*coretypes.Transaction, error) {
	if c == nil || c.eth == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	tx, _, err := c.eth.TransactionByHash(ctx, txHash)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "查询交易失败")
	}
	return tx, nil
}

// CallContract 执行一次只读合约调用。
func (c *Client) CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error) {
	if c == nil || c.eth == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "以太坊客户端未初始化")
	}
	output, err := c.eth.CallContract(ctx, gethcore.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeChainFailure, err, "只读调用失败")
	}
	return output, nil
}
