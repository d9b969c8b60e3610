package chain

import (
	"context"
	"math/big"
	"time"

	"LiquiSafe-Chain/internal/signer"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Client 是协议层对链 RPC 的全部依赖。广播必须返回交易哈希，返回
// 空哈希视为协议违例，由调用方上报而不是静默重试。
type Client interface {
	// Name 返回链的可读名称。
	Name() string
	// ChainID 返回链 ID。
	ChainID(ctx context.Context) (*big.Int, error)
	// SubmitCall 构造、签名并广播一笔指向 to 的调用交易，返回交易哈希。
	SubmitCall(ctx context.Context, s signer.Signer, to common.Address, data []byte, value *big.Int) (common.Hash, error)
	// DeploySafe 部署一个以 owners/threshold 初始化的多签钱包。
	DeploySafe(ctx context.Context, s signer.Signer, owners []common.Address, threshold uint64) (common.Address, common.Hash, error)
	// Receipt 查询交易回执，交易尚未上链时返回 (nil, nil)。
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// WaitForReceipt 以 attempts×interval 的预算轮询回执，预算耗尽返回 (nil, nil)。
	WaitForReceipt(ctx context.Context, txHash common.Hash, attempts int, interval time.Duration) (*types.Receipt, error)
	// TransactionByHash 返回已广播的交易原文。
	TransactionByHash(ctx context.Context, txHash common.Hash) (*types.Transaction, error)
	// CallContract 执行一次只读合约调用。
	CallContract(ctx context.Context, to common.Address, data []byte) ([]byte, error)
	// Close 释放底层连接。
	Close()
}

// IsSettled 判断回执是否表示链上执行成功。
func IsSettled(receipt *types.Receipt) bool {
	return receipt != nil && receipt.Status == types.ReceiptStatusSuccessful
}
