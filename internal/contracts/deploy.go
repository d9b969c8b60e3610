package contracts

import (
	"math/big"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// proxyCreationTopic 是代理工厂 ProxyCreation(address) 事件的主题。
var proxyCreationTopic = crypto.Keccak256Hash([]byte("ProxyCreation(address)"))

// SetupData 编码钱包合约的初始化调用：设定所有者集合与签名阈值。
func (e *Encoder) SetupData(owners []common.Address, threshold uint64) ([]byte, error) {
	if len(owners) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "所有者集合不能为空")
	}
	if threshold == 0 || threshold > uint64(len(owners)) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名阈值必须在 1 和所有者数量之间")
	}
	return e.Encode(ContractSafe, "setup",
		owners,
		new(big.Int).SetUint64(threshold),
		common.Address{},
		[]byte{},
		common.Address{},
		common.Address{},
		big.NewInt(0),
		common.Address{},
	)
}

// CreateProxyData 编码代理工厂的 createProxy 调用。
func (e *Encoder) CreateProxyData(singleton common.Address, setupData []byte) ([]byte, error) {
	if singleton == (common.Address{}) {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "singleton 地址不能为空")
	}
	return e.Encode(ContractProxyFactory, "createProxy", singleton, setupData)
}

// ProxyAddressFromReceipt 从部署回执的事件日志中解析新钱包地址。
func ProxyAddressFromReceipt(receipt *types.Receipt) (common.Address, error) {
	if receipt == nil {
		return common.Address{}, xerrors.New(xerrors.CodeInvalidArgument, "回执不能为空")
	}
	for _, log := range receipt.Logs {
		if log == nil || len(log.Topics) == 0 {
			continue
		}
		if log.Topics[0] != proxyCreationTopic {
			continue
		}
		if len(log.Data) < 32 {
			continue
		}
		return common.BytesToAddress(log.Data[12:32]), nil
	}
	return common.Address{}, xerrors.New(xerrors.CodeVerificationFailure, "回执中没有 ProxyCreation 事件")
}
