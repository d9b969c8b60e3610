package contracts

import (
	"bytes"
	"math/big"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
)

// Operation 区分普通调用与委托调用。
type Operation uint8

const (
	OperationCall         Operation = 0
	OperationDelegateCall Operation = 1
)

// MultiSendTx 是批量交易中的一个子调用。子调用的顺序即链上执行顺序，
// 并直接参与钱包交易哈希的计算，因此不可重排。
type MultiSendTx struct {
	Operation Operation
	To        common.Address
	Value     *big.Int
	Data      []byte
}

// PackMultiSend 将子调用序列打包成 MultiSend 合约要求的紧凑字节布局：
// operation(1) ++ to(20) ++ value(32) ++ dataLength(32) ++ data。
func PackMultiSend(txs []MultiSendTx) ([]byte, error) {
	if len(txs) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "批量交易不能为空")
	}
	var buf bytes.Buffer
	for _, tx := range txs {
		value := tx.Value
		if value == nil {
			value = big.NewInt(0)
		}
		if value.Sign() < 0 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "子调用 value 不能为负")
		}
		buf.WriteByte(byte(tx.Operation))
		buf.Write(tx.To.Bytes())
		buf.Write(common.LeftPadBytes(value.Bytes(), 32))
		buf.Write(common.LeftPadBytes(big.NewInt(int64(len(tx.Data))).Bytes(), 32))
		buf.Write(tx.Data)
	}
	return buf.Bytes(), nil
}

// MultiSendData 编码 multiSend(bytes) 调用，参数为打包后的子调用序列。
func (e *Encoder) MultiSendData(txs []MultiSendTx) ([]byte, error) {
	packed, err := PackMultiSend(txs)
	if err != nil {
		return nil, err
	}
	return e.Encode(ContractMultiSend, "multiSend", packed)
}
