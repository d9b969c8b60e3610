package contracts

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// keccak256("EIP712Domain(address verifyingContract)")
	domainSeparatorTypehash = crypto.Keccak256Hash([]byte("EIP712Domain(address verifyingContract)"))
	// keccak256("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)")
	safeTxTypehash = crypto.Keccak256Hash([]byte("SafeTx(address to,uint256 value,bytes data,uint8 operation,uint256 safeTxGas,uint256 baseGas,uint256 gasPrice,address gasToken,address refundReceiver,uint256 nonce)"))
)

// SafeTx 描述一笔待多签钱包执行的交易。
type SafeTx struct {
	To             common.Address
	Value          *big.Int
	Data           []byte
	Operation      Operation
	SafeTxGas      *big.Int
	BaseGas        *big.Int
	GasPrice       *big.Int
	GasToken       common.Address
	RefundReceiver common.Address
	Nonce          uint64
}

// SafeTxHash 计算钱包合约认可的 EIP-712 交易哈希。签名覆盖的就是这
// 个哈希，所有参与者必须从同一组已共识参数推导出相同的结果。
func SafeTxHash(safe common.Address, tx SafeTx) (common.Hash, error) {
	if safe == (common.Address{}) {
		return common.Hash{}, xerrors.New(xerrors.CodeInvalidArgument, "钱包地址不能为空")
	}

	domainSeparator := crypto.Keccak256Hash(
		domainSeparatorTypehash.Bytes(),
		common.LeftPadBytes(safe.Bytes(), 32),
	)

	structHash := crypto.Keccak256Hash(
		safeTxTypehash.Bytes(),
		common.LeftPadBytes(tx.To.Bytes(), 32),
		uint256Word(tx.Value),
		crypto.Keccak256(tx.Data),
		uint256Word(big.NewInt(int64(tx.Operation))),
		uint256Word(tx.SafeTxGas),
		uint256Word(tx.BaseGas),
		uint256Word(tx.GasPrice),
		common.LeftPadBytes(tx.GasToken.Bytes(), 32),
		common.LeftPadBytes(tx.RefundReceiver.Bytes(), 32),
		uint256Word(new(big.Int).SetUint64(tx.Nonce)),
	)

	return crypto.Keccak256Hash([]byte{0x19, 0x01}, domainSeparator.Bytes(), structHash.Bytes()), nil
}

// AssembleSignatures 将各参与者的签名按钱包合约要求的顺序拼接：
// 按签名者地址升序排列，每个签名为 r(32) ++ s(32) ++ v(1)，v 取 27/28。
func AssembleSignatures(signatures map[common.Address][]byte) ([]byte, error) {
	if len(signatures) == 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "没有可用的签名")
	}

	owners := make([]common.Address, 0, len(signatures))
	for owner := range signatures {
		owners = append(owners, owner)
	}
	sort.Slice(owners, func(i, j int) bool {
		return bytes.Compare(owners[i].Bytes(), owners[j].Bytes()) < 0
	})

	var buf bytes.Buffer
	for _, owner := range owners {
		sig := signatures[owner]
		if len(sig) != 65 {
			return nil, xerrors.New(xerrors.CodeInvalidArgument,
				fmt.Sprintf("签名长度非法: %s 提供了 %d 字节", owner.Hex(), len(sig)))
		}
		normalized := make([]byte, 65)
		copy(normalized, sig)
		// secp256k1 签名的 recovery id 为 0/1，合约侧要求 27/28。
		if normalized[64] < 27 {
			normalized[64] += 27
		}
		buf.Write(normalized)
	}
	return buf.Bytes(), nil
}

// ExecTransactionData 编码钱包合约的 execTransaction 调用。
func (e *Encoder) ExecTransactionData(tx SafeTx, signatures []byte) ([]byte, error) {
	if len(signatures) == 0 || len(signatures)%65 != 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名串长度必须是 65 的整数倍")
	}
	return e.Encode(ContractSafe, "execTransaction",
		tx.To,
		orZero(tx.Value),
		tx.Data,
		uint8(tx.Operation),
		orZero(tx.SafeTxGas),
		orZero(tx.BaseGas),
		orZero(tx.GasPrice),
		tx.GasToken,
		tx.RefundReceiver,
		signatures,
	)
}

// DecodeExecTransaction 解码 execTransaction 调用，返回交易字段与
// 签名串。结算校验用它核对链上交易：不同参与者收集到的签名子集可能
// 不同，因此校验比对的是解码后的字段与恢复出的签名者，而不是字节串。
func (e *Encoder) DecodeExecTransaction(data []byte) (SafeTx, []byte, error) {
	method, ok := e.abis[ContractSafe].Methods["execTransaction"]
	if !ok {
		return SafeTx{}, nil, xerrors.New(xerrors.CodeInitializationFailure, "ABI 中缺少 execTransaction")
	}
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return SafeTx{}, nil, xerrors.New(xerrors.CodeVerificationFailure, "calldata 不是 execTransaction 调用")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return SafeTx{}, nil, xerrors.Wrap(xerrors.CodeVerificationFailure, err, "解码 execTransaction 参数失败")
	}
	if len(values) != 10 {
		return SafeTx{}, nil, xerrors.New(xerrors.CodeVerificationFailure, "execTransaction 参数数量不符")
	}

	tx := SafeTx{
		To:             values[0].(common.Address),
		Value:          values[1].(*big.Int),
		Data:           values[2].([]byte),
		Operation:      Operation(values[3].(uint8)),
		SafeTxGas:      values[4].(*big.Int),
		BaseGas:        values[5].(*big.Int),
		GasPrice:       values[6].(*big.Int),
		GasToken:       values[7].(common.Address),
		RefundReceiver: values[8].(common.Address),
	}
	signatures := values[9].([]byte)
	return tx, signatures, nil
}

// RecoverSigners 恢复签名串中每个签名对应的地址，用于结算校验阶段
// 独立核对链上交易携带的签名确实出自参与者集合。
func RecoverSigners(hash common.Hash, signatures []byte) ([]common.Address, error) {
	if len(signatures) == 0 || len(signatures)%65 != 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "签名串长度必须是 65 的整数倍")
	}
	signers := make([]common.Address, 0, len(signatures)/65)
	for off := 0; off < len(signatures); off += 65 {
		sig := make([]byte, 65)
		copy(sig, signatures[off:off+65])
		if sig[64] >= 27 {
			sig[64] -= 27
		}
		pub, err := crypto.SigToPub(hash.Bytes(), sig)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeVerificationFailure, err, "恢复签名者失败")
		}
		signers = append(signers, crypto.PubkeyToAddress(*pub))
	}
	return signers, nil
}

func uint256Word(n *big.Int) []byte {
	if n == nil {
		return make([]byte, 32)
	}
	return common.LeftPadBytes(n.Bytes(), 32)
}

func orZero(n *big.Int) *big.Int {
	if n == nil {
		return big.NewInt(0)
	}
	return n
}
