package signer

import (
	"crypto/ecdsa"
	"math/big"
	"os"
	"strings"

	xerrors "LiquiSafe-Chain/internal/errors"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer 抽象参与者的签名能力。SignHash 对 32 字节哈希做裸签名
// （legacy 模式，不加 EIP-191 前缀），这是多签钱包校验签名的方式；
// SignTx 用于守护者对外层链上交易签名。
type Signer interface {
	Address() common.Address
	SignHash(hash common.Hash) ([]byte, error)
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// LocalSigner 持有本地私钥实现 Signer。
type LocalSigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalSigner 使用给定私钥构造 LocalSigner。
func NewLocalSigner(key *ecdsa.PrivateKey) (*LocalSigner, error) {
	if key == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "私钥不能为空")
	}
	return &LocalSigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

// LoadLocalSigner 从十六进制私钥文件加载 LocalSigner。
func LoadLocalSigner(path string) (*LocalSigner, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "私钥文件路径不能为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取私钥文件失败")
	}
	hexKey := strings.TrimSpace(string(content))
	hexKey = strings.TrimPrefix(hexKey, "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "解析私钥失败")
	}
	return NewLocalSigner(key)
}

// Address 返回签名者地址，即该参与者在协议中的身份。
func (s *LocalSigner) Address() common.Address {
	if s == nil {
		return common.Address{}
	}
	return s.address
}

// SignHash 对哈希做裸 secp256k1 签名，返回 r(32)++s(32)++v(1)，v 为 0/1。
func (s *LocalSigner) SignHash(hash common.Hash) ([]byte, error) {
	if s == nil || s.key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "签名者未初始化")
	}
	sig, err := crypto.Sign(hash.Bytes(), s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "签名哈希失败")
	}
	return sig, nil
}

// SignTx 使用 EIP-155 签名器对链上交易签名。
func (s *LocalSigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s == nil || s.key == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "签名者未初始化")
	}
	if chainID == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "chain ID 不能为空")
	}
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeSigningFailure, err, "签名交易失败")
	}
	return signed, nil
}
