package contracts

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

func TestSafeTxHashDeterministic(t *testing.T) {
	safe := common.HexToAddress("0x5afe5afe5afe5afe5afe5afe5afe5afe5afe5afe")
	tx := SafeTx{
		To:        common.HexToAddress("0x2222222222222222222222222222222222222222"),
		Value:     big.NewInt(0),
		Data:      []byte{0x01, 0x02},
		Operation: OperationDelegateCall,
		Nonce:     3,
	}

	first, err := SafeTxHash(safe, tx)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	second, err := SafeTxHash(safe, tx)
	if err != nil {
		t.Fatalf("hash again: %v", err)
	}
	if first != second {
		t.Fatalf("same input must yield same hash")
	}

	tx.Nonce = 4
	other, err := SafeTxHash(safe, tx)
	if err != nil {
		t.Fatalf("hash with new nonce: %v", err)
	}
	if other == first {
		t.Fatalf("nonce change must change the hash")
	}
}

func TestSafeTxHashRejectsEmptySafe(t *testing.T) {
	if _, err := SafeTxHash(common.Address{}, SafeTx{}); err == nil {
		t.Fatalf("expected error for empty safe address")
	}
}

func TestAssembleSignaturesOrdersByOwner(t *testing.T) {
	low := common.HexToAddress("0x0000000000000000000000000000000000000001")
	high := common.HexToAddress("0x00000000000000000000000000000000000000ff")

	lowSig := bytes.Repeat([]byte{0xaa}, 65)
	highSig := bytes.Repeat([]byte{0xbb}, 65)
	lowSig[64] = 0
	highSig[64] = 1

	assembled, err := AssembleSignatures(map[common.Address][]byte{
		high: highSig,
		low:  lowSig,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(assembled) != 130 {
		t.Fatalf("expected 130 bytes, got %d", len(assembled))
	}
	if assembled[0] != 0xaa {
		t.Fatalf("expected lower address signature first")
	}
	if assembled[64] != 27 || assembled[129] != 28 {
		t.Fatalf("expected v normalized to 27/28, got %d/%d", assembled[64], assembled[129])
	}
}

func TestAssembleSignaturesRejectsBadLength(t *testing.T) {
	_, err := AssembleSignatures(map[common.Address][]byte{
		common.HexToAddress("0x01"): make([]byte, 64),
	})
	if err == nil {
		t.Fatalf("expected error for 64-byte signature")
	}
}

func TestRecoverSignersRoundTrip(t *testing.T) {
	keyA, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	keyB, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	hash := crypto.Keccak256Hash([]byte("batch authorization"))

	sigA, err := crypto.Sign(hash.Bytes(), keyA)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sigB, err := crypto.Sign(hash.Bytes(), keyB)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	addrA := crypto.PubkeyToAddress(keyA.PublicKey)
	addrB := crypto.PubkeyToAddress(keyB.PublicKey)
	assembled, err := AssembleSignatures(map[common.Address][]byte{
		addrA: sigA,
		addrB: sigB,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	signers, err := RecoverSigners(hash, assembled)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if len(signers) != 2 {
		t.Fatalf("expected 2 signers, got %d", len(signers))
	}
	found := map[common.Address]bool{}
	for _, s := range signers {
		found[s] = true
	}
	if !found[addrA] || !found[addrB] {
		t.Fatalf("recovered signers %v do not match signing keys", signers)
	}
}

func TestExecTransactionDataSelector(t *testing.T) {
	encoder, err := NewEncoder()
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	tx := SafeTx{
		To:        common.HexToAddress("0x02"),
		Value:     big.NewInt(0),
		Data:      []byte{0x01},
		Operation: OperationDelegateCall,
	}
	data, err := encoder.ExecTransactionData(tx, make([]byte, 65))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	method, ok := encoder.abis[ContractSafe].Methods["execTransaction"]
	if !ok {
		t.Fatalf("execTransaction method missing from ABI")
	}
	if !bytes.Equal(data[:4], method.ID) {
		t.Fatalf("unexpected selector %x", data[:4])
	}
}
