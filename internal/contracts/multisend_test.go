package contracts

import (
	"bytes"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackMultiSendLayout(t *testing.T) {
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	data := []byte{0xde, 0xad, 0xbe, 0xef}
	packed, err := PackMultiSend([]MultiSendTx{{
		Operation: OperationCall,
		To:        to,
		Value:     big.NewInt(7),
		Data:      data,
	}})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}

	// 1 字节操作码 + 20 字节地址 + 32 字节金额 + 32 字节长度 + data。
	wantLen := 1 + 20 + 32 + 32 + len(data)
	if len(packed) != wantLen {
		t.Fatalf("expected %d bytes, got %d", wantLen, len(packed))
	}
	if packed[0] != byte(OperationCall) {
		t.Fatalf("expected operation byte 0, got %d", packed[0])
	}
	if !bytes.Equal(packed[1:21], to.Bytes()) {
		t.Fatalf("unexpected target address bytes")
	}
	if packed[52] != 7 {
		t.Fatalf("expected value 7 in last byte of value word, got %d", packed[52])
	}
	if packed[84] != byte(len(data)) {
		t.Fatalf("expected data length %d, got %d", len(data), packed[84])
	}
	if !bytes.Equal(packed[85:], data) {
		t.Fatalf("unexpected data suffix")
	}
}

func TestPackMultiSendConcatenatesInOrder(t *testing.T) {
	first := MultiSendTx{Operation: OperationCall, To: common.HexToAddress("0x01"), Value: big.NewInt(0)}
	second := MultiSendTx{Operation: OperationDelegateCall, To: common.HexToAddress("0x02"), Value: big.NewInt(0)}

	packed, err := PackMultiSend([]MultiSendTx{first, second})
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	single, err := PackMultiSend([]MultiSendTx{first})
	if err != nil {
		t.Fatalf("pack single: %v", err)
	}
	if !bytes.Equal(packed[:len(single)], single) {
		t.Fatalf("expected first transaction to be packed first")
	}
	if packed[len(single)] != byte(OperationDelegateCall) {
		t.Fatalf("expected second transaction to start with delegatecall opcode")
	}
}

func TestPackMultiSendRejectsEmptyBatch(t *testing.T) {
	if _, err := PackMultiSend(nil); err == nil {
		t.Fatalf("expected error for empty batch")
	}
}

func TestPackMultiSendRejectsNegativeValue(t *testing.T) {
	_, err := PackMultiSend([]MultiSendTx{{
		Operation: OperationCall,
		To:        common.HexToAddress("0x01"),
		Value:     big.NewInt(-1),
	}})
	if err == nil {
		t.Fatalf("expected error for negative value")
	}
}
