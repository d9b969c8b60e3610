package ethereum

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"LiquiSafe-Chain/internal/contracts"

	"github.com/ethereum/go-ethereum/common"
)

// newPendingReceiptServer 模拟一个节点：交易始终未上链，
// eth_getTransactionReceipt 永远返回 null。
func newPendingReceiptServer(t *testing.T, polls *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     json.RawMessage `json:"id"`
			Method string          `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode rpc request: %v", err)
			return
		}
		if req.Method == "eth_getTransactionReceipt" {
			polls.Add(1)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":` + string(req.ID) + `,"result":null}`))
	}))
}

func newTestClient(t *testing.T, rpcURL string) *Client {
	t.Helper()
	encoder, err := contracts.NewEncoder()
	if err != nil {
		t.Fatalf("new encoder: %v", err)
	}
	client, err := NewClient(context.Background(), encoder, Config{Name: "test", RPCURL: rpcURL})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestReceiptNotFoundIsPending(t *testing.T) {
	var polls atomic.Int64
	server := newPendingReceiptServer(t, &polls)
	defer server.Close()
	client := newTestClient(t, server.URL)

	receipt, err := client.Receipt(context.Background(), common.HexToHash("0x01"))
	if err != nil {
		t.Fatalf("receipt: %v", err)
	}
	if receipt != nil {
		t.Fatalf("a not-yet-mined transaction must yield a nil receipt, got %+v", receipt)
	}
}

func TestWaitForReceiptExhaustsBudget(t *testing.T) {
	// 预算耗尽既不是错误也不是失败回执：返回 (nil, nil)，由协议层
	// 弃权并在下一次尝试中继续跟踪。
	var polls atomic.Int64
	server := newPendingReceiptServer(t, &polls)
	defer server.Close()
	client := newTestClient(t, server.URL)

	receipt, err := client.WaitForReceipt(context.Background(), common.HexToHash("0x01"), 3, time.Millisecond)
	if err != nil {
		t.Fatalf("wait for receipt: %v", err)
	}
	if receipt != nil {
		t.Fatalf("budget exhaustion must report an unresolved receipt, got %+v", receipt)
	}
	if got := polls.Load(); got != 3 {
		t.Fatalf("expected exactly 3 receipt polls, got %d", got)
	}
}
