package chain

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/core/types"
)

func TestLoadDefinitions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	content := `
chains:
  sepolia:
    type: ethereum
    rpc_url: https://rpc.sepolia.example.com
    safe_factory: "0x4e1DCf7AD4e460CfD30791CCC4F9c8a4f820ec67"
    safe_singleton: "0x41675C099F32341bf84BFc5382aF534df5C7461a"
    multisend_address: "0x38869bf66a61cF6bDB996A6aE40D5853Fd43B526"
    description: 测试网
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	defs, err := LoadDefinitions(path)
	if err != nil {
		t.Fatalf("load definitions: %v", err)
	}
	def, ok := defs.Chains["sepolia"]
	if !ok {
		t.Fatalf("sepolia entry missing: %+v", defs.Chains)
	}
	if def.Type != "ethereum" || def.RPCURL != "https://rpc.sepolia.example.com" {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.MultiSendAddress == "" {
		t.Fatalf("multisend address not parsed")
	}
}

func TestLoadDefinitionsRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chain.yaml")
	if err := os.WriteFile(path, []byte("chains: {}\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadDefinitions(path); err == nil {
		t.Fatalf("expected error for empty chain list")
	}
}

func TestLoadDefinitionsRejectsMissingFile(t *testing.T) {
	if _, err := LoadDefinitions(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestIsSettled(t *testing.T) {
	if IsSettled(nil) {
		t.Fatalf("nil receipt must not count as settled")
	}
	if IsSettled(&types.Receipt{Status: types.ReceiptStatusFailed}) {
		t.Fatalf("failed receipt must not count as settled")
	}
	if !IsSettled(&types.Receipt{Status: types.ReceiptStatusSuccessful}) {
		t.Fatalf("successful receipt must count as settled")
	}
}
