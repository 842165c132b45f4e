package chain

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadLedgerDefinitions(t *testing.T) {
	content := `ledgers:
  sepolia:
    rpc_url: https://rpc.sepolia.example
    commit_blocks: 10
    reveal_blocks: 10
    description: 12s block interval
  local:
    rpc_url: http://127.0.0.1:8545
    commit_blocks: 40
    reveal_blocks: 40
`
	path := filepath.Join(t.TempDir(), "ledgers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	defs, err := LoadLedgerDefinitions(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(defs.Ledgers) != 2 {
		t.Fatalf("unexpected ledger count: %d", len(defs.Ledgers))
	}
	sepolia := defs.Ledgers["sepolia"]
	if sepolia.RPCURL != "https://rpc.sepolia.example" || sepolia.CommitBlocks != 10 {
		t.Fatalf("unexpected sepolia definition: %+v", sepolia)
	}
}

func TestLoadLedgerDefinitionsEmptyPath(t *testing.T) {
	defs, err := LoadLedgerDefinitions("")
	if err != nil {
		t.Fatalf("empty path should not fail: %v", err)
	}
	if defs.Ledgers == nil {
		t.Fatal("ledgers map must be initialised")
	}
}
