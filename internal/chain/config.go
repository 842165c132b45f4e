package chain

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// LedgerDefinitions models the structure of configs/ledgers.yaml.
type LedgerDefinitions struct {
	Ledgers map[string]LedgerDefinition `yaml:"ledgers"`
}

// LedgerDefinition describes a single ledger endpoint plus the window lengths
// tuned for its block interval.
type LedgerDefinition struct {
	RPCURL       string `yaml:"rpc_url"`
	CommitBlocks uint64 `yaml:"commit_blocks"`
	RevealBlocks uint64 `yaml:"reveal_blocks"`
	Description  string `yaml:"description"`
}

// LoadLedgerDefinitions parses the YAML file containing ledger metadata.
func LoadLedgerDefinitions(path string) (LedgerDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return LedgerDefinitions{Ledgers: map[string]LedgerDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return LedgerDefinitions{}, fmt.Errorf("读取账本配置失败: %w", err)
	}

	var defs LedgerDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return LedgerDefinitions{}, fmt.Errorf("解析账本配置失败: %w", err)
	}
	if defs.Ledgers == nil {
		defs.Ledgers = map[string]LedgerDefinition{}
	}
	return defs, nil
}
