package chain

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Definitions models the structure of configs/chain.yaml.
type Definitions struct {
	Chains map[string]Definition `yaml:"chains"`
}

// Definition describes a single chain endpoint entry.
type Definition struct {
	Type             string `yaml:"type"`
	RPCURL           string `yaml:"rpc_url"`
	SafeFactory      string `yaml:"safe_factory"`
	SafeSingleton    string `yaml:"safe_singleton"`
	MultiSendAddress string `yaml:"multisend_address"`
	Description      string `yaml:"description"`
}

// LoadDefinitions 解析链配置文件。
func LoadDefinitions(path string) (*Definitions, error) {
	if path == "" {
		return nil, fmt.Errorf("链配置文件路径为空")
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取链配置失败: %w", err)
	}

	var defs Definitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return nil, fmt.Errorf("解析链配置失败: %w", err)
	}
	if len(defs.Chains) == 0 {
		return nil, fmt.Errorf("链配置中没有任何条目")
	}
	return &defs, nil
}
