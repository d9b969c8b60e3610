package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Config 描述了 LiquiSafe 参与方进程在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Agent    AgentConfig    `json:"agent"`
	Protocol ProtocolConfig `json:"protocol"`
	Relay    RelayConfig    `json:"relay"`
	Journal  JournalConfig  `json:"journal"`
	Chain    ChainConfig    `json:"chain"`
	Strategy StrategyConfig `json:"strategy"`
	Beacon   BeaconConfig   `json:"beacon"`
	Alerting AlertingConfig `json:"alerting"`
}

// ServerConfig 控制状态接口的监听地址等参数。MetricsAddress 非空时
// 额外启动一个独立的指标监听端口，便于把指标面与状态面隔离。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// AgentConfig 描述本方身份：私钥文件路径。
type AgentConfig struct {
	KeyFile string `json:"key_file"`
}

// ProtocolConfig 描述参与方集合与轮次参数。
type ProtocolConfig struct {
	Participants    []string `json:"participants"`
	Threshold       int      `json:"threshold"`
	SafeAddress     string   `json:"safe_address"`
	RoundTimeoutSec int      `json:"round_timeout_sec"`
	ResetPauseSec   int      `json:"reset_pause_sec"`
	ReceiptAttempts int      `json:"receipt_attempts"`
	ReceiptGapSec   int      `json:"receipt_gap_sec"`
	MaxRetries      int      `json:"max_retries"`
}

// RelayConfig 描述提案中继后端的连接信息。
type RelayConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Channel  string `json:"channel"`
	URL      string `json:"url"`
	Exchange string `json:"exchange"`
}

// JournalConfig 描述审计存储后端。
type JournalConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// ChainConfig 指向链定义文件与默认链。
type ChainConfig struct {
	ConfigFile   string `json:"config_file"`
	DefaultChain string `json:"default_chain"`
}

// StrategyConfig 指向策略文件。
type StrategyConfig struct {
	File string `json:"file"`
}

// BeaconConfig 描述随机数信标端点。
type BeaconConfig struct {
	BaseURL    string `json:"base_url"`
	TimeoutSec int    `json:"timeout_sec"`
}

// AlertingConfig 描述告警渠道，留空的渠道不启用。
type AlertingConfig struct {
	DingTalkWebhook string `json:"dingtalk_webhook"`
	SlackWebhook    string `json:"slack_webhook"`
	SlackChannel    string `json:"slack_channel"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.Relay.Driver == "" {
		c.Relay.Driver = "memory"
	}

	if c.Journal.Driver == "" {
		c.Journal.Driver = "memory"
	}

	if c.Protocol.RoundTimeoutSec <= 0 {
		c.Protocol.RoundTimeoutSec = 60
	}
	if c.Protocol.ResetPauseSec <= 0 {
		c.Protocol.ResetPauseSec = 30
	}
	if c.Protocol.ReceiptAttempts <= 0 {
		c.Protocol.ReceiptAttempts = 30
	}
	if c.Protocol.ReceiptGapSec <= 0 {
		c.Protocol.ReceiptGapSec = 2
	}
	if c.Protocol.MaxRetries <= 0 {
		c.Protocol.MaxRetries = 5
	}

	if c.Chain.ConfigFile == "" {
		c.Chain.ConfigFile = filepath.Join(baseDir, "chain.yaml")
	} else if !filepath.IsAbs(c.Chain.ConfigFile) {
		c.Chain.ConfigFile = filepath.Join(baseDir, c.Chain.ConfigFile)
	}

	if c.Strategy.File != "" && !filepath.IsAbs(c.Strategy.File) {
		c.Strategy.File = filepath.Join(baseDir, c.Strategy.File)
	}

	if c.Agent.KeyFile != "" && !filepath.IsAbs(c.Agent.KeyFile) {
		c.Agent.KeyFile = filepath.Join(baseDir, c.Agent.KeyFile)
	}
}
