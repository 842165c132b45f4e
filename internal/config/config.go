package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pvtclawn/swarm-verifier/internal/scoring"
)

// Config 描述了验证服务在启动阶段需要加载的核心配置。
type Config struct {
	Server   ServerConfig   `json:"server"`
	Storage  StorageConfig  `json:"storage"`
	Queue    QueueConfig    `json:"queue"`
	Verifier VerifierConfig `json:"verifier"`
	Chain    ChainConfig    `json:"chain"`
	Logging  LoggingConfig  `json:"logging"`
	Runtime  RuntimeConfig  `json:"runtime"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address        string `json:"address"`
	MetricsAddress string `json:"metrics_address"`
}

// StorageConfig 统一描述验证记录与任务状态的后端连接信息。
type StorageConfig struct {
	Verifications StoreConfig `json:"verifications"`
	Jobs          StoreConfig `json:"jobs"`
}

// StoreConfig 支持 memory 与 mysql 两种驱动。
type StoreConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// QueueConfig 描述异步任务队列的后端。
type QueueConfig struct {
	Driver   string         `json:"driver"`
	Workers  int            `json:"workers"`
	Redis    RedisConfig    `json:"redis"`
	RabbitMQ RabbitMQConfig `json:"rabbitmq"`
}

// RedisConfig 描述 Redis 队列的连接参数。
type RedisConfig struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	Queue    string `json:"queue"`
}

// RabbitMQConfig 描述 RabbitMQ 队列的连接参数。
type RabbitMQConfig struct {
	URL      string `json:"url"`
	Queue    string `json:"queue"`
	Prefetch int    `json:"prefetch"`
	Durable  bool   `json:"durable"`
}

// VerifierConfig 控制验证流程的行为。
// Policy 为空时使用内置的默认标定；只填写部分字段时其余字段回落到默认值，
// 便于只重标定判定阈值而不展开整条曲线。
type VerifierConfig struct {
	Identity         string          `json:"identity"`
	DefaultTimeoutMs int64           `json:"default_timeout_ms"`
	MaxRetries       int             `json:"max_retries"`
	Policy           *scoring.Policy `json:"policy"`
}

// ChainConfig 包含访问区块链节点以及账本定义所需的信息。
// Ledger 指向账本定义文件中的条目，补充 RPC 地址与挑战窗口默认值。
type ChainConfig struct {
	RPCURL      string `json:"rpc_url"`
	Ledger      string `json:"ledger"`
	LedgersPath string `json:"ledgers_path"`
}

// LoggingConfig 控制日志输出。
type LoggingConfig struct {
	Level    string `json:"level"`
	Format   string `json:"format"`
	AuditDir string `json:"audit_dir"`
}

// RuntimeConfig 用于放置运行时的通用参数。
type RuntimeConfig struct {
	DataDir string `json:"data_dir"`
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

	if c.Storage.Verifications.Driver == "" {
		c.Storage.Verifications.Driver = "memory"
	}
	if c.Storage.Jobs.Driver == "" {
		c.Storage.Jobs.Driver = "memory"
	}

	if c.Queue.Driver == "" {
		c.Queue.Driver = "memory"
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}

	if c.Verifier.DefaultTimeoutMs <= 0 {
		c.Verifier.DefaultTimeoutMs = 10000
	}
	if c.Verifier.MaxRetries <= 0 {
		c.Verifier.MaxRetries = 3
	}
	if c.Verifier.Policy != nil {
		fillPolicyDefaults(c.Verifier.Policy)
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}

	if c.Runtime.DataDir == "" {
		c.Runtime.DataDir = filepath.Join(baseDir, "data")
	} else if !filepath.IsAbs(c.Runtime.DataDir) {
		c.Runtime.DataDir = filepath.Join(baseDir, c.Runtime.DataDir)
	}
	if c.Logging.AuditDir == "" {
		c.Logging.AuditDir = filepath.Join(c.Runtime.DataDir, "audit")
	} else if !filepath.IsAbs(c.Logging.AuditDir) {
		c.Logging.AuditDir = filepath.Join(baseDir, c.Logging.AuditDir)
	}
	if c.Chain.LedgersPath != "" && !filepath.IsAbs(c.Chain.LedgersPath) {
		c.Chain.LedgersPath = filepath.Join(baseDir, c.Chain.LedgersPath)
	}
}

// fillPolicyDefaults 补齐部分重标定时未填写的字段。
func fillPolicyDefaults(p *scoring.Policy) {
	defaults := scoring.DefaultPolicy()
	if len(p.TimeBands) == 0 {
		p.TimeBands = defaults.TimeBands
	}
	if len(p.CVBands) == 0 {
		p.CVBands = defaults.CVBands
	}
	if p.LengthWeight <= 0 && p.OverlapWeight <= 0 {
		p.LengthWeight = defaults.LengthWeight
		p.OverlapWeight = defaults.OverlapWeight
	}
	if p.NeutralScore <= 0 {
		p.NeutralScore = defaults.NeutralScore
	}
	if p.GenuineThreshold <= 0 {
		p.GenuineThreshold = defaults.GenuineThreshold
	}
	if p.SuspiciousThreshold <= 0 {
		p.SuspiciousThreshold = defaults.SuspiciousThreshold
	}
}
