// Package config 服务配置：base.yaml + <env>.yaml + secrets.env，再由环境变量覆盖
package config

import (
	"fmt"
	"os"
	"strconv"

	"sprintmail/pkg/config"
)

const (
	StorageDriverPostgres = "postgres"
	StorageDriverMemory   = "memory"
)

type StorageConfig struct {
	// postgres | memory
	Driver string `yaml:"driver"`
	// 启动时执行迁移
	AutoMigrate bool `yaml:"auto_migrate"`
}

type WorkerConfig struct {
	// 分析失败的最大重试次数
	MaxRetries int64 `yaml:"max_retries"`
	// 去重键过期时间（秒）
	DedupTTLSeconds int `yaml:"dedup_ttl_seconds"`
	// outbox 扫描间隔（毫秒）
	OutboxIntervalMS int `yaml:"outbox_interval_ms"`
	OutboxBatchSize  int `yaml:"outbox_batch_size"`
	// 健康检查与 /metrics 端口
	MetricsPort string `yaml:"metrics_port"`
}

type Config struct {
	Env     string              `yaml:"env"`
	DB      config.DBConfig     `yaml:"db"`
	MQ      config.MQConfig     `yaml:"mq"`
	Redis   config.RedisConfig  `yaml:"redis"`
	JWT     config.JWTConfig    `yaml:"jwt"`
	Server  config.ServerConfig `yaml:"server"`
	AI      config.LLMConfig    `yaml:"ai"`
	Otel    config.OtelConfig   `yaml:"otel"`
	Storage StorageConfig       `yaml:"storage"`
	Worker  WorkerConfig        `yaml:"worker"`
}

// Load 读取 CONFIG_ENV 对应的配置；dir 为空时使用 CONFIG_DIR 或 "config"
func Load(dir string) (*Config, error) {
	if dir == "" {
		dir = config.GetEnv("CONFIG_DIR", "config")
	}
	env := config.GetConfigEnv()

	merged, err := config.LoadConfig(env, dir)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := config.Decode(merged, cfg); err != nil {
		return nil, err
	}
	cfg.Env = env

	config.OverrideDBFromEnv(&cfg.DB)
	config.OverrideMQFromEnv(&cfg.MQ)
	config.OverrideRedisFromEnv(&cfg.Redis)
	config.OverrideJWTFromEnv(&cfg.JWT)
	config.OverrideServerFromEnv(&cfg.Server)
	config.OverrideLLMFromEnv(&cfg.AI)
	overrideFromEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default 未在 YAML 中出现的字段使用这些值
func Default() *Config {
	return &Config{
		Server:  config.ServerConfig{Port: ":8080"},
		AI:      config.LLMConfig{Provider: "deepseek", Model: "deepseek-chat", TimeoutSeconds: 30},
		Storage: StorageConfig{Driver: StorageDriverPostgres},
		Worker: WorkerConfig{
			MaxRetries:       5,
			DedupTTLSeconds:  3600,
			OutboxIntervalMS: 1000,
			OutboxBatchSize:  100,
			MetricsPort:      ":9091",
		},
	}
}

func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case StorageDriverPostgres, StorageDriverMemory:
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	return nil
}

func overrideFromEnv(cfg *Config) {
	if driver := os.Getenv("STORAGE_DRIVER"); driver != "" {
		cfg.Storage.Driver = driver
	}
	if v := os.Getenv("WORKER_MAX_RETRIES"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Worker.MaxRetries = n
		}
	}
	if v := os.Getenv("OTEL_ENABLED"); v != "" {
		cfg.Otel.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		cfg.Otel.Endpoint = v
	}
}
