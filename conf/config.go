package conf

import (
	"fmt"
	"gopkg.in/yaml.v3"
	"os"
	"time"
)

// 配置加载（API密钥等）

type Okx struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Password  string `yaml:"password"`
	Simulated bool   `yaml:"simulated"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

type SyncConfig struct {
	// 快照三个快查询的超时时间
	QueryTimeout time.Duration `yaml:"query-timeout"`
	// 历史订单/成交缓存的有效期
	HistoryTTL time.Duration `yaml:"history-ttl"`
	// 历史查询回溯窗口，默认7天
	HistoryWindow time.Duration `yaml:"history-window"`
}

type GatewayConfig struct {
	// 可重试错误的最大尝试次数（RateLimited/NetworkTimeout）
	MaxAttempts int `yaml:"max-attempts"`
	// 退避基础时间，按尝试次数指数递增
	RetryBackoff time.Duration `yaml:"retry-backoff"`
	// 单次交易所调用的超时时间
	SubmitTimeout time.Duration `yaml:"submit-timeout"`
}

type DecisionConfig struct {
	Enabled bool `yaml:"enabled"`
	// 决策轮询间隔
	Interval time.Duration `yaml:"interval"`
	// 决策可交易的币种（BASE部分，如BTC、ETH）
	Symbols []string `yaml:"symbols"`
	// 单次决策最大仓位比例
	MaxPortion float64 `yaml:"max-portion"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Okx      `yaml:"okx"`
	Db       `yaml:"database"`
	Log      LogConfig      `yaml:"log"`
	Sync     SyncConfig     `yaml:"sync"`
	Gateway  GatewayConfig  `yaml:"gateway"`
	Decision DecisionConfig `yaml:"decision"`
}

var AppConfig Config

func LoadConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	applyDefaults(&AppConfig)
	return nil
}

func applyDefaults(c *Config) {
	if c.Sync.QueryTimeout <= 0 {
		c.Sync.QueryTimeout = 10 * time.Second
	}
	if c.Sync.HistoryTTL <= 0 {
		c.Sync.HistoryTTL = 30 * time.Second
	}
	if c.Sync.HistoryWindow <= 0 {
		c.Sync.HistoryWindow = 7 * 24 * time.Hour
	}
	if c.Gateway.MaxAttempts <= 0 {
		c.Gateway.MaxAttempts = 3
	}
	if c.Gateway.RetryBackoff <= 0 {
		c.Gateway.RetryBackoff = time.Second
	}
	if c.Gateway.SubmitTimeout <= 0 {
		c.Gateway.SubmitTimeout = 30 * time.Second
	}
	if c.Decision.Interval <= 0 {
		c.Decision.Interval = 5 * time.Minute
	}
	if c.Decision.MaxPortion <= 0 || c.Decision.MaxPortion > 1 {
		c.Decision.MaxPortion = 0.2
	}
}
