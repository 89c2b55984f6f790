package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"standx-maker-go/infrastructure/logger"
)

// 默认值
const (
	DefaultRebalanceDistanceBps = 20
	DefaultChain                = "bsc"
	DefaultBaseURL              = "https://perps.standx.com"
	DefaultWSURL                = "wss://perps.standx.com/ws"
	DefaultTimeoutSec           = 10
	DefaultAlertThrottleSec     = 60
	DefaultMetricsAddr          = ":9104"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Wallet WalletConfig `yaml:"wallet"`
	Symbol string       `yaml:"symbol"`

	// 报价参数，单位bps
	OrderDistanceBps       float64 `yaml:"order_distance_bps"`
	CancelDistanceBps      float64 `yaml:"cancel_distance_bps"`
	RebalanceDistanceBps   float64 `yaml:"rebalance_distance_bps"`
	OrderSize              float64 `yaml:"order_size"`
	MaxPosition            float64 `yaml:"max_position"`
	VolatilityWindowSec    int     `yaml:"volatility_window_sec"`
	VolatilityThresholdBps float64 `yaml:"volatility_threshold_bps"`

	Gateway GatewayConfig `yaml:"gateway"`
	Log     logger.Config `yaml:"log"`
	Alert   AlertConfig   `yaml:"alert"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// WalletConfig 钱包凭证。private_key 与 api_token 至少提供一个。
type WalletConfig struct {
	Chain      string `yaml:"chain"`
	PrivateKey string `yaml:"private_key"`
	APIToken   string `yaml:"api_token"`
	APISecret  string `yaml:"api_secret"`
}

// BearerToken 返回网关凭证，优先会话token，其次API钱包密钥。
func (w WalletConfig) BearerToken() string {
	if w.APIToken != "" {
		return w.APIToken
	}
	return w.PrivateKey
}

type GatewayConfig struct {
	BaseURL    string `yaml:"base_url"`
	WSURL      string `yaml:"ws_url"`
	TimeoutSec int    `yaml:"timeout_sec"`
}

type AlertConfig struct {
	ThrottleSec int `yaml:"throttle_sec"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// load reads and parses the file and applies defaults, without validating.
func load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	return cfg, nil
}

// Load reads YAML config from path, applies defaults and validates.
func Load(path string) (AppConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

// LoadWithEnvOverrides loads config then overrides sensitive fields from env
// vars before validating, so credentials can stay out of the file entirely.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("STANDX_PRIVATE_KEY"); v != "" {
		cfg.Wallet.PrivateKey = v
	}
	if v := os.Getenv("STANDX_API_TOKEN"); v != "" {
		cfg.Wallet.APIToken = v
	}
	if v := os.Getenv("STANDX_API_SECRET"); v != "" {
		cfg.Wallet.APISecret = v
	}
	if v := os.Getenv("STANDX_SYMBOL"); v != "" {
		cfg.Symbol = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Wallet.Chain == "" {
		cfg.Wallet.Chain = DefaultChain
	}
	if cfg.RebalanceDistanceBps == 0 {
		cfg.RebalanceDistanceBps = DefaultRebalanceDistanceBps
	}
	if cfg.Gateway.BaseURL == "" {
		cfg.Gateway.BaseURL = DefaultBaseURL
	}
	if cfg.Gateway.WSURL == "" {
		cfg.Gateway.WSURL = DefaultWSURL
	}
	if cfg.Gateway.TimeoutSec == 0 {
		cfg.Gateway.TimeoutSec = DefaultTimeoutSec
	}
	if cfg.Alert.ThrottleSec == 0 {
		cfg.Alert.ThrottleSec = DefaultAlertThrottleSec
	}
	if cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	if cfg.Log.Level == "" {
		cfg.Log = logger.DefaultConfig()
	}
}
