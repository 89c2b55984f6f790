package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const validYAML = `
wallet:
  chain: bsc
  api_token: test-token
symbol: BTC-USD
order_distance_bps: 10
cancel_distance_bps: 5
order_size: 0.02
max_position: 0.5
volatility_window_sec: 60
volatility_threshold_bps: 30
`

func TestLoad(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Symbol != "BTC-USD" {
		t.Errorf("symbol = %s, want BTC-USD", cfg.Symbol)
	}
	if cfg.Wallet.APIToken != "test-token" {
		t.Errorf("api_token = %s, want test-token", cfg.Wallet.APIToken)
	}
	if cfg.OrderDistanceBps != 10 || cfg.CancelDistanceBps != 5 {
		t.Errorf("unexpected distances: %+v", cfg)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeTempConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RebalanceDistanceBps != DefaultRebalanceDistanceBps {
		t.Errorf("rebalance_distance_bps default = %v, want %v", cfg.RebalanceDistanceBps, DefaultRebalanceDistanceBps)
	}
	if cfg.Gateway.BaseURL != DefaultBaseURL {
		t.Errorf("gateway.base_url default = %s, want %s", cfg.Gateway.BaseURL, DefaultBaseURL)
	}
	if cfg.Gateway.WSURL != DefaultWSURL {
		t.Errorf("gateway.ws_url default = %s, want %s", cfg.Gateway.WSURL, DefaultWSURL)
	}
	if cfg.Alert.ThrottleSec != DefaultAlertThrottleSec {
		t.Errorf("alert.throttle_sec default = %d, want %d", cfg.Alert.ThrottleSec, DefaultAlertThrottleSec)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("log.level default = %s, want info", cfg.Log.Level)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeTempConfig(t, ":::not yaml:::")
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid yaml")
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	// 文件里不放凭证，只靠环境变量
	path := writeTempConfig(t, `
wallet:
  chain: bsc
symbol: BTC-USD
order_distance_bps: 10
cancel_distance_bps: 5
order_size: 0.02
max_position: 0.5
volatility_window_sec: 60
volatility_threshold_bps: 30
`)

	if _, err := Load(path); err == nil {
		t.Fatal("plain Load should fail without credentials")
	}

	t.Setenv("STANDX_API_TOKEN", "env-token")
	t.Setenv("STANDX_API_SECRET", "env-secret")
	t.Setenv("STANDX_SYMBOL", "ETH-USD")

	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Wallet.APIToken != "env-token" {
		t.Errorf("api_token = %s, want env-token", cfg.Wallet.APIToken)
	}
	if cfg.Wallet.APISecret != "env-secret" {
		t.Errorf("api_secret = %s, want env-secret", cfg.Wallet.APISecret)
	}
	if cfg.Symbol != "ETH-USD" {
		t.Errorf("symbol = %s, want ETH-USD (env override)", cfg.Symbol)
	}
}

func TestValidateEmpty(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatal("expected error for empty config")
	}
}

func TestValidateErrors(t *testing.T) {
	base := func() AppConfig {
		return AppConfig{
			Wallet:                 WalletConfig{Chain: "bsc", APIToken: "tok"},
			Symbol:                 "BTC-USD",
			OrderDistanceBps:       10,
			CancelDistanceBps:      5,
			RebalanceDistanceBps:   20,
			OrderSize:              0.02,
			MaxPosition:            0.5,
			VolatilityWindowSec:    60,
			VolatilityThresholdBps: 30,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*AppConfig)
		wantSub string
	}{
		{"no credentials", func(c *AppConfig) { c.Wallet.APIToken = ""; c.Wallet.PrivateKey = "" }, "private_key or api_token"},
		{"no symbol", func(c *AppConfig) { c.Symbol = "" }, "symbol"},
		{"zero order distance", func(c *AppConfig) { c.OrderDistanceBps = 0 }, "order_distance_bps"},
		{"zero cancel distance", func(c *AppConfig) { c.CancelDistanceBps = 0 }, "cancel_distance_bps"},
		{"negative rebalance distance", func(c *AppConfig) { c.RebalanceDistanceBps = -1 }, "rebalance_distance_bps"},
		{"zero order size", func(c *AppConfig) { c.OrderSize = 0 }, "order_size"},
		{"zero max position", func(c *AppConfig) { c.MaxPosition = 0 }, "max_position"},
		{"zero window", func(c *AppConfig) { c.VolatilityWindowSec = 0 }, "volatility_window_sec"},
		{"zero threshold", func(c *AppConfig) { c.VolatilityThresholdBps = 0 }, "volatility_threshold_bps"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(&cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Errorf("error %q does not mention %q", err.Error(), tt.wantSub)
			}
			var ei ErrInvalid
			if !errors.As(err, &ei) {
				t.Errorf("error should be ErrInvalid, got %T", err)
			}
		})
	}
}

func TestValidatePrivateKeyOnly(t *testing.T) {
	cfg := AppConfig{
		Wallet:                 WalletConfig{Chain: "bsc", PrivateKey: "0xabc"},
		Symbol:                 "ETH-USD",
		OrderDistanceBps:       10,
		CancelDistanceBps:      5,
		RebalanceDistanceBps:   20,
		OrderSize:              0.1,
		MaxPosition:            1,
		VolatilityWindowSec:    60,
		VolatilityThresholdBps: 30,
	}
	if err := Validate(cfg); err != nil {
		t.Fatalf("private_key alone should satisfy credentials: %v", err)
	}
}
