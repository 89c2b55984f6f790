package config

import "fmt"

// ErrInvalid 用于参数验证错误。
type ErrInvalid string

func (e ErrInvalid) Error() string { return string(e) }

// Validate ensures required fields are present and sane. Any error here is
// fatal at startup: the engine must not run on a partial configuration.
func Validate(cfg AppConfig) error {
	if cfg.Wallet.PrivateKey == "" && cfg.Wallet.APIToken == "" {
		return ErrInvalid("wallet: either private_key or api_token must be provided (or STANDX_* env overrides)")
	}
	if cfg.Symbol == "" {
		return ErrInvalid("symbol is required")
	}
	if cfg.OrderDistanceBps <= 0 {
		return ErrInvalid("order_distance_bps must be > 0")
	}
	if cfg.CancelDistanceBps <= 0 {
		return ErrInvalid("cancel_distance_bps must be > 0")
	}
	if cfg.RebalanceDistanceBps <= 0 {
		return ErrInvalid("rebalance_distance_bps must be > 0")
	}
	if cfg.OrderSize <= 0 {
		return ErrInvalid("order_size must be > 0")
	}
	if cfg.MaxPosition <= 0 {
		return ErrInvalid("max_position must be > 0")
	}
	if cfg.VolatilityWindowSec <= 0 {
		return ErrInvalid("volatility_window_sec must be > 0")
	}
	if cfg.VolatilityThresholdBps <= 0 {
		return ErrInvalid("volatility_threshold_bps must be > 0")
	}
	if cfg.Gateway.TimeoutSec < 0 {
		return ErrInvalid(fmt.Sprintf("gateway.timeout_sec must be >= 0, got %d", cfg.Gateway.TimeoutSec))
	}
	if cfg.Alert.ThrottleSec < 0 {
		return ErrInvalid(fmt.Sprintf("alert.throttle_sec must be >= 0, got %d", cfg.Alert.ThrottleSec))
	}
	return nil
}
