package strategy

import (
	"fmt"
	"time"
)

// Config parameterizes the exit rules. Fractions are relative to the entry
// price: a StopLoss of 0.001 exits 0.1% below entry. A zero TrailingStop
// disables the trailing exit.
type Config struct {
	StopLoss     float64       `json:"stop_loss" yaml:"stop_loss"`
	TakeProfit   float64       `json:"take_profit" yaml:"take_profit"`
	TrailingStop float64       `json:"trailing_stop,omitempty" yaml:"trailing_stop,omitempty"`
	MaxHold      time.Duration `json:"max_hold" yaml:"max_hold"`
	Interval     time.Duration `json:"interval" yaml:"interval"`
}

// ConfigError rejects a configuration at construction time.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid strategy config: %s %s", e.Field, e.Reason)
}

// Validate returns a *ConfigError for the first bad field.
func (c Config) Validate() error {
	if c.StopLoss <= 0 {
		return &ConfigError{Field: "stop_loss", Reason: "must be positive"}
	}
	if c.StopLoss >= 1 {
		return &ConfigError{Field: "stop_loss", Reason: "must be below 1"}
	}
	if c.TakeProfit <= 0 {
		return &ConfigError{Field: "take_profit", Reason: "must be positive"}
	}
	if c.TrailingStop < 0 {
		return &ConfigError{Field: "trailing_stop", Reason: "must be positive when set"}
	}
	if c.TrailingStop >= 1 {
		return &ConfigError{Field: "trailing_stop", Reason: "must be below 1"}
	}
	if c.MaxHold <= 0 {
		return &ConfigError{Field: "max_hold", Reason: "must be a positive duration"}
	}
	if c.Interval <= 0 {
		return &ConfigError{Field: "interval", Reason: "must be a positive duration"}
	}
	return nil
}

// Trailing reports whether the trailing-stop exit is configured.
func (c Config) Trailing() bool { return c.TrailingStop > 0 }

// StopPrice is the stop-loss threshold for an entry.
func (c Config) StopPrice(entry float64) float64 { return entry * (1 - c.StopLoss) }

// TargetPrice is the take-profit threshold for an entry.
func (c Config) TargetPrice(entry float64) float64 { return entry * (1 + c.TakeProfit) }

func (c Config) trailFrom(price float64) float64 { return price * (1 - c.TrailingStop) }
