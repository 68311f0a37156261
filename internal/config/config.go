package config

import (
	"fmt"
	"time"
)

// Config holds all runtime settings for the bot, the store and the worker.
type Config struct {
	Telegram TelegramConfig `toml:"telegram"`
	Server   ServerConfig   `toml:"server"`
	Storage  StorageConfig  `toml:"storage"`
	Betting  BettingConfig  `toml:"betting"`
	Referral ReferralConfig `toml:"referral"`
	Worker   WorkerConfig   `toml:"worker"`
}

// TelegramConfig holds bot credentials and chat targets.
type TelegramConfig struct {
	BotToken  string `toml:"bot_token"`
	OwnerID   int64  `toml:"owner_id"`
	ChannelID string `toml:"channel_id"`
	WebAppURL string `toml:"web_app_url"`
}

// ServerConfig holds the HTTP API settings.
type ServerConfig struct {
	Port string `toml:"port"`
}

// StorageConfig holds the SQLite settings.
type StorageConfig struct {
	DatabasePath string `toml:"database_path"`
}

// BettingConfig holds stake bounds and first-contact grants.
type BettingConfig struct {
	MinBet        int64 `toml:"min_bet"`
	MaxBet        int64 `toml:"max_bet"`
	WelcomeTokens int64 `toml:"welcome_tokens"`
	WelcomePoints int64 `toml:"welcome_points"`
}

// ReferralConfig holds the fixed referral reward.
type ReferralConfig struct {
	BonusPoints int64 `toml:"bonus_points"`
}

// WorkerConfig holds the auto-resolution schedule.
type WorkerConfig struct {
	ResolveIntervalMinutes int `toml:"resolve_interval_minutes"`
}

// ResolveInterval returns the auto-resolution interval as a duration.
func (w WorkerConfig) ResolveInterval() time.Duration {
	return time.Duration(w.ResolveIntervalMinutes) * time.Minute
}

// Defaults returns the built-in configuration. The bet bounds and welcome
// grants mirror the values users see in the chat prompts.
func Defaults() Config {
	return Config{
		Server:  ServerConfig{Port: "8080"},
		Storage: StorageConfig{DatabasePath: "data/betpool.db"},
		Betting: BettingConfig{
			MinBet:        10,
			MaxBet:        100,
			WelcomeTokens: 100,
			WelcomePoints: 50,
		},
		Referral: ReferralConfig{BonusPoints: 50},
		Worker:   WorkerConfig{ResolveIntervalMinutes: 60},
	}
}

// Validate checks the loaded configuration for values that would break the
// betting or scheduling invariants.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required")
	}
	if c.Betting.MinBet <= 0 {
		return fmt.Errorf("betting.min_bet must be positive, got %d", c.Betting.MinBet)
	}
	if c.Betting.MaxBet < c.Betting.MinBet {
		return fmt.Errorf("betting.max_bet (%d) must not be below betting.min_bet (%d)", c.Betting.MaxBet, c.Betting.MinBet)
	}
	if c.Betting.WelcomeTokens < 0 || c.Betting.WelcomePoints < 0 {
		return fmt.Errorf("welcome grants must not be negative")
	}
	if c.Referral.BonusPoints < 0 {
		return fmt.Errorf("referral.bonus_points must not be negative, got %d", c.Referral.BonusPoints)
	}
	if c.Worker.ResolveIntervalMinutes <= 0 {
		return fmt.Errorf("worker.resolve_interval_minutes must be positive, got %d", c.Worker.ResolveIntervalMinutes)
	}
	return nil
}
