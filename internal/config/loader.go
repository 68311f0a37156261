package config

import (
	"os"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads an optional TOML configuration file at path, merges it on top of
// the built-in defaults and applies environment variable overrides. Pass an
// empty path to run from environment variables alone. The returned Config has
// NOT been validated; the caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from well-known environment
// variables when set. This lets operators inject secrets at deploy time
// without touching the TOML file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Telegram.BotToken, "TELEGRAM_BOT_TOKEN")
	setInt64(&cfg.Telegram.OwnerID, "BOT_OWNER_ID")
	setStr(&cfg.Telegram.ChannelID, "CHANNEL_ID")
	setStr(&cfg.Telegram.WebAppURL, "WEB_APP_URL")

	setStr(&cfg.Server.Port, "PORT")
	setStr(&cfg.Storage.DatabasePath, "DATABASE_PATH")

	setInt64(&cfg.Betting.MinBet, "MIN_BET")
	setInt64(&cfg.Betting.MaxBet, "MAX_BET")
	setInt64(&cfg.Betting.WelcomeTokens, "WELCOME_TOKENS")
	setInt64(&cfg.Betting.WelcomePoints, "WELCOME_POINTS")

	setInt64(&cfg.Referral.BonusPoints, "REFERRAL_BONUS_POINTS")

	setInt(&cfg.Worker.ResolveIntervalMinutes, "RESOLVE_INTERVAL_MINUTES")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
