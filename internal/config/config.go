// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Bot      BotConfig      `mapstructure:"bot"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Points   PointsConfig   `mapstructure:"points"`
	Games    GamesConfig    `mapstructure:"games"`
}

// BotConfig holds the chat transport configuration.
type BotConfig struct {
	Token string `mapstructure:"token"`
	// Marker prefixes every command ("!bet").
	Marker string `mapstructure:"marker"`
	// Username the bot answers to in duel requests.
	Username string `mapstructure:"username"`
	// Mods may open, close and resolve predictions.
	Mods []int64 `mapstructure:"mods"`
	// Whitelist of allowed chat ids; empty allows all.
	Whitelist []int64 `mapstructure:"whitelist"`
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	// Backend is "memory" or "postgres".
	Backend string `mapstructure:"backend"`
	// File receives the JSON snapshot of the memory backend.
	File string `mapstructure:"file"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host           string        `mapstructure:"host"`
	Port           int           `mapstructure:"port"`
	User           string        `mapstructure:"user"`
	Password       string        `mapstructure:"password"`
	Name           string        `mapstructure:"name"`
	PoolSize       int           `mapstructure:"pool_size"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
}

// PointsConfig holds the economy parameters.
type PointsConfig struct {
	StartingBalance int64         `mapstructure:"starting_balance"`
	ClaimSize       int64         `mapstructure:"claim_size"`
	ClaimCooldown   time.Duration `mapstructure:"claim_cooldown"`
	HouseID         string        `mapstructure:"house_id"`
}

// GamesConfig holds game-specific configuration.
type GamesConfig struct {
	Roulette RouletteConfig `mapstructure:"roulette"`
	Duel     DuelConfig     `mapstructure:"duel"`
}

// RouletteConfig holds the roulette table configuration.
type RouletteConfig struct {
	Pockets int `mapstructure:"pockets"`
}

// DuelConfig holds the duel configuration.
type DuelConfig struct {
	// ShuffleChance is the probability the accepter plays first.
	ShuffleChance float64 `mapstructure:"shuffle_chance"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the given directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables use underscore separator and uppercase,
	// e.g. BOT_TOKEN, DATABASE_HOST.
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, env vars can provide everything.
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.marker", "!")
	v.SetDefault("bot.username", "pointsbot")

	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.file", "userdata.json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pointsbot")
	v.SetDefault("database.name", "pointsbot")
	v.SetDefault("database.pool_size", 10)
	v.SetDefault("database.connect_timeout", "10s")

	v.SetDefault("points.starting_balance", 100)
	v.SetDefault("points.claim_size", 100)
	v.SetDefault("points.claim_cooldown", "30m")
	v.SetDefault("points.house_id", "house")

	v.SetDefault("games.roulette.pockets", 37)
	v.SetDefault("games.duel.shuffle_chance", 0.5)
}

// IsMod checks if a user id is in the mod list.
func (c *Config) IsMod(userID int64) bool {
	for _, id := range c.Bot.Mods {
		if id == userID {
			return true
		}
	}
	return false
}

// IsChatAllowed checks if a chat id is whitelisted. An empty whitelist
// allows all chats.
func (c *Config) IsChatAllowed(chatID int64) bool {
	if len(c.Bot.Whitelist) == 0 {
		return true
	}
	for _, id := range c.Bot.Whitelist {
		if id == chatID {
			return true
		}
	}
	return false
}
