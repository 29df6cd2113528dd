package bot

import (
	"github.com/caarlos0/env/v11"

	"github.com/lavaflow/lavaflow/lavaflow"
)

// Config holds the bot configuration loaded from environment variables.
// The Lavalink node and state settings come from the LAVAFLOW_* variables.
type Config struct {
	DiscordToken string `env:"DISCORD_TOKEN,notEmpty"`

	Manager *lavaflow.ManagerOptions `env:"-"`
}

// LoadConfig loads configuration from environment variables.
// Returns an error if required fields are missing.
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	manager, err := lavaflow.LoadManagerOptionsFromEnv()
	if err != nil {
		return nil, err
	}
	cfg.Manager = manager

	return cfg, nil
}
