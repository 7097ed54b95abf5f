// Package deckforge wires the Discord trading card bot together: the
// gateway client, the database-backed repositories and the economy engines.
package deckforge

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/deckforge/deckforge/deckforge/database"
	"github.com/disgoorg/snowflake/v2"
	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type Config struct {
	Log      LogConfig         `toml:"log"`
	Bot      BotConfig         `toml:"bot"`
	DB       database.DBConfig `toml:"db"`
	Missions MissionsConfig    `toml:"missions"`
}

type BotConfig struct {
	DevGuilds []snowflake.ID `toml:"dev_guilds"`
	Token     string         `toml:"token"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

// MissionsConfig overrides the spawn activity gates. Zero values fall back
// to the engine defaults.
type MissionsConfig struct {
	MessageThreshold int `toml:"message_threshold"`
	AuthorThreshold  int `toml:"author_threshold"`
}
