package app

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config holds runtime wiring options for building the app.
type Config struct {
	// StorePath is the SQLite database file, e.g. $HOME/.keyvault/keys.db.
	StorePath string `yaml:"store_path"`

	// Passphrase seals the account blob at rest. Usually supplied on the
	// command line rather than in the config file.
	Passphrase string `yaml:"passphrase"`

	LogLevel string `yaml:"log_level"`
}

// DefaultConfig returns the config used when no file or flags override it.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	return Config{
		StorePath: filepath.Join(home, ".keyvault", "keys.db"),
		LogLevel:  "info",
	}, nil
}

// LoadConfig reads a YAML config file over the defaults. A missing file is
// not an error; the defaults apply.
func LoadConfig(path string) (Config, error) {
	cfg, err := DefaultConfig()
	if err != nil {
		return Config{}, err
	}
	if path == "" {
		return cfg, nil
	}

	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// Logger builds the process logger at the configured level. An unknown level
// falls back to info.
func (c Config) Logger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
}
