package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the quantmod configuration file
// (~/.config/quantmod/config.yaml). Numeric fields are pointers so we can
// distinguish "not set" from zero values.
type Config struct {
	MinSizeMB *float64 `yaml:"min_size_mb"`
	BlockSize *int64   `yaml:"block_size"`
	Vocab     *int64   `yaml:"vocab"`
	Hidden    *int64   `yaml:"hidden"`
	Seed      *int64   `yaml:"seed"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "quantmod", "config.yaml")
}

// applyConfig applies config file defaults for flags that were not
// explicitly set on the command line.
func applyConfig(c *cli.Command, cfg Config) {
	if cfg.MinSizeMB != nil && !c.IsSet("min-size-mb") {
		minSizeMB = *cfg.MinSizeMB
	}
	if cfg.BlockSize != nil && !c.IsSet("block-size") && !c.IsSet("b") {
		blockSize = *cfg.BlockSize
	}
	if cfg.Vocab != nil && !c.IsSet("vocab") {
		vocab = *cfg.Vocab
	}
	if cfg.Hidden != nil && !c.IsSet("hidden") {
		hidden = *cfg.Hidden
	}
	if cfg.Seed != nil && !c.IsSet("seed") {
		seed = *cfg.Seed
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults for the serve command.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	applyConfig(c, cfg)
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file
// doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
