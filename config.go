package main

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// Config is loaded from the environment
type Config struct {
	HTTPAddr  string `env:"HTTP_ADDR" envDefault:":8080"`
	DBPath    string `env:"DB_PATH" envDefault:"hive.db"`
	ClientDir string `env:"CLIENT_DIR" envDefault:"../client"`
	PublicURL string `env:"PUBLIC_URL" envDefault:""`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig parses configuration from the environment
func LoadConfig() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	return &cfg, nil
}
