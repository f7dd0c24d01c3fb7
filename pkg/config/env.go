package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Env holds process-level settings read from the environment.
type Env struct {
	ConfigPath string `env:"GUILDGATE_CONFIG" envDefault:"guildgate.yaml"`
	DataDir    string `env:"GUILDGATE_DATA_DIR" envDefault:"."`
	LogLevel   string `env:"GUILDGATE_LOG_LEVEL" envDefault:"info"`
}

// LoadEnv reads .env if present, then parses the environment.
func LoadEnv() (Env, error) {
	// A missing .env file is fine; system environment still applies.
	_ = godotenv.Load()

	var e Env
	if err := env.Parse(&e); err != nil {
		return Env{}, fmt.Errorf("parse environment: %w", err)
	}
	return e, nil
}
