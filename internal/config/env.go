package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
)

// Environment variable names for overrides.
const (
	EnvConfig   = "ULTIMA_CONFIG"
	EnvDB       = "ULTIMA_DB"
	EnvLogLevel = "ULTIMA_LOG_LEVEL"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // ULTIMA_CONFIG: override config file path
	DBPath     string // ULTIMA_DB: mirror database path
	LogLevel   string // ULTIMA_LOG_LEVEL: log level override
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
// This does not modify the Config; callers apply the relevant fields.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		DBPath:     os.Getenv(EnvDB),
		LogLevel:   os.Getenv(EnvLogLevel),
	}
}

// LoadDotEnv loads KEY=VALUE pairs from the given .env files into the
// process environment. Missing files are skipped and variables already set
// in the environment are never overwritten. Returns the files that were read.
func LoadDotEnv(paths ...string) ([]string, error) {
	var loaded []string

	for _, p := range paths {
		if p == "" {
			continue
		}

		if _, err := os.Stat(p); errors.Is(err, fs.ErrNotExist) {
			continue
		}

		if err := godotenv.Load(p); err != nil {
			return loaded, fmt.Errorf("loading env file %s: %w", p, err)
		}

		loaded = append(loaded, p)
	}

	return loaded, nil
}
