package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Platform identifiers.
const (
	platformLinux  = "linux"
	platformDarwin = "darwin"
)

// Application directory name used across all platforms.
const appName = "ultima"

// File names inside the config and data directories.
const (
	configFileName      = "config.toml"
	credentialsFileName = "credentials.json"
	tokenFileName       = "token.json"
	dbFileName          = "mirror.db"
	envFileName         = ".env"
)

// DefaultConfigDir returns the platform-specific directory for config files.
// On Linux, respects XDG_CONFIG_HOME (defaults to ~/.config/ultima).
// On macOS, uses ~/Library/Application Support/ultima.
// Other platforms fall back to ~/.config/ultima.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxConfigDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".config", appName)
	}
}

func linuxConfigDir(home string) string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the platform-specific directory for application data
// (mirror database, OAuth token).
// On Linux, respects XDG_DATA_HOME (defaults to ~/.local/share/ultima).
// On macOS config and data share ~/Library/Application Support/ultima.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	switch runtime.GOOS {
	case platformLinux:
		return linuxDataDir(home)
	case platformDarwin:
		return filepath.Join(home, "Library", "Application Support", appName)
	default:
		return filepath.Join(home, ".local", "share", appName)
	}
}

func linuxDataDir(home string) string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is used as the fallback when neither ULTIMA_CONFIG nor --config
// is specified.
func DefaultConfigPath() string {
	return joinDir(DefaultConfigDir(), configFileName)
}

// DefaultCredentialsPath returns where the OAuth client JSON is expected.
func DefaultCredentialsPath() string {
	return joinDir(DefaultConfigDir(), credentialsFileName)
}

// DefaultEnvPath returns the .env file read alongside the config file.
func DefaultEnvPath() string {
	return joinDir(DefaultConfigDir(), envFileName)
}

// DefaultTokenPath returns where the OAuth token is persisted.
func DefaultTokenPath() string {
	return joinDir(DefaultDataDir(), tokenFileName)
}

// DefaultDBPath returns the default mirror database location.
func DefaultDBPath() string {
	return joinDir(DefaultDataDir(), dbFileName)
}

func joinDir(dir, name string) string {
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, name)
}
