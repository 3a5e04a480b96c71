// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ultima. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	Google  GoogleConfig  `toml:"google"`
	Store   StoreConfig   `toml:"store"`
	Sync    SyncConfig    `toml:"sync"`
	Logging LoggingConfig `toml:"logging"`
	Network NetworkConfig `toml:"network"`
	Notify  NotifyConfig  `toml:"notify"`
}

// GoogleConfig locates the OAuth client and token, and tunes listing requests.
type GoogleConfig struct {
	CredentialsFile string `toml:"credentials_file"`
	TokenFile       string `toml:"token_file"`
	PageSize        int    `toml:"page_size"`
	ShowDeleted     bool   `toml:"show_deleted"`
}

// StoreConfig locates the mirror database.
type StoreConfig struct {
	DBPath string `toml:"db_path"`
}

// SyncConfig selects calendars and controls pass scheduling. Schedule, when
// set, is a cron expression that takes precedence over PollInterval.
type SyncConfig struct {
	Calendars     []string `toml:"calendars"`
	SkipCalendars []string `toml:"skip_calendars"`
	PollInterval  string   `toml:"poll_interval"`
	Schedule      string   `toml:"schedule"`
	MaxPages      int      `toml:"max_pages"`
}

// LoggingConfig controls log output: level and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout    string  `toml:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout"`
	UserAgent         string  `toml:"user_agent"`
	MaxRetries        int     `toml:"max_retries"`
	RequestsPerSecond float64 `toml:"requests_per_second"` // 0 = unlimited
}

// NotifyConfig enables pass summaries on a NATS subject. Empty NATSURL
// disables publishing.
type NotifyConfig struct {
	NATSURL string `toml:"nats_url"`
	Subject string `toml:"subject"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Empty strings mean "not specified".
type CLIOverrides struct {
	ConfigPath string // --config
	DBPath     string // --db
}

// PollDuration returns the parsed poll interval. Validate guarantees it parses.
func (s *SyncConfig) PollDuration() time.Duration {
	d, _ := time.ParseDuration(s.PollInterval)
	return d
}

// ConnectTimeoutDuration returns the parsed connect timeout.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.ConnectTimeout)
	return d
}

// DataTimeoutDuration returns the parsed data timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	d, _ := time.ParseDuration(n.DataTimeout)
	return d
}
