package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultPageSize       = 250
	defaultPollInterval   = "5m"
	defaultMaxPages       = 10000
	defaultLogLevel       = "info"
	defaultLogFormat      = "auto"
	defaultConnectTimeout = "10s"
	defaultDataTimeout    = "60s"
	defaultUserAgent      = "ultima/0.1"
	defaultMaxRetries     = 5
	defaultRequestRate    = 5.0
	defaultNotifySubject  = "ultima.sync.pass"
)

// DefaultConfig returns a Config populated with all default values. File
// paths stay empty here and are filled in by Resolve from the platform
// directories.
func DefaultConfig() *Config {
	return &Config{
		Google: GoogleConfig{
			PageSize:    defaultPageSize,
			ShowDeleted: true,
		},
		Sync: SyncConfig{
			PollInterval: defaultPollInterval,
			MaxPages:     defaultMaxPages,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		Network: NetworkConfig{
			ConnectTimeout:    defaultConnectTimeout,
			DataTimeout:       defaultDataTimeout,
			UserAgent:         defaultUserAgent,
			MaxRetries:        defaultMaxRetries,
			RequestsPerSecond: defaultRequestRate,
		},
		Notify: NotifyConfig{
			Subject: defaultNotifySubject,
		},
	}
}
