package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validation range constants.
const (
	minPageSize       = 1
	maxPageSize       = 250
	minMaxPages       = 1
	minPollInterval   = 30 * time.Second
	minConnectTimeout = 1 * time.Second
	minDataTimeout    = 5 * time.Second
	maxRetriesLimit   = 20
	maxRequestRate    = 100
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateGoogle(&cfg.Google)...)
	errs = append(errs, validateSync(&cfg.Sync)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)

	return errors.Join(errs...)
}

func validateGoogle(g *GoogleConfig) []error {
	if g.PageSize < minPageSize || g.PageSize > maxPageSize {
		return []error{fmt.Errorf("page_size: must be between %d and %d, got %d",
			minPageSize, maxPageSize, g.PageSize)}
	}

	return nil
}

func validateSync(s *SyncConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("poll_interval", s.PollInterval, minPollInterval)...)

	if s.Schedule != "" {
		if _, err := ParseSchedule(s.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("schedule: %w", err))
		}
	}

	if s.MaxPages < minMaxPages {
		errs = append(errs, fmt.Errorf("max_pages: must be >= %d, got %d", minMaxPages, s.MaxPages))
	}

	for _, id := range s.Calendars {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("calendars: empty calendar id"))
		}
	}

	for _, id := range s.SkipCalendars {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, errors.New("skip_calendars: empty calendar id"))
		}
	}

	return errs
}

// ParseSchedule parses a standard five-field cron expression or a
// descriptor such as "@hourly" or "@every 10m".
func ParseSchedule(spec string) (cron.Schedule, error) {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", spec, err)
	}

	return sched, nil
}

func validateDuration(field, value string, minimum time.Duration) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return nil
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	if err := validateDuration(field, value, minimum); err != nil {
		return []error{err}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogFormat(format string) []error {
	if !validLogFormats[format] {
		return []error{fmt.Errorf("log_format: must be one of auto, text, json; got %q", format)}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetriesLimit {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d",
			maxRetriesLimit, n.MaxRetries))
	}

	if n.RequestsPerSecond < 0 || n.RequestsPerSecond > maxRequestRate {
		errs = append(errs, fmt.Errorf("requests_per_second: must be between 0 and %d, got %g",
			maxRequestRate, n.RequestsPerSecond))
	}

	if strings.TrimSpace(n.UserAgent) == "" {
		errs = append(errs, errors.New("user_agent: must not be empty"))
	}

	return errs
}

var validNATSSchemes = map[string]bool{
	"nats": true,
	"tls":  true,
	"ws":   true,
	"wss":  true,
}

func validateNotify(n *NotifyConfig) []error {
	if n.NATSURL == "" {
		return nil
	}

	var errs []error

	for _, raw := range strings.Split(n.NATSURL, ",") {
		u, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !validNATSSchemes[u.Scheme] || u.Host == "" {
			errs = append(errs, fmt.Errorf("nats_url: invalid server URL %q", raw))
		}
	}

	if strings.TrimSpace(n.Subject) == "" || strings.ContainsAny(n.Subject, " \t*>") {
		errs = append(errs, fmt.Errorf("subject: invalid publish subject %q", n.Subject))
	}

	return errs
}
