package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"
)

// Validation range constants.
const (
	minParallelUpdates = 1
	maxParallelUpdates = 16
	minHTTPTimeout     = 1 * time.Second
)

// reservedSearchParams are set by the client itself and may not be
// overridden from [search].
var reservedSearchParams = map[string]bool{
	"key":       true,
	"pageToken": true,
	"text":      true,
}

// Validate checks all configuration values and returns all errors found,
// so a user can fix every problem in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateCalendar(&cfg.CalendarConfig)...)
	errs = append(errs, validateAuth(&cfg.AuthConfig)...)
	errs = append(errs, validateEngine(&cfg.EngineConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateSearch(cfg.Search)...)

	return errors.Join(errs...)
}

func validateCalendar(c *CalendarConfig) []error {
	var errs []error

	errs = append(errs, validateHTTPURL("api_domain", c.APIDomain)...)
	errs = append(errs, validateHTTPURL("userinfo_url", c.UserinfoURL)...)

	if c.CalendarURL != "" {
		errs = append(errs, validateHTTPURL("calendar_url", c.CalendarURL)...)
	}

	if strings.ContainsAny(c.Calendar, " \t\n") {
		errs = append(errs, fmt.Errorf("calendar: must not contain whitespace, got %q", c.Calendar))
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	for _, s := range a.Scopes {
		if strings.TrimSpace(s) == "" {
			errs = append(errs, errors.New("scopes: entries must not be empty"))
			break
		}
	}

	errs = append(errs, validateRedirectURL(a.RedirectURL)...)

	return errs
}

// validateRedirectURL requires an http loopback URL with an explicit port;
// the callback server binds exactly that address.
func validateRedirectURL(raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("redirect_url: invalid URL %q: %w", raw, err)}
	}

	if u.Scheme != "http" {
		return []error{fmt.Errorf("redirect_url: must use http, got %q", raw)}
	}

	host, port, err := net.SplitHostPort(u.Host)
	if err != nil || port == "" {
		return []error{fmt.Errorf("redirect_url: must include a port, got %q", raw)}
	}

	if host != "localhost" {
		if ip := net.ParseIP(host); ip == nil || !ip.IsLoopback() {
			return []error{fmt.Errorf("redirect_url: host must be a loopback address, got %q", host)}
		}
	}

	return nil
}

func validateEngine(e *EngineConfig) []error {
	if e.ParallelUpdates < minParallelUpdates || e.ParallelUpdates > maxParallelUpdates {
		return []error{fmt.Errorf("parallel_updates: must be between %d and %d, got %d",
			minParallelUpdates, maxParallelUpdates, e.ParallelUpdates)}
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
	return validateDurationMin("http_timeout", n.HTTPTimeout, minHTTPTimeout)
}

func validateSearch(search map[string]string) []error {
	var errs []error

	for k := range search {
		if reservedSearchParams[k] {
			errs = append(errs, fmt.Errorf("search: %q is set by the client and cannot be overridden", k))
		}
	}

	return errs
}

// validateDurationMin checks that a duration string is valid and meets a minimum.
func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateHTTPURL(field, raw string) []error {
	u, err := url.Parse(raw)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid URL %q: %w", field, raw, err)}
	}

	if (u.Scheme != "https" && u.Scheme != "http") || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute http(s) URL, got %q", field, raw)}
	}

	return nil
}
