package config

import (
	"slices"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Default values for configuration options. These are layer 0 of the
// override chain.
const (
	defaultParallelUpdates = 4
	defaultLogLevel        = "warn"
	defaultLogFormat       = "auto"
	defaultHTTPTimeout     = "30s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset fields keep their default.
func DefaultConfig() *Config {
	return &Config{
		CalendarConfig: defaultCalendarConfig(),
		AuthConfig:     defaultAuthConfig(),
		EngineConfig:   defaultEngineConfig(),
		LoggingConfig:  defaultLoggingConfig(),
		NetworkConfig:  defaultNetworkConfig(),
	}
}

func defaultCalendarConfig() CalendarConfig {
	return CalendarConfig{
		APIDomain:   gcal.DefaultAPIDomain,
		UserinfoURL: gcal.DefaultUserinfoURL,
	}
}

func defaultAuthConfig() AuthConfig {
	return AuthConfig{
		Scopes:      slices.Clone(gcal.DefaultScopes),
		RedirectURL: gcal.DefaultRedirectURL,
	}
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		ParallelUpdates: defaultParallelUpdates,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		HTTPTimeout: defaultHTTPTimeout,
	}
}
