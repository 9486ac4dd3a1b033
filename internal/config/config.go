// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for gcal-go. Values layer as defaults ->
// config file -> environment -> CLI flags and resolve to an immutable
// Resolved value handed to the engine at construction.
package config

import (
	"time"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Config is the top-level configuration structure parsed from a TOML file.
// Sub-configs are embedded so their keys sit flat at the top level.
type Config struct {
	CalendarConfig
	AuthConfig
	EngineConfig
	LoggingConfig
	NetworkConfig

	// Search entries are merged over the list defaults into every GET query.
	Search map[string]string `toml:"search"`
}

// CalendarConfig identifies the calendar and the API it lives behind.
type CalendarConfig struct {
	Calendar    string `toml:"calendar"`
	CalendarURL string `toml:"calendar_url"`
	APIDomain   string `toml:"api_domain"`
	UserinfoURL string `toml:"userinfo_url"`
	APIKey      string `toml:"api_key"`
}

// AuthConfig holds the OAuth client registration and token location.
type AuthConfig struct {
	ClientID     string   `toml:"client_id"`
	ClientSecret string   `toml:"client_secret"`
	Scopes       []string `toml:"scopes"`
	RedirectURL  string   `toml:"redirect_url"`
	TokenPath    string   `toml:"token_path"`
}

// EngineConfig controls batch behavior and the outcome journal.
type EngineConfig struct {
	ParallelUpdates int    `toml:"parallel_updates"`
	Journal         bool   `toml:"journal"`
	JournalPath     string `toml:"journal_path"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls the HTTP client.
type NetworkConfig struct {
	HTTPTimeout string `toml:"http_timeout"`
	UserAgent   string `toml:"user_agent"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not given".
type CLIOverrides struct {
	ConfigPath  string // --config
	Calendar    string // --calendar
	CalendarURL string // --calendar-url
	LogLevel    string // derived from --verbose/--debug/--quiet
}

// Resolved is the effective configuration after every layer is applied.
// It is built once and never modified.
type Resolved struct {
	ConfigPath string

	Calendar    gcal.CalendarRef
	APIDomain   string
	UserinfoURL string
	APIKey      string
	Search      map[string]string

	ClientID     string
	ClientSecret string
	Scopes       []string
	RedirectURL  string
	TokenPath    string

	ParallelUpdates int
	Journal         bool
	JournalPath     string

	LogLevel  string
	LogFormat string

	HTTPTimeout time.Duration
	UserAgent   string
}
