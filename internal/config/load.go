package config

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/tonimelisma/gcal-go/internal/gcal"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal, with "did you mean?" suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolve loads configuration and applies the override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	applyEnv(cfg, env)
	applyCLI(cfg, cli)

	// Overrides bypassed file validation; check the merged result again.
	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolve(cfg, cfgPath), nil
}

func applyEnv(cfg *Config, env EnvOverrides) {
	if env.Calendar != "" {
		cfg.Calendar = env.Calendar
	}

	if env.APIKey != "" {
		cfg.APIKey = env.APIKey
	}

	if env.ClientID != "" {
		cfg.ClientID = env.ClientID
	}
}

func applyCLI(cfg *Config, cli CLIOverrides) {
	if cli.Calendar != "" {
		cfg.Calendar = cli.Calendar
	}

	if cli.CalendarURL != "" {
		cfg.CalendarURL = cli.CalendarURL
		// An explicit URL on the command line outranks a file-level id.
		if cli.Calendar == "" {
			cfg.Calendar = ""
		}
	}

	if cli.LogLevel != "" {
		cfg.LogLevel = cli.LogLevel
	}
}

// resolve converts a validated Config into its immutable resolved form.
func resolve(cfg *Config, cfgPath string) *Resolved {
	// Validate has already checked the duration.
	timeout, _ := time.ParseDuration(cfg.HTTPTimeout) //nolint:errcheck // validated

	tokenPath := expandTilde(cfg.TokenPath)
	if tokenPath == "" {
		tokenPath = DefaultTokenPath()
	}

	journalPath := expandTilde(cfg.JournalPath)
	if journalPath == "" {
		journalPath = DefaultJournalPath()
	}

	scopes := slices.Clone(cfg.Scopes)
	if len(scopes) == 0 {
		scopes = slices.Clone(gcal.DefaultScopes)
	}

	return &Resolved{
		ConfigPath:      cfgPath,
		Calendar:        gcal.ResolveCalendar(cfg.Calendar, cfg.CalendarURL),
		APIDomain:       cfg.APIDomain,
		UserinfoURL:     cfg.UserinfoURL,
		APIKey:          cfg.APIKey,
		Search:          maps.Clone(cfg.Search),
		ClientID:        cfg.ClientID,
		ClientSecret:    cfg.ClientSecret,
		Scopes:          scopes,
		RedirectURL:     cfg.RedirectURL,
		TokenPath:       tokenPath,
		ParallelUpdates: cfg.ParallelUpdates,
		Journal:         cfg.Journal,
		JournalPath:     journalPath,
		LogLevel:        cfg.LogLevel,
		LogFormat:       cfg.LogFormat,
		HTTPTimeout:     timeout,
		UserAgent:       cfg.UserAgent,
	}
}
