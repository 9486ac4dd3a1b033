package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "GCAL_GO_CONFIG"
	EnvCalendar = "GCAL_GO_CALENDAR"
	EnvAPIKey   = "GCAL_GO_API_KEY"
	EnvClientID = "GCAL_GO_CLIENT_ID"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // GCAL_GO_CONFIG: config file path
	Calendar   string // GCAL_GO_CALENDAR: explicit calendar id
	APIKey     string // GCAL_GO_API_KEY: keeps the key out of the config file
	ClientID   string // GCAL_GO_CLIENT_ID: OAuth client id
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Calendar:   os.Getenv(EnvCalendar),
		APIKey:     os.Getenv(EnvAPIKey),
		ClientID:   os.Getenv(EnvClientID),
	}
}
