// Package testutil provides shared helpers for CLI and E2E tests: an
// in-memory Calendar API server and token fixtures. It depends only on
// stdlib so that E2E tests (which drive the built binary) can use it.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// WriteToken writes a token file holding accessToken, valid for an hour,
// in the on-disk format the CLI reads.
func WriteToken(path, accessToken string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("creating token dir: %w", err)
	}

	doc := map[string]any{
		"token": map[string]any{
			"access_token": accessToken,
			"token_type":   "Bearer",
			"expiry":       time.Now().Add(time.Hour).UTC().Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// WriteConfig writes a TOML config pointing the CLI at fake and keeping the
// token and journal inside dir. extra is appended verbatim.
func WriteConfig(dir string, fake *FakeCalendar, extra string) (string, error) {
	path := filepath.Join(dir, "config.toml")

	content := fmt.Sprintf(`calendar = %q
api_domain = %q
userinfo_url = %q
token_path = %q
journal_path = %q
%s
`, fake.CalendarID, fake.APIDomain(), fake.UserinfoURL(),
		filepath.Join(dir, "token.json"), filepath.Join(dir, "journal.db"), extra)

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		return "", fmt.Errorf("writing config: %w", err)
	}

	return path, nil
}
