// Package tokenfile reads and writes the on-disk OAuth token. The file also
// caches the account profile seen at the last successful profile fetch, so
// offline commands can say who is signed in.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// Account is the cached profile stored next to the token.
type Account struct {
	Name      string    `json:"name,omitempty"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	FetchedAt time.Time `json:"fetched_at,omitzero"`
}

// File is the on-disk format.
type File struct {
	Token   *oauth2.Token `json:"token"`
	Account *Account      `json:"account,omitempty"`
}

// Load reads a saved token file. Returns (nil, nil, nil) if the file does
// not exist.
func Load(path string) (*oauth2.Token, *Account, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, nil, fmt.Errorf("tokenfile: reading %s: %w", path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, nil, fmt.Errorf("tokenfile: decoding %s: %w", path, err)
	}

	if tf.Token == nil || (tf.Token.AccessToken == "" && tf.Token.RefreshToken == "") {
		return nil, nil, fmt.Errorf("tokenfile: %s missing token field (re-login required)", path)
	}

	return tf.Token, tf.Account, nil
}

// Save writes the token file atomically (temp file + rename) with 0600
// permissions. Never logs token values.
func Save(path string, tok *oauth2.Token, acct *Account) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	data, err := json.MarshalIndent(File{Token: tok, Account: acct}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(path)
	if mkErr := os.MkdirAll(dir, DirPerms); mkErr != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, mkErr)
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := writeSynced(tmp, data); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// writeSynced sets permissions, writes, fsyncs, and closes f.
func writeSynced(f *os.File, data []byte) error {
	if err := f.Chmod(FilePerms); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	return nil
}

// SaveToken replaces the token and keeps the cached account.
func SaveToken(path string, tok *oauth2.Token) error {
	_, acct, err := Load(path)
	if err != nil {
		// A corrupt file is overwritten; the account cache is only a hint.
		acct = nil
	}

	return Save(path, tok, acct)
}

// SaveAccount replaces the cached account and keeps the token. Returns an
// error if there is no token file.
func SaveAccount(path string, acct *Account) error {
	tok, _, err := Load(path)
	if err != nil {
		return fmt.Errorf("tokenfile: reading token for account update: %w", err)
	}

	if tok == nil {
		return fmt.Errorf("tokenfile: no token file at %s", path)
	}

	return Save(path, tok, acct)
}

// Remove deletes the token file. A missing file is not an error.
func Remove(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	if err != nil {
		return false, fmt.Errorf("tokenfile: removing %s: %w", path, err)
	}

	return true, nil
}
