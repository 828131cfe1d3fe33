// Package tokenfile caches app-only OAuth2 access tokens on disk so that
// short-lived invocations (one-shot sync, ls, whoami) reuse a still-valid
// token instead of asking Azure AD for a new one every time. Each cache file
// is pinned to an identity (tenant, client, resource); a token minted for a
// different identity is never returned.
package tokenfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"golang.org/x/oauth2"
)

// FilePerms restricts token files to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the cache directory.
const DirPerms = 0o700

// minRemaining is how much lifetime a cached token must have left to be
// handed out. Shorter-lived tokens are treated as absent.
const minRemaining = 2 * time.Minute

// File is the on-disk format: the token plus the identity it belongs to.
type File struct {
	Token    *oauth2.Token     `json:"token"`
	Identity map[string]string `json:"identity,omitempty"`
}

// Cache is a single-token cache file.
type Cache struct {
	fs       afero.Fs
	path     string
	identity map[string]string
	now      func() time.Time
}

// New returns a cache at path for the given identity. The map is copied.
func New(fsys afero.Fs, path string, identity map[string]string) *Cache {
	return &Cache{
		fs:       fsys,
		path:     path,
		identity: maps.Clone(identity),
		now:      time.Now,
	}
}

// Path returns the cache file location.
func (c *Cache) Path() string {
	return c.path
}

// Load returns the cached token, or (nil, nil) when there is no usable one:
// the file is missing, belongs to another identity, or the token is about to
// expire. Only unreadable or corrupt files are errors.
func (c *Cache) Load() (*oauth2.Token, error) {
	data, err := afero.ReadFile(c.fs, c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil //nolint:nilnil // sentinel for "not cached"
	}

	if err != nil {
		return nil, fmt.Errorf("tokenfile: reading %s: %w", c.path, err)
	}

	var tf File
	if err := json.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("tokenfile: decoding %s: %w", c.path, err)
	}

	if tf.Token == nil || tf.Token.AccessToken == "" {
		return nil, fmt.Errorf("tokenfile: %s has no token", c.path)
	}

	if !maps.Equal(tf.Identity, c.identity) {
		return nil, nil //nolint:nilnil // cached for a different identity
	}

	if !tf.Token.Expiry.IsZero() && tf.Token.Expiry.Sub(c.now()) < minRemaining {
		return nil, nil //nolint:nilnil // expired or about to
	}

	return tf.Token, nil
}

// Save writes tok atomically (temp file in the same directory, then rename)
// with owner-only permissions. Token values are never logged.
func (c *Cache) Save(tok *oauth2.Token) error {
	if tok == nil {
		return errors.New("tokenfile: refusing to save nil token")
	}

	data, err := json.MarshalIndent(File{Token: tok, Identity: c.identity}, "", "  ")
	if err != nil {
		return fmt.Errorf("tokenfile: encoding: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := c.fs.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenfile: creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(c.fs, dir, ".token-*.tmp")
	if err != nil {
		return fmt.Errorf("tokenfile: creating temp file: %w", err)
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = c.fs.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: writing: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("tokenfile: syncing: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return fmt.Errorf("tokenfile: closing: %w", err)
	}

	if err := c.fs.Chmod(tmpPath, FilePerms); err != nil {
		return fmt.Errorf("tokenfile: setting permissions: %w", err)
	}

	if err := c.fs.Rename(tmpPath, c.path); err != nil {
		return fmt.Errorf("tokenfile: renaming: %w", err)
	}

	success = true

	return nil
}

// Clear removes the cache file. A missing file is not an error.
func (c *Cache) Clear() error {
	err := c.fs.Remove(c.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("tokenfile: removing %s: %w", c.path, err)
	}

	return nil
}
