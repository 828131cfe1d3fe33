package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
)

const actionMove = mirror.ActionMove

func parseAction(s string) (mirror.Action, error) {
	a, err := mirror.ParseAction(s)
	if err != nil {
		return a, fmt.Errorf("tracking.action_after_processed: %w", err)
	}

	return a, nil
}

// ToSyncConfig converts a validated Config into the immutable per-run engine
// configuration.
func ToSyncConfig(cfg *Config) (mirror.SyncConfig, error) {
	t := &cfg.Tracking

	action, err := parseAction(t.ActionAfterProcessed)
	if err != nil {
		return mirror.SyncConfig{}, err
	}

	dirPerms, err := parseOctal("tracking.dir_permissions", t.DirPermissions)
	if err != nil {
		return mirror.SyncConfig{}, err
	}

	filePerms, err := parseOctal("tracking.file_permissions", t.FilePermissions)
	if err != nil {
		return mirror.SyncConfig{}, err
	}

	return mirror.SyncConfig{
		LibraryRoot:    strings.Trim(cfg.Site.LibraryRoot, "/"),
		LocalRoot:      t.LocalRoot,
		FilePrefix:     t.FilePrefix,
		IgnoreFolders:  append([]string(nil), t.IgnoreFolders...),
		IgnorePatterns: append([]string(nil), t.IgnorePatterns...),
		VerifyHash:     t.VerifyHash,
		Action:         action,
		DoneFolder:     t.DoneFolder,
		ErrorFolder:    t.ErrorFolder,
		DirPerms:       os.FileMode(dirPerms),
		FilePerms:      os.FileMode(filePerms),
	}, nil
}

// ToTiming returns the scheduler timing. Invalid durations (which Validate
// rejects) fall back to the defaults.
func ToTiming(cfg *Config) mirror.Timing {
	t := &cfg.Tracking

	return mirror.Timing{
		PollInterval: time.Duration(t.PollIntervalSeconds) * time.Second,
		BaseDelay:    durationOr(t.BaseBackoff, defaultBaseBackoff),
		MaxDelay:     durationOr(t.MaxBackoff, defaultMaxBackoff),
	}
}

// ConnectTimeoutDuration returns network.connect_timeout as a duration.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return durationOr(n.ConnectTimeout, defaultConnectTimeout)
}

// DataTimeoutDuration returns network.data_timeout as a duration.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return durationOr(n.DataTimeout, defaultDataTimeout)
}

func durationOr(value, fallback string) time.Duration {
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}

	d, _ := time.ParseDuration(fallback)

	return d
}
