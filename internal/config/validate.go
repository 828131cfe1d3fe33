package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPollIntervalSeconds = 1
	minBaseBackoff         = 100 * time.Millisecond
	minConnectTimeout      = 1 * time.Second
	minDataTimeout         = 5 * time.Second
	minJournalRetention    = 1
	octalBase              = 8
	minOctalDigits         = 3
	maxOctalDigits         = 4
	maxOctalValue          = 0o777
)

// Auth modes.
const (
	AuthModeCertificate  = "certificate"
	AuthModeClientSecret = "client_secret"
)

// Validate checks all configuration values and returns every error found,
// so a broken config file can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateSite(&cfg.Site)...)
	errs = append(errs, validateAuth(&cfg.Auth)...)
	errs = append(errs, validateTracking(&cfg.Tracking)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateState(&cfg.State)...)

	return errors.Join(errs...)
}

func validateSite(s *SiteConfig) []error {
	var errs []error

	if s.URL == "" {
		errs = append(errs, errors.New("site.url: must not be empty"))
	} else {
		u, err := url.Parse(s.URL)

		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("site.url: %w", err))
		case u.Scheme != "https" && u.Scheme != "http":
			errs = append(errs, fmt.Errorf("site.url: must be an http(s) URL, got %q", s.URL))
		case u.Host == "":
			errs = append(errs, fmt.Errorf("site.url: missing host in %q", s.URL))
		case u.RawQuery != "" || u.Fragment != "":
			errs = append(errs, fmt.Errorf("site.url: must not contain a query or fragment, got %q", s.URL))
		}
	}

	if strings.ContainsAny(s.LibraryRoot, `\`) {
		errs = append(errs, fmt.Errorf("site.library_root: use '/' as separator, got %q", s.LibraryRoot))
	}

	for _, seg := range strings.Split(strings.Trim(s.LibraryRoot, "/"), "/") {
		if seg == "." || seg == ".." {
			errs = append(errs, fmt.Errorf("site.library_root: must not contain %q segments", seg))
			break
		}
	}

	return errs
}

func validateAuth(a *AuthConfig) []error {
	var errs []error

	if a.TenantID == "" {
		errs = append(errs, errors.New("auth.tenant_id: must not be empty"))
	}

	if a.ClientID == "" {
		errs = append(errs, errors.New("auth.client_id: must not be empty"))
	}

	switch a.Mode {
	case AuthModeCertificate:
		if a.PFXPath == "" {
			errs = append(errs, errors.New("auth.pfx_path: required for certificate auth"))
		}
	case AuthModeClientSecret:
		if a.ClientSecret == "" {
			errs = append(errs, fmt.Errorf("auth.client_secret: required for client_secret auth (or set %s)",
				EnvClientSecret))
		}
	default:
		errs = append(errs, fmt.Errorf("auth.mode: must be %q or %q, got %q",
			AuthModeCertificate, AuthModeClientSecret, a.Mode))
	}

	return errs
}

func validateTracking(t *TrackingConfig) []error {
	var errs []error

	if t.LocalRoot == "" {
		errs = append(errs, fmt.Errorf("tracking.local_root: must not be empty (or set %s)", EnvLocalRoot))
	} else if !filepath.IsAbs(t.LocalRoot) {
		errs = append(errs, fmt.Errorf("tracking.local_root: must be absolute, got %q", t.LocalRoot))
	}

	action, err := parseAction(t.ActionAfterProcessed)
	if err != nil {
		errs = append(errs, err)
	}

	errs = append(errs, validateFolderName("tracking.done_folder", t.DoneFolder)...)
	errs = append(errs, validateFolderName("tracking.error_folder", t.ErrorFolder)...)

	if action == actionMove && t.DoneFolder == "" {
		errs = append(errs, errors.New("tracking.done_folder: required when action_after_processed is \"move\""))
	}

	if t.DoneFolder != "" && strings.EqualFold(t.DoneFolder, t.ErrorFolder) {
		errs = append(errs, errors.New("tracking.error_folder: must differ from done_folder"))
	}

	if t.PollIntervalSeconds < minPollIntervalSeconds {
		errs = append(errs, fmt.Errorf("tracking.poll_interval_seconds: must be >= %d, got %d",
			minPollIntervalSeconds, t.PollIntervalSeconds))
	}

	errs = append(errs, validateBackoff(t.BaseBackoff, t.MaxBackoff)...)
	errs = append(errs, validateOctalPermission("tracking.dir_permissions", t.DirPermissions)...)
	errs = append(errs, validateOctalPermission("tracking.file_permissions", t.FilePermissions)...)

	for _, name := range t.IgnoreFolders {
		if strings.TrimSpace(name) == "" {
			errs = append(errs, errors.New("tracking.ignore_folders: entries must not be empty"))
			break
		}
	}

	return errs
}

// validateFolderName accepts empty (disabled) or a single path segment.
func validateFolderName(field, name string) []error {
	if name == "" {
		return nil
	}

	if strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return []error{fmt.Errorf("%s: must be a single folder name, got %q", field, name)}
	}

	return nil
}

func validateBackoff(base, maxDelay string) []error {
	var errs []error

	b, err := parseDurationMin("tracking.base_backoff", base, minBaseBackoff)
	if err != nil {
		errs = append(errs, err)
	}

	m, err := parseDurationMin("tracking.max_backoff", maxDelay, minBaseBackoff)
	if err != nil {
		errs = append(errs, err)
	}

	if len(errs) == 0 && m < b {
		errs = append(errs, fmt.Errorf("tracking.max_backoff: must be >= base_backoff (%s), got %s", b, m))
	}

	return errs
}

func validateOctalPermission(field, value string) []error {
	if _, err := parseOctal(field, value); err != nil {
		return []error{err}
	}

	return nil
}

func parseOctal(field, value string) (uint32, error) {
	if value == "" {
		return 0, fmt.Errorf("%s: must not be empty", field)
	}

	if len(value) < minOctalDigits || len(value) > maxOctalDigits {
		return 0, fmt.Errorf("%s: must be 3 or 4 octal digits, got %q", field, value)
	}

	n, err := strconv.ParseUint(value, octalBase, 32)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid octal value %q", field, value)
	}

	if n > maxOctalValue {
		return 0, fmt.Errorf("%s: octal value out of range %q", field, value)
	}

	return uint32(n), nil
}

// parseDurationMin parses a duration string and checks a minimum.
func parseDurationMin(field, value string, minimum time.Duration) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", field, value, err)
	}

	if d < minimum {
		return 0, fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)
	}

	return d, nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	if _, err := parseDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout); err != nil {
		errs = append(errs, err)
	}

	if _, err := parseDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout); err != nil {
		errs = append(errs, err)
	}

	return errs
}

func validateState(s *StateConfig) []error {
	var errs []error

	if s.JournalPath != "" && !filepath.IsAbs(s.JournalPath) {
		errs = append(errs, fmt.Errorf("state.journal_path: must be absolute, got %q", s.JournalPath))
	}

	if s.JournalRetentionDays < minJournalRetention {
		errs = append(errs, fmt.Errorf("state.journal_retention_days: must be >= %d, got %d",
			minJournalRetention, s.JournalRetentionDays))
	}

	return errs
}
