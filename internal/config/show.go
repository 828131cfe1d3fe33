package config

import (
	"fmt"
	"io"
	"strings"
)

// redacted replaces secret values in RenderEffective output.
const redacted = "(redacted)"

// RenderEffective writes the effective configuration (after all override
// layers) to w in TOML syntax. Secrets are redacted.
func RenderEffective(cfg *Config, path string, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", path)

	renderSiteSection(ew, &cfg.Site)
	renderAuthSection(ew, &cfg.Auth)
	renderTrackingSection(ew, &cfg.Tracking)
	renderLoggingSection(ew, &cfg.Logging)
	renderNetworkSection(ew, &cfg.Network)
	renderStateSection(ew, cfg)

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderSiteSection(ew *errWriter, s *SiteConfig) {
	ew.printf("[site]\n")
	ew.printf("url          = %q\n", s.URL)
	ew.printf("library_root = %q\n", s.LibraryRoot)
	ew.printf("\n")
}

func renderAuthSection(ew *errWriter, a *AuthConfig) {
	ew.printf("[auth]\n")
	ew.printf("mode          = %q\n", a.Mode)
	ew.printf("tenant_id     = %q\n", a.TenantID)
	ew.printf("client_id     = %q\n", a.ClientID)
	ew.printf("client_secret = %q\n", redact(a.ClientSecret))
	ew.printf("pfx_path      = %q\n", a.PFXPath)
	ew.printf("pfx_password  = %q\n", redact(a.PFXPassword))
	ew.printf("token_cache   = %q\n", a.TokenCache)
	ew.printf("\n")
}

func renderTrackingSection(ew *errWriter, t *TrackingConfig) {
	ew.printf("[tracking]\n")
	ew.printf("local_root             = %q\n", t.LocalRoot)
	ew.printf("file_prefix            = %q\n", t.FilePrefix)
	ew.printf("ignore_folders         = [%s]\n", joinQuoted(t.IgnoreFolders))
	ew.printf("ignore_patterns        = [%s]\n", joinQuoted(t.IgnorePatterns))
	ew.printf("verify_hash            = %t\n", t.VerifyHash)
	ew.printf("action_after_processed = %q\n", t.ActionAfterProcessed)
	ew.printf("done_folder            = %q\n", t.DoneFolder)
	ew.printf("error_folder           = %q\n", t.ErrorFolder)
	ew.printf("poll_interval_seconds  = %d\n", t.PollIntervalSeconds)
	ew.printf("base_backoff           = %q\n", t.BaseBackoff)
	ew.printf("max_backoff            = %q\n", t.MaxBackoff)
	ew.printf("dir_permissions        = %q\n", t.DirPermissions)
	ew.printf("file_permissions       = %q\n", t.FilePermissions)
	ew.printf("\n")
}

func renderLoggingSection(ew *errWriter, l *LoggingConfig) {
	ew.printf("[logging]\n")
	ew.printf("log_level  = %q\n", l.LogLevel)
	ew.printf("log_file   = %q\n", l.LogFile)
	ew.printf("log_format = %q\n", l.LogFormat)
	ew.printf("\n")
}

func renderNetworkSection(ew *errWriter, n *NetworkConfig) {
	ew.printf("[network]\n")
	ew.printf("connect_timeout = %q\n", n.ConnectTimeout)
	ew.printf("data_timeout    = %q\n", n.DataTimeout)
	ew.printf("user_agent      = %q\n", n.UserAgent)
	ew.printf("\n")
}

func renderStateSection(ew *errWriter, cfg *Config) {
	ew.printf("[state]\n")
	ew.printf("journal_path           = %q\n", JournalPath(cfg))
	ew.printf("journal_retention_days = %d\n", cfg.State.JournalRetentionDays)
}

// Redacted returns a copy of cfg with secrets replaced, for output that
// does not go through RenderEffective.
func Redacted(cfg *Config) *Config {
	out := *cfg
	out.Auth.ClientSecret = redact(cfg.Auth.ClientSecret)
	out.Auth.PFXPassword = redact(cfg.Auth.PFXPassword)
	out.Tracking.IgnoreFolders = append([]string(nil), cfg.Tracking.IgnoreFolders...)
	out.Tracking.IgnorePatterns = append([]string(nil), cfg.Tracking.IgnorePatterns...)

	return &out
}

func redact(secret string) string {
	if secret == "" {
		return ""
	}

	return redacted
}

// joinQuoted formats a string slice as comma-separated quoted values.
func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = fmt.Sprintf("%q", item)
	}

	return strings.Join(quoted, ", ")
}
