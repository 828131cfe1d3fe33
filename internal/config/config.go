// Package config implements TOML/YAML configuration loading, validation, and
// platform-specific path resolution for spmirror. Values are layered
// defaults -> config file -> environment -> CLI flags.
package config

// Config is the top-level configuration structure parsed from the config
// file. Every section is a fixed table; unknown keys are rejected.
type Config struct {
	Site     SiteConfig     `toml:"site" yaml:"site" json:"site"`
	Auth     AuthConfig     `toml:"auth" yaml:"auth" json:"auth"`
	Tracking TrackingConfig `toml:"tracking" yaml:"tracking" json:"tracking"`
	Logging  LoggingConfig  `toml:"logging" yaml:"logging" json:"logging"`
	Network  NetworkConfig  `toml:"network" yaml:"network" json:"network"`
	State    StateConfig    `toml:"state" yaml:"state" json:"state"`
}

// SiteConfig identifies the SharePoint site and the library folder to mirror.
type SiteConfig struct {
	URL         string `toml:"url" yaml:"url" json:"url"`
	LibraryRoot string `toml:"library_root" yaml:"library_root" json:"library_root"`
}

// AuthConfig holds the app-only Azure AD registration used to access the site.
type AuthConfig struct {
	Mode         string `toml:"mode" yaml:"mode" json:"mode"`
	TenantID     string `toml:"tenant_id" yaml:"tenant_id" json:"tenant_id"`
	ClientID     string `toml:"client_id" yaml:"client_id" json:"client_id"`
	ClientSecret string `toml:"client_secret" yaml:"client_secret" json:"client_secret"`
	PFXPath      string `toml:"pfx_path" yaml:"pfx_path" json:"pfx_path"`
	PFXPassword  string `toml:"pfx_password" yaml:"pfx_password" json:"pfx_password"`
	TokenCache   string `toml:"token_cache" yaml:"token_cache" json:"token_cache"`
}

// TrackingConfig controls what is mirrored, what happens to remote files
// afterwards, and how often the library is polled.
type TrackingConfig struct {
	LocalRoot            string   `toml:"local_root" yaml:"local_root" json:"local_root"`
	FilePrefix           string   `toml:"file_prefix" yaml:"file_prefix" json:"file_prefix"`
	IgnoreFolders        []string `toml:"ignore_folders" yaml:"ignore_folders" json:"ignore_folders"`
	IgnorePatterns       []string `toml:"ignore_patterns" yaml:"ignore_patterns" json:"ignore_patterns"`
	VerifyHash           bool     `toml:"verify_hash" yaml:"verify_hash" json:"verify_hash"`
	ActionAfterProcessed string   `toml:"action_after_processed" yaml:"action_after_processed" json:"action_after_processed"`
	DoneFolder           string   `toml:"done_folder" yaml:"done_folder" json:"done_folder"`
	ErrorFolder          string   `toml:"error_folder" yaml:"error_folder" json:"error_folder"`
	PollIntervalSeconds  int      `toml:"poll_interval_seconds" yaml:"poll_interval_seconds" json:"poll_interval_seconds"`
	BaseBackoff          string   `toml:"base_backoff" yaml:"base_backoff" json:"base_backoff"`
	MaxBackoff           string   `toml:"max_backoff" yaml:"max_backoff" json:"max_backoff"`
	DirPermissions       string   `toml:"dir_permissions" yaml:"dir_permissions" json:"dir_permissions"`
	FilePermissions      string   `toml:"file_permissions" yaml:"file_permissions" json:"file_permissions"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level" yaml:"log_level" json:"log_level"`
	LogFile   string `toml:"log_file" yaml:"log_file" json:"log_file"`
	LogFormat string `toml:"log_format" yaml:"log_format" json:"log_format"`
}

// NetworkConfig controls HTTP client behavior.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout" yaml:"connect_timeout" json:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout" yaml:"data_timeout" json:"data_timeout"`
	UserAgent      string `toml:"user_agent" yaml:"user_agent" json:"user_agent"`
}

// StateConfig locates the run journal.
type StateConfig struct {
	JournalPath          string `toml:"journal_path" yaml:"journal_path" json:"journal_path"`
	JournalRetentionDays int    `toml:"journal_retention_days" yaml:"journal_retention_days" json:"journal_retention_days"`
}

// CLIOverrides holds values from CLI flags. Pointer fields distinguish "not
// specified" (nil) from an explicit empty value.
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	LocalRoot  *string // --local-root flag
}
