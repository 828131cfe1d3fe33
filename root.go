package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagLocalRoot  string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// skipConfigAnnotation marks commands that must run without a valid config
// (config validate reports the errors itself; reload only needs the PID file).
const skipConfigAnnotation = "skipConfig"

// logFilePerms is the mode of a newly created log file.
const logFilePerms = 0o640

// CLIFlags is a snapshot of the global flags.
type CLIFlags struct {
	ConfigPath string
	LocalRoot  string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext carries what the root pre-run resolved to every subcommand.
// Cfg and Holder are nil for commands annotated with skipConfigAnnotation.
type CLIContext struct {
	Flags   CLIFlags
	Cfg     *config.Config
	CfgPath string
	Holder  *config.Holder
	Logger  *slog.Logger

	closeLog func()
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext stored by the root pre-run, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext is cliContextFrom for commands that cannot run without one.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("CLIContext missing: command registered outside newRootCmd")
	}

	return cc
}

// newRootCmd builds the root command with all subcommands registered.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "spmirror",
		Short: "SharePoint document library mirror",
		Long: `Mirror files from a SharePoint document library to a local directory.

Each run walks the configured library folder, downloads matching files,
optionally verifies them by SHA-256, and then leaves, moves, or deletes the
remote originals.`,
		Version:           version,
		SilenceErrors:     true,
		SilenceUsage:      true,
		PersistentPreRunE: persistentPreRun,
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if cc := cliContextFrom(cmd.Context()); cc != nil && cc.closeLog != nil {
				cc.closeLog()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path (TOML, or YAML by extension)")
	cmd.PersistentFlags().StringVar(&flagLocalRoot, "local-root", "", "override tracking.local_root")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "only log errors")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newReloadCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newLsCmd())
	cmd.AddCommand(newWhoamiCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

func currentFlags(cmd *cobra.Command) CLIFlags {
	f := CLIFlags{
		ConfigPath: flagConfigPath,
		JSON:       flagJSON,
		Verbose:    flagVerbose,
		Quiet:      flagQuiet,
	}

	// An explicitly empty --local-root is still an override.
	if cmd.Flags().Changed("local-root") {
		f.LocalRoot = flagLocalRoot
	}

	return f
}

func persistentPreRun(cmd *cobra.Command, _ []string) error {
	cc := &CLIContext{Flags: currentFlags(cmd)}

	if cmd.Annotations[skipConfigAnnotation] == "" {
		cfg, path, err := config.Resolve(config.ReadEnvOverrides(), cliOverrides(cmd))
		if err != nil {
			return fmt.Errorf("loading config %s: %w", path, err)
		}

		cc.Cfg = cfg
		cc.CfgPath = path
		cc.Holder = config.NewHolder(cfg, path)
	}

	var logCfg *config.LoggingConfig
	if cc.Cfg != nil {
		logCfg = &cc.Cfg.Logging
	}

	logger, closeLog, err := buildLogger(logCfg, cc.Flags, os.Stderr)
	if err != nil {
		return err
	}

	cc.Logger = logger
	cc.closeLog = closeLog

	cmd.SetContext(withCLIContext(cmd.Context(), cc))

	return nil
}

// cliOverrides converts the global flags to config overrides.
func cliOverrides(cmd *cobra.Command) config.CLIOverrides {
	cli := config.CLIOverrides{ConfigPath: flagConfigPath}

	if cmd.Flags().Changed("local-root") {
		root := flagLocalRoot
		cli.LocalRoot = &root
	}

	return cli
}

// parseLevel maps a config log level to slog. Unknown values are rejected by
// config validation, so the default branch is only reached for "info".
func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// buildLogger creates the process logger. The config level is the baseline
// and --verbose/--quiet win over it. log_format "auto" picks text on a
// terminal and JSON otherwise. With log_file set, output is also appended to
// that file; the returned func closes it.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags, stderr *os.File) (*slog.Logger, func(), error) {
	level := slog.LevelInfo
	format := "auto"

	var logFile string

	if cfg != nil {
		level = parseLevel(cfg.LogLevel)
		format = cfg.LogFormat
		logFile = cfg.LogFile
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	if format == "auto" || format == "" {
		format = "json"
		if isatty.IsTerminal(stderr.Fd()) || isatty.IsCygwinTerminal(stderr.Fd()) {
			format = "text"
		}
	}

	var (
		w       io.Writer = stderr
		closeFn           = func() {}
	)

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerms)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}

		w = io.MultiWriter(stderr, f)
		closeFn = func() { f.Close() }
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler), closeFn, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
