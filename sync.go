package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
)

// configDebounce coalesces the burst of events an editor save produces.
const configDebounce = 500 * time.Millisecond

func newSyncCmd() *cobra.Command {
	var watch, watchConfig bool

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the library to the local directory",
		Long: `Run one mirror pass over the configured library folder.

With --watch, keep running: wait poll_interval_seconds after a successful run
and back off exponentially after a failed one. SIGHUP (or 'spmirror reload')
reloads the config; --watch-config also reloads when the file changes. A
reloaded config applies from the next run.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if watchConfig && !watch {
				return fmt.Errorf("--watch-config requires --watch")
			}

			return runSync(cmd, watch, watchConfig)
		},
	}

	cmd.Flags().BoolVar(&watch, "watch", false, "run continuously until interrupted")
	cmd.Flags().BoolVar(&watchConfig, "watch-config", false, "reload when the config file changes (with --watch)")

	return cmd
}

func runSync(cmd *cobra.Command, watch, watchConfig bool) error {
	cc := mustCLIContext(cmd.Context())

	release, err := acquirePIDFile(config.PIDFilePath())
	if err != nil {
		return err
	}
	defer release()

	eng, err := newEngine(cc)
	if err != nil {
		return err
	}
	defer eng.Close()

	ctx := shutdownContext(cmd.Context(), cc.Logger)

	if watch {
		return runWatch(ctx, eng, cliOverrides(cmd), cc.CfgPath, watchConfig, cc.Logger)
	}

	report, err := eng.runOnce(ctx)
	if printErr := printRunReport(os.Stdout, report, cc.Flags.JSON); printErr != nil {
		return printErr
	}

	return err
}

// runWatch runs the scheduler and the reload triggers until ctx is canceled.
func runWatch(
	ctx context.Context, eng *engine, cli config.CLIOverrides, cfgPath string, watchConfig bool, logger *slog.Logger,
) error {
	sched := mirror.NewScheduler(mirror.SchedulerConfig{
		Run: func(ctx context.Context) error {
			_, err := eng.runOnce(ctx)
			return err
		},
		Timing: eng.live.Timing,
		Logger: logger,
	})

	hup, stopHUP := reloadSignals()
	defer stopHUP()

	reload := func() { eng.reload(cli) }

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return reloadOnSignal(gctx, hup, reload) })

	if watchConfig {
		g.Go(func() error { return watchConfigFile(gctx, cfgPath, reload, logger) })
	}

	logger.Info("watch mode started", slog.Int("pid", os.Getpid()), slog.Bool("watch_config", watchConfig))

	err := g.Wait()

	logger.Info("watch mode stopped")

	return err
}

// reloadOnSignal calls reload for every value received on sig.
func reloadOnSignal(ctx context.Context, sig <-chan os.Signal, reload func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig:
			reload()
		}
	}
}

// watchConfigFile calls onChange after path is written, created or renamed
// over. The parent directory is watched so editors that replace the file
// are seen too.
func watchConfigFile(ctx context.Context, path string, onChange func(), logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating config watcher: %w", err)
	}
	defer w.Close()

	target := filepath.Clean(path)

	if err := w.Add(filepath.Dir(target)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(target), err)
	}

	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if filepath.Clean(ev.Name) != target ||
				ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}

			logger.Debug("config file event", slog.String("op", ev.Op.String()))
			fire = time.After(configDebounce)
		case <-fire:
			fire = nil

			logger.Info("config file changed", slog.String("path", target))
			onChange()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			logger.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

// runReportJSON is the --json form of a run report.
type runReportJSON struct {
	StartedAt           time.Time `json:"started_at"`
	DurationMS          int64     `json:"duration_ms"`
	Folders             int       `json:"folders"`
	FoldersExcluded     int       `json:"folders_excluded"`
	FilesSkipped        int       `json:"files_skipped"`
	Files               int       `json:"files"`
	Succeeded           int       `json:"succeeded"`
	Mismatched          int       `json:"mismatched"`
	Failed              int       `json:"failed"`
	Moved               int       `json:"moved"`
	Deleted             int       `json:"deleted"`
	DispositionFailures int       `json:"disposition_failures"`
	Bytes               int64     `json:"bytes"`
}

func toReportJSON(r *mirror.RunReport) runReportJSON {
	return runReportJSON{
		StartedAt:           r.StartedAt,
		DurationMS:          r.Duration.Milliseconds(),
		Folders:             r.Folders,
		FoldersExcluded:     r.FoldersExcluded,
		FilesSkipped:        r.FilesSkipped,
		Files:               r.Files,
		Succeeded:           r.Succeeded,
		Mismatched:          r.Mismatched,
		Failed:              r.Failed,
		Moved:               r.Moved,
		Deleted:             r.Deleted,
		DispositionFailures: r.DispositionFailures,
		Bytes:               r.Bytes,
	}
}

// printRunReport writes a one-shot run summary.
func printRunReport(w io.Writer, r *mirror.RunReport, asJSON bool) error {
	if r == nil {
		return nil
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(toReportJSON(r)); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	fmt.Fprintf(w, "Folders: %d (%d excluded)\n", r.Folders, r.FoldersExcluded)
	fmt.Fprintf(w, "Files:   %d processed, %d skipped by prefix\n", r.Files, r.FilesSkipped)
	fmt.Fprintf(w, "Result:  %d ok, %d hash mismatch, %d failed\n", r.Succeeded, r.Mismatched, r.Failed)
	fmt.Fprintf(w, "Remote:  %d moved, %d deleted, %d disposition failures\n", r.Moved, r.Deleted, r.DispositionFailures)
	fmt.Fprintf(w, "Data:    %s in %s\n", formatSize(r.Bytes), r.Duration.Round(time.Millisecond))

	return nil
}

func newReloadCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Ask the running sync --watch daemon to reload its config",
		Long: `Send SIGHUP to the running sync --watch daemon. The new config applies from
its next run; an invalid config is logged by the daemon and ignored.`,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			pid, err := signalDaemon(config.PIDFilePath(), syscall.SIGHUP)
			if err != nil {
				return err
			}

			cc.Statusf("Sent reload to daemon (PID %d)\n", pid)

			return nil
		},
	}
}
