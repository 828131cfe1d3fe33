package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/journal"
)

const defaultStatusLimit = 10

// Daemon states for status output.
const (
	daemonRunning = "running"
	daemonStopped = "stopped"
)

func newStatusCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon state and recent runs",
		Long: `Show whether a sync process is running, the effective site and local root,
and the most recent runs recorded in the journal.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if limit < 1 {
				return fmt.Errorf("--limit must be at least 1")
			}

			return runStatus(cmd.Context(), mustCLIContext(cmd.Context()), limit, os.Stdout)
		},
	}

	cmd.Flags().IntVar(&limit, "limit", defaultStatusLimit, "number of recent runs to show")

	return cmd
}

// statusOutput is the --json form of status.
type statusOutput struct {
	ConfigPath  string      `json:"config_path"`
	Site        string      `json:"site"`
	LibraryRoot string      `json:"library_root"`
	LocalRoot   string      `json:"local_root"`
	Daemon      string      `json:"daemon"`
	PID         int         `json:"pid,omitempty"`
	JournalPath string      `json:"journal_path,omitempty"`
	Runs        []statusRun `json:"runs"`
}

type statusRun struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"started_at"`
	DurationMS int64     `json:"duration_ms"`
	Files      int       `json:"files"`
	Succeeded  int       `json:"succeeded"`
	Mismatched int       `json:"mismatched"`
	Failed     int       `json:"failed"`
	Bytes      int64     `json:"bytes"`
	Error      string    `json:"error,omitempty"`
}

func runStatus(ctx context.Context, cc *CLIContext, limit int, w io.Writer) error {
	out := statusOutput{
		ConfigPath:  cc.CfgPath,
		Site:        cc.Cfg.Site.URL,
		LibraryRoot: cc.Cfg.Site.LibraryRoot,
		LocalRoot:   cc.Cfg.Tracking.LocalRoot,
		Daemon:      daemonStopped,
		JournalPath: config.JournalPath(cc.Cfg),
		Runs:        []statusRun{},
	}

	if pid, err := daemonPID(config.PIDFilePath()); err == nil {
		out.Daemon = daemonRunning
		out.PID = pid
	} else if !errors.Is(err, errDaemonNotRunning) {
		cc.Logger.Warn("reading PID file", slog.String("error", err.Error()))
	}

	runs, err := loadRecentRuns(ctx, out.JournalPath, limit, cc.Logger)
	if err != nil {
		return err
	}

	out.Runs = runs

	if cc.Flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	printStatus(w, &out, time.Now())

	return nil
}

// loadRecentRuns reads the journal if it exists. A missing journal is not an
// error: nothing has run yet.
func loadRecentRuns(ctx context.Context, path string, limit int, logger *slog.Logger) ([]statusRun, error) {
	if path == "" {
		return []statusRun{}, nil
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return []statusRun{}, nil
	}

	j, err := journal.Open(path, logger)
	if err != nil {
		return nil, err
	}
	defer j.Close()

	runs, err := j.RecentRuns(ctx, limit)
	if err != nil {
		return nil, err
	}

	out := make([]statusRun, 0, len(runs))
	for i := range runs {
		r := &runs[i]
		out = append(out, statusRun{
			ID:         r.ID,
			Status:     r.Status,
			StartedAt:  r.StartedAt,
			DurationMS: r.Report.Duration.Milliseconds(),
			Files:      r.Report.Files,
			Succeeded:  r.Report.Succeeded,
			Mismatched: r.Report.Mismatched,
			Failed:     r.Report.Failed,
			Bytes:      r.Report.Bytes,
			Error:      r.Error,
		})
	}

	return out, nil
}

func printStatus(w io.Writer, s *statusOutput, now time.Time) {
	fmt.Fprintf(w, "Config:     %s\n", s.ConfigPath)
	fmt.Fprintf(w, "Site:       %s\n", s.Site)
	fmt.Fprintf(w, "Library:    %s\n", s.LibraryRoot)
	fmt.Fprintf(w, "Local root: %s\n", s.LocalRoot)

	if s.PID > 0 {
		fmt.Fprintf(w, "Daemon:     %s (PID %d)\n", s.Daemon, s.PID)
	} else {
		fmt.Fprintf(w, "Daemon:     %s\n", s.Daemon)
	}

	if len(s.Runs) == 0 {
		fmt.Fprintln(w, "\nNo runs recorded.")
		return
	}

	fmt.Fprintln(w)

	rows := make([][]string, 0, len(s.Runs))
	for i := range s.Runs {
		r := &s.Runs[i]
		rows = append(rows, []string{
			formatTime(r.StartedAt, now),
			r.Status,
			(time.Duration(r.DurationMS) * time.Millisecond).String(),
			strconv.Itoa(r.Files),
			strconv.Itoa(r.Succeeded),
			strconv.Itoa(r.Mismatched),
			strconv.Itoa(r.Failed),
			formatSize(r.Bytes),
		})
	}

	printTable(w, []string{"STARTED", "STATUS", "DURATION", "FILES", "OK", "MISMATCH", "FAILED", "SIZE"}, rows)
}
