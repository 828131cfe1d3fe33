package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/journal"
	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
)

// errVerifyMismatch makes main exit 1 without printing an extra error line.
var errVerifyMismatch = errors.New("verify: mismatches found")

func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Re-hash mirrored files against the journal",
		Long: `Re-hash every mirrored file under the local root and compare it with the
SHA-256 recorded in the journal when it was last downloaded. Reports missing,
unreadable and changed files.

Exit code 0 if all files verify; exit code 1 if any do not.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runVerify(cmd.Context(), mustCLIContext(cmd.Context()), afero.NewOsFs(), os.Stdout)
		},
	}
}

func runVerify(ctx context.Context, cc *CLIContext, fs afero.Fs, w io.Writer) error {
	path := config.JournalPath(cc.Cfg)
	if path == "" {
		return fmt.Errorf("cannot determine journal path: set state.journal_path")
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("no journal at %s: run 'spmirror sync' first", path)
	}

	j, err := journal.Open(path, cc.Logger)
	if err != nil {
		return err
	}
	defer j.Close()

	digests, err := j.LatestDigests(ctx)
	if err != nil {
		return err
	}

	expected := digestsUnder(digests, cc.Cfg.Tracking.LocalRoot)

	report, err := mirror.VerifyFiles(ctx, fs, expected, cc.Logger)
	if err != nil {
		return err
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}
	} else {
		printVerifyTable(w, report)
	}

	if len(report.Mismatches) > 0 {
		return errVerifyMismatch
	}

	return nil
}

// digestsUnder keeps the journal digests of files below localRoot. Entries
// from an earlier local_root are not this mirror's files any more.
func digestsUnder(digests map[string]journal.DigestRecord, localRoot string) map[string]string {
	prefix := filepath.Clean(localRoot) + string(filepath.Separator)
	out := make(map[string]string, len(digests))

	for path, rec := range digests {
		if strings.HasPrefix(path, prefix) {
			out[path] = rec.Digest
		}
	}

	return out
}

func printVerifyTable(w io.Writer, report *mirror.VerifyReport) {
	fmt.Fprintf(w, "Verified: %d files\n", report.Verified)

	if len(report.Mismatches) == 0 {
		fmt.Fprintln(w, "All files verified successfully.")
		return
	}

	fmt.Fprintf(w, "Problems: %d\n\n", len(report.Mismatches))

	rows := make([][]string, len(report.Mismatches))
	for i := range report.Mismatches {
		m := &report.Mismatches[i]
		rows[i] = []string{m.Path, m.Status, shortDigest(m.Expected), shortDigest(m.Actual)}
	}

	printTable(w, []string{"PATH", "STATUS", "EXPECTED", "ACTUAL"}, rows)
}

const shortDigestLen = 12

// shortDigest abbreviates a hex digest for table output. Other text (an error
// message in the ACTUAL column) is left alone.
func shortDigest(s string) string {
	if len(s) == 64 && strings.Trim(s, "0123456789abcdef") == "" {
		return s[:shortDigestLen]
	}

	return s
}
