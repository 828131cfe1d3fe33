package mirror

import (
	"cmp"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/spf13/afero"
)

// Verify statuses.
const (
	VerifyOK           = "ok"
	VerifyMissing      = "missing"
	VerifyHashMismatch = "hash_mismatch"
	VerifyUnreadable   = "unreadable"
)

// VerifyResult is the check of one mirrored file.
type VerifyResult struct {
	Path     string `json:"path"`
	Status   string `json:"status"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// VerifyReport summarizes a verification pass. Mismatches are sorted by path.
type VerifyReport struct {
	Verified   int            `json:"verified"`
	Mismatches []VerifyResult `json:"mismatches"`
}

// VerifyFiles re-hashes local files and compares them with the expected hex
// SHA-256 digests, keyed by absolute local path. Files not in expected are
// ignored. It never writes.
func VerifyFiles(ctx context.Context, fs afero.Fs, expected map[string]string, logger *slog.Logger) (*VerifyReport, error) {
	checker := NewIntegrityChecker(fs)
	report := &VerifyReport{Mismatches: []VerifyResult{}}

	for path, want := range expected {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("mirror: verify canceled: %w", ctx.Err())
		}

		res := verifyOne(checker, path, want, logger)
		if res.Status == VerifyOK {
			report.Verified++
			continue
		}

		report.Mismatches = append(report.Mismatches, res)
	}

	slices.SortFunc(report.Mismatches, func(a, b VerifyResult) int {
		return cmp.Compare(a.Path, b.Path)
	})

	return report, nil
}

func verifyOne(checker *IntegrityChecker, path, want string, logger *slog.Logger) VerifyResult {
	sum, err := checker.fileDigest(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return VerifyResult{Path: path, Status: VerifyMissing, Expected: want}
		}

		logger.Warn("verify: hash failed", slog.String("path", path), slog.String("error", err.Error()))

		return VerifyResult{Path: path, Status: VerifyUnreadable, Expected: want, Actual: err.Error()}
	}

	got := hex.EncodeToString(sum)
	if got != want {
		return VerifyResult{Path: path, Status: VerifyHashMismatch, Expected: want, Actual: got}
	}

	return VerifyResult{Path: path, Status: VerifyOK}
}
