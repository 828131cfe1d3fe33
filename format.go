package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// statusf prints a progress message to stderr unless quiet is set. stdout is
// reserved for command output so it stays pipeable.
func statusf(quiet bool, format string, args ...any) {
	if quiet {
		return
	}

	fmt.Fprintf(os.Stderr, format, args...)
}

// Statusf is statusf bound to the command's --quiet flag.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

var sizeUnits = []string{"KB", "MB", "GB", "TB"}

// formatSize returns a human-readable binary size, e.g. "1.5 MB".
func formatSize(n int64) string {
	const unit = 1024

	if n < unit {
		return fmt.Sprintf("%d B", n)
	}

	value := float64(n) / unit
	i := 0

	for value >= unit && i < len(sizeUnits)-1 {
		value /= unit
		i++
	}

	return fmt.Sprintf("%.1f %s", value, sizeUnits[i])
}

// formatTime renders t compactly relative to now: clock time within the
// same year, the year otherwise. The zero time renders as "-".
func formatTime(t, now time.Time) string {
	if t.IsZero() {
		return "-"
	}

	t = t.In(now.Location())
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}

// printTable writes left-aligned columns separated by two spaces. Every row
// must have len(headers) cells.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))

	for _, row := range append([][]string{headers}, rows...) {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	writeRow := func(cells []string) {
		padded := make([]string, len(cells))
		for i, cell := range cells {
			padded[i] = fmt.Sprintf("%-*s", widths[i], cell)
		}

		fmt.Fprintln(w, strings.TrimRight(strings.Join(padded, "  "), " "))
	}

	writeRow(headers)

	for _, row := range rows {
		writeRow(row)
	}
}
