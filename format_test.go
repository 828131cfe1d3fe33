package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatSize(t *testing.T) {
	tests := []struct {
		name  string
		bytes int64
		want  string
	}{
		{"zero", 0, "0 B"},
		{"bytes", 1023, "1023 B"},
		{"kilobytes", 1536, "1.5 KB"},
		{"megabytes", 5 << 20, "5.0 MB"},
		{"gigabytes", 3 << 29, "1.5 GB"},
		{"terabytes", 1 << 40, "1.0 TB"},
		{"beyond terabytes", 2048 << 40, "2048.0 TB"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, formatSize(tt.bytes))
		})
	}
}

func TestFormatTime(t *testing.T) {
	now := time.Date(2026, time.June, 1, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, "Mar 15 10:30", formatTime(time.Date(2026, time.March, 15, 10, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "Dec 25  2020", formatTime(time.Date(2020, time.December, 25, 8, 0, 0, 0, time.UTC), now))
	assert.Equal(t, "Mar  5 10:30", formatTime(time.Date(2026, time.March, 5, 10, 30, 0, 0, time.UTC), now))
	assert.Equal(t, "-", formatTime(time.Time{}, now))
}

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer

	printTable(&buf, []string{"NAME", "SIZE"}, [][]string{
		{"report.csv", "1.2 MB"},
		{"Sub/", ""},
	})

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "NAME        SIZE", lines[0])
	assert.Equal(t, "report.csv  1.2 MB", lines[1])
	assert.Equal(t, "Sub/", lines[2])
}
