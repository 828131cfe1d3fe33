package mirror

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFolderFilter_Prefix(t *testing.T) {
	t.Parallel()

	f := newFolderFilter(&SyncConfig{FilePrefix: "Report_"})

	assert.True(t, f.matchesPrefix("report_2024.csv"))
	assert.True(t, f.matchesPrefix("REPORT_x"))
	assert.False(t, f.matchesPrefix("summary.csv"))
	assert.False(t, f.matchesPrefix("my_report_2024.csv"))

	all := newFolderFilter(&SyncConfig{})
	assert.True(t, all.matchesPrefix("anything"))
	assert.True(t, all.matchesPrefix(""))
}

func TestFolderFilter_PrefixUnicodeFolding(t *testing.T) {
	t.Parallel()

	f := newFolderFilter(&SyncConfig{FilePrefix: "\u00c9t\u00e9_"})
	assert.True(t, f.matchesPrefix("\u00e9t\u00e9_2024.pdf"))

	g := newFolderFilter(&SyncConfig{FilePrefix: "caf\u00e9"})
	assert.True(t, g.matchesPrefix("Cafe\u0301-menu.pdf"), "decomposed name matches composed prefix")
}

func TestFolderFilter_Folders(t *testing.T) {
	t.Parallel()

	f := newFolderFilter(&SyncConfig{
		DoneFolder:     "_done",
		ErrorFolder:    "_error",
		IgnoreFolders:  []string{"Archive", "  "},
		IgnorePatterns: []string{"2019-*", "/Drafts"},
	})

	assert.False(t, f.includeFolder("_done", "A/_done"))
	assert.False(t, f.includeFolder("_DONE", "_DONE"))
	assert.False(t, f.includeFolder("_error", "x/y/_error"))
	assert.False(t, f.includeFolder("archive", "archive"))
	assert.False(t, f.includeFolder("2019-Q1", "Reports/2019-Q1"))
	assert.False(t, f.includeFolder("Drafts", "Drafts"))

	assert.True(t, f.includeFolder("Drafts", "A/Drafts"), "anchored pattern only matches at the library root")
	assert.True(t, f.includeFolder("2020-Q1", "Reports/2020-Q1"))
	assert.True(t, f.includeFolder("Inbox", "Inbox"))
}

func TestFolderFilter_NoDispositionFolders(t *testing.T) {
	t.Parallel()

	f := newFolderFilter(&SyncConfig{})
	assert.True(t, f.includeFolder("done", "done"))
	assert.True(t, f.includeFolder("", ""))
}
