package mirror

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLibraryRootURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		webRoot     string
		libraryRoot string
		want        string
	}{
		{"site collection", "/sites/team", "Shared Documents", "/sites/team/Shared Documents"},
		{"slashes trimmed", "/sites/team/", "/Shared Documents/Inbox/", "/sites/team/Shared Documents/Inbox"},
		{"root site", "/", "Shared Documents", "/Shared Documents"},
		{"empty web root", "", "Docs", "/Docs"},
		{"both empty", "", "", "/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LibraryRootURL(tt.webRoot, tt.libraryRoot))
		})
	}
}

func TestLocalPath(t *testing.T) {
	t.Parallel()

	localRoot := filepath.FromSlash("/srv/mirror")

	tests := []struct {
		name        string
		remote      string
		webRoot     string
		libraryRoot string
		want        string
	}{
		{
			name:        "top level file",
			remote:      "/sites/team/Shared Documents/report.csv",
			webRoot:     "/sites/team",
			libraryRoot: "Shared Documents",
			want:        "report.csv",
		},
		{
			name:        "nested file",
			remote:      "/sites/team/Shared Documents/Inbox/A/B/report.csv",
			webRoot:     "/sites/team",
			libraryRoot: "Shared Documents/Inbox",
			want:        "A/B/report.csv",
		},
		{
			name:        "prefix differs in case",
			remote:      "/Sites/Team/shared documents/A/x.txt",
			webRoot:     "/sites/team",
			libraryRoot: "Shared Documents",
			want:        "A/x.txt",
		},
		{
			name:        "root site",
			remote:      "/Shared Documents/A/x.txt",
			webRoot:     "/",
			libraryRoot: "Shared Documents",
			want:        "A/x.txt",
		},
		{
			name:        "spaces and unicode",
			remote:      "/sites/team/Docs/Qüarterly Reports/Résumé 2024.pdf",
			webRoot:     "/sites/team",
			libraryRoot: "Docs",
			want:        "Qüarterly Reports/Résumé 2024.pdf",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := LocalPath(tt.remote, tt.webRoot, tt.libraryRoot, localRoot)
			require.NoError(t, err)
			assert.Equal(t, filepath.Join(localRoot, filepath.FromSlash(tt.want)), got)
		})
	}
}

func TestLocalPath_NormalizesToNFC(t *testing.T) {
	t.Parallel()

	decomposed := "/sites/t/Docs/cafe\u0301.txt"

	got, err := LocalPath(decomposed, "/sites/t", "Docs", "/m")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("/m", "caf\u00e9.txt"), got)
}

func TestLocalPath_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		remote    string
		localRoot string
	}{
		{"outside library", "/sites/team/Other/x.txt", "/m"},
		{"sibling with shared prefix", "/sites/team/DocsArchive/x.txt", "/m"},
		{"library root itself", "/sites/team/Docs", "/m"},
		{"trailing slash only", "/sites/team/Docs/", "/m"},
		{"dot dot segment", "/sites/team/Docs/A/../../etc/passwd", "/m"},
		{"dot segment", "/sites/team/Docs/./x.txt", "/m"},
		{"empty segment", "/sites/team/Docs/A//x.txt", "/m"},
		{"backslash", "/sites/team/Docs/A\\..\\x.txt", "/m"},
		{"empty local root", "/sites/team/Docs/x.txt", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := LocalPath(tt.remote, "/sites/team", "Docs", tt.localRoot)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidPath)
		})
	}
}

func TestLocalPath_Deterministic(t *testing.T) {
	t.Parallel()

	remote := "/sites/team/Docs/A/B/C/data.bin"

	first, err := LocalPath(remote, "/sites/team", "Docs", "/m")
	require.NoError(t, err)

	for range 5 {
		again, err := LocalPath(remote, "/sites/team", "Docs", "/m")
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}

	// The library-relative suffix re-derived from the local path maps back
	// to the same remote path.
	rel, err := filepath.Rel("/m", first)
	require.NoError(t, err)

	rebuilt := "/sites/team/Docs/" + filepath.ToSlash(rel)
	assert.Equal(t, remote, rebuilt)

	relRemote, err := RelativePath(remote, "/sites/team", "Docs")
	require.NoError(t, err)
	assert.Equal(t, filepath.ToSlash(rel), relRemote)
}

func TestDispositionTargetPath_PreservesDepth(t *testing.T) {
	t.Parallel()

	for depth := range 5 {
		segs := make([]string, 0, depth)
		for i := range depth {
			segs = append(segs, string(rune('A'+i)))
		}

		dir := "/sites/team/Docs"
		if depth > 0 {
			dir += "/" + strings.Join(segs, "/")
		}

		remote := dir + "/f.txt"

		got, err := DispositionTargetPath(remote, "/sites/team", "Docs", "done")
		require.NoError(t, err)
		assert.Equal(t, dir+"/done/f.txt", got, "depth %d", depth)

		wantDepth := strings.Count(remote, "/") + 1
		assert.Equal(t, wantDepth, strings.Count(got, "/"), "depth %d", depth)
	}
}

func TestDispositionTargetPath_KeepsRemoteSpelling(t *testing.T) {
	t.Parallel()

	got, err := DispositionTargetPath("/Sites/Team/DOCS/A/f.txt", "/sites/team", "Docs", "_error")
	require.NoError(t, err)
	assert.Equal(t, "/Sites/Team/DOCS/A/_error/f.txt", got)
}

func TestDispositionTargetPath_RootSite(t *testing.T) {
	t.Parallel()

	got, err := DispositionTargetPath("/Docs/A/f.txt", "/", "Docs", "done")
	require.NoError(t, err)
	assert.Equal(t, "/Docs/A/done/f.txt", got)
}

func TestDispositionTargetPath_Invalid(t *testing.T) {
	t.Parallel()

	for _, target := range []string{"", ".", "..", "a/b", "a\\b"} {
		_, err := DispositionTargetPath("/sites/team/Docs/f.txt", "/sites/team", "Docs", target)
		assert.ErrorIs(t, err, ErrInvalidPath, "target %q", target)
	}

	_, err := DispositionTargetPath("/elsewhere/f.txt", "/sites/team", "Docs", "done")
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestParentPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "/a/b", parentPath("/a/b/c"))
	assert.Equal(t, "/", parentPath("/a"))
	assert.Equal(t, "/", parentPath("a"))
}
