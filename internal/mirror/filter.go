package mirror

import (
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// folderFilter decides which folders the walker descends into and which
// files it hands to the processor. Not safe for concurrent use: the caser
// is stateful.
type folderFilter struct {
	prefix   string
	excluded map[string]struct{}
	patterns *ignore.GitIgnore
	fold     cases.Caser
}

func newFolderFilter(cfg *SyncConfig) *folderFilter {
	f := &folderFilter{
		excluded: make(map[string]struct{}),
		fold:     cases.Fold(),
	}

	f.prefix = f.key(cfg.FilePrefix)

	// Disposition targets are never traversed, whatever the action, so files
	// already dispositioned are not picked up again.
	for _, name := range []string{cfg.DoneFolder, cfg.ErrorFolder} {
		if name != "" {
			f.excluded[f.key(name)] = struct{}{}
		}
	}

	for _, name := range cfg.IgnoreFolders {
		if name = strings.TrimSpace(name); name != "" {
			f.excluded[f.key(name)] = struct{}{}
		}
	}

	if len(cfg.IgnorePatterns) > 0 {
		f.patterns = ignore.CompileIgnoreLines(cfg.IgnorePatterns...)
	}

	return f
}

// key folds s for case-insensitive comparison after NFC normalization, so
// precomposed and decomposed spellings compare equal.
func (f *folderFilter) key(s string) string {
	return f.fold.String(norm.NFC.String(s))
}

// includeFolder reports whether the walker should descend into the folder
// named name whose library-relative path is relPath.
func (f *folderFilter) includeFolder(name, relPath string) bool {
	if _, ok := f.excluded[f.key(name)]; ok {
		return false
	}

	if f.patterns != nil && relPath != "" && f.patterns.MatchesPath(relPath+"/") {
		return false
	}

	return true
}

// matchesPrefix reports whether a file name starts with the configured
// prefix, ignoring case. An empty prefix matches every file.
func (f *folderFilter) matchesPrefix(name string) bool {
	if f.prefix == "" {
		return true
	}

	return strings.HasPrefix(f.key(name), f.prefix)
}
