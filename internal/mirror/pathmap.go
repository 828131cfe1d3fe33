package mirror

import (
	"fmt"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Path mapping between server-relative remote paths, the configured library
// root and the local mirror root. Everything here is pure: no I/O, and the
// same inputs always produce the same output.

// serverSep is the remote store's path separator.
const serverSep = "/"

// cleanServerPath trims surrounding whitespace and slashes and returns the
// path with exactly one leading slash, or "" for the root.
func cleanServerPath(p string) string {
	p = strings.Trim(strings.TrimSpace(p), serverSep)
	if p == "" {
		return ""
	}

	return serverSep + p
}

// LibraryRootURL joins the site's server-relative web root and the
// configured library root into the absolute server-relative path traversal
// starts from. A site at the server root ("/") contributes nothing.
func LibraryRootURL(webRoot, libraryRoot string) string {
	root := cleanServerPath(webRoot) + cleanServerPath(libraryRoot)
	if root == "" {
		return serverSep
	}

	return root
}

// joinServerPath appends slash-separated segments to a server-relative base.
func joinServerPath(base string, segs ...string) string {
	return strings.TrimSuffix(base, serverSep) + serverSep + strings.Join(segs, serverSep)
}

// splitUnderRoot verifies that remotePath lies strictly below the library
// root and returns the root prefix exactly as spelled in remotePath together
// with the remaining path segments. The prefix comparison is
// case-insensitive because SharePoint URLs are.
func splitUnderRoot(remotePath, webRoot, libraryRoot string) (string, []string, error) {
	root := LibraryRootURL(webRoot, libraryRoot)

	var prefix, rest string

	if root == serverSep {
		if !strings.HasPrefix(remotePath, serverSep) {
			return "", nil, fmt.Errorf("%w: %q is not server-relative", ErrInvalidPath, remotePath)
		}

		prefix, rest = "", remotePath[1:]
	} else {
		n := len(root)
		if len(remotePath) <= n+1 || remotePath[n] != '/' || !strings.EqualFold(remotePath[:n], root) {
			return "", nil, fmt.Errorf("%w: %q is not below %q", ErrInvalidPath, remotePath, root)
		}

		prefix, rest = remotePath[:n], remotePath[n+1:]
	}

	segs := strings.Split(rest, serverSep)
	for _, s := range segs {
		if err := checkSegment(s); err != nil {
			return "", nil, fmt.Errorf("%w: %q: %w", ErrInvalidPath, remotePath, err)
		}
	}

	return prefix, segs, nil
}

// checkSegment rejects path segments that could escape the local root or are
// not representable as a single local path component.
func checkSegment(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("empty path segment")
	case s == "." || s == "..":
		return fmt.Errorf("relative segment %q", s)
	case strings.ContainsAny(s, "\\\x00"):
		return fmt.Errorf("segment %q contains a forbidden character", s)
	default:
		return nil
	}
}

// RelativePath returns remotePath relative to the library root using "/" as
// separator, e.g. "A/B/report.csv".
func RelativePath(remotePath, webRoot, libraryRoot string) (string, error) {
	_, segs, err := splitUnderRoot(remotePath, webRoot, libraryRoot)
	if err != nil {
		return "", err
	}

	return strings.Join(segs, serverSep), nil
}

// LocalPath maps a remote file path to its location below localRoot. The web
// root and library root are stripped, each remaining segment is NFC
// normalized, and the result is joined with the local separator.
func LocalPath(remoteFilePath, webRoot, libraryRoot, localRoot string) (string, error) {
	if localRoot == "" {
		return "", fmt.Errorf("%w: local root is empty", ErrInvalidPath)
	}

	_, segs, err := splitUnderRoot(remoteFilePath, webRoot, libraryRoot)
	if err != nil {
		return "", err
	}

	parts := make([]string, 0, len(segs)+1)
	parts = append(parts, localRoot)

	for _, s := range segs {
		parts = append(parts, norm.NFC.String(s))
	}

	return filepath.Join(parts...), nil
}

// DispositionTargetPath returns where a file is moved for disposition: a
// targetFolder subfolder next to the file, keeping its nesting depth.
// "/web/lib/A/B/f.txt" with target "_done" becomes "/web/lib/A/B/_done/f.txt".
func DispositionTargetPath(remoteFilePath, webRoot, libraryRoot, targetFolder string) (string, error) {
	if err := checkSegment(targetFolder); err != nil || strings.Contains(targetFolder, serverSep) {
		return "", fmt.Errorf("%w: invalid target folder name %q", ErrInvalidPath, targetFolder)
	}

	prefix, segs, err := splitUnderRoot(remoteFilePath, webRoot, libraryRoot)
	if err != nil {
		return "", err
	}

	target := make([]string, 0, len(segs)+1)
	target = append(target, segs[:len(segs)-1]...)
	target = append(target, targetFolder, segs[len(segs)-1])

	if prefix == "" {
		return serverSep + strings.Join(target, serverSep), nil
	}

	return joinServerPath(prefix, target...), nil
}

// parentPath returns the server-relative parent folder of p.
func parentPath(p string) string {
	i := strings.LastIndex(p, serverSep)
	if i <= 0 {
		return serverSep
	}

	return p[:i]
}
