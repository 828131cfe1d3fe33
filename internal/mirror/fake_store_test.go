package mirror

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/spf13/afero"
)

func testLogger(t *testing.T) *slog.Logger {
	t.Helper()
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// fakeStore is an in-memory Store. Paths are case-sensitive. Every mutating
// call is recorded so tests can assert how many dispositions were attempted.
type fakeStore struct {
	mu sync.Mutex

	webRoot string
	folders map[string]bool
	files   map[string][]byte

	listErr        map[string]error
	downloadErr    map[string]error
	moveErr        error
	deleteErr      error
	existsErr      error
	createErr      error
	notFoundIfGone bool // FolderExists answers ErrNotFound for missing folders

	listed  []string
	moves   [][2]string
	deletes []string
	creates []string
	checks  []string
}

func newFakeStore(webRoot string) *fakeStore {
	return &fakeStore{
		webRoot:     webRoot,
		folders:     map[string]bool{},
		files:       map[string][]byte{},
		listErr:     map[string]error{},
		downloadErr: map[string]error{},
	}
}

// addFile stores content at p and creates every ancestor folder.
func (s *fakeStore) addFile(p, content string) {
	s.files[p] = []byte(content)
	s.addFolder(parentPath(p))
}

func (s *fakeStore) addFolder(p string) {
	for p != serverSep && p != "" {
		s.folders[p] = true
		p = parentPath(p)
	}
}

func (s *fakeStore) WebRoot(context.Context) (string, error) {
	return s.webRoot, nil
}

func (s *fakeStore) ListFolder(_ context.Context, folderPath string) (*RemoteFolder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.listed = append(s.listed, folderPath)

	if err := s.listErr[folderPath]; err != nil {
		return nil, err
	}

	if !s.folders[folderPath] {
		return nil, fmt.Errorf("folder %s: %w", folderPath, ErrNotFound)
	}

	out := &RemoteFolder{Path: folderPath}

	for p, data := range s.files {
		if parentPath(p) == folderPath {
			out.Files = append(out.Files, RemoteFile{Name: baseName(p), Path: p, Size: int64(len(data))})
		}
	}

	for p := range s.folders {
		if parentPath(p) == folderPath {
			out.Folders = append(out.Folders, RemoteFolderRef{Name: baseName(p), Path: p})
		}
	}

	sort.Slice(out.Files, func(i, j int) bool { return out.Files[i].Name < out.Files[j].Name })
	sort.Slice(out.Folders, func(i, j int) bool { return out.Folders[i].Name < out.Folders[j].Name })

	return out, nil
}

func (s *fakeStore) Download(_ context.Context, filePath string, w io.Writer) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.downloadErr[filePath]; err != nil {
		return 0, err
	}

	data, ok := s.files[filePath]
	if !ok {
		return 0, fmt.Errorf("file %s: %w", filePath, ErrNotFound)
	}

	return io.Copy(w, bytes.NewReader(data))
}

func (s *fakeStore) MoveFile(_ context.Context, srcPath, dstPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.moves = append(s.moves, [2]string{srcPath, dstPath})

	if s.moveErr != nil {
		return s.moveErr
	}

	data, ok := s.files[srcPath]
	if !ok {
		return fmt.Errorf("file %s: %w", srcPath, ErrNotFound)
	}

	if !s.folders[parentPath(dstPath)] {
		return fmt.Errorf("destination folder %s: %w", parentPath(dstPath), ErrNotFound)
	}

	delete(s.files, srcPath)
	s.files[dstPath] = data

	return nil
}

func (s *fakeStore) DeleteFile(_ context.Context, filePath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.deletes = append(s.deletes, filePath)

	if s.deleteErr != nil {
		return s.deleteErr
	}

	delete(s.files, filePath)

	return nil
}

func (s *fakeStore) FolderExists(_ context.Context, folderPath string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.checks = append(s.checks, folderPath)

	if s.existsErr != nil {
		return false, s.existsErr
	}

	if s.folders[folderPath] {
		return true, nil
	}

	if s.notFoundIfGone {
		return false, fmt.Errorf("folder %s: %w", folderPath, ErrNotFound)
	}

	return false, nil
}

func (s *fakeStore) CreateFolder(_ context.Context, folderPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.creates = append(s.creates, folderPath)

	if s.createErr != nil {
		return s.createErr
	}

	s.addFolder(folderPath)

	return nil
}

// mutations returns how many remote mutations (moves plus deletes) were made.
func (s *fakeStore) mutations() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.moves) + len(s.deletes)
}

func baseName(p string) string {
	return p[strings.LastIndex(p, serverSep)+1:]
}

// corruptingFs flips the first byte of every write to a newly created file,
// simulating corruption on the local write path.
type corruptingFs struct {
	afero.Fs
}

func (c corruptingFs) OpenFile(name string, flag int, perm os.FileMode) (afero.File, error) {
	f, err := c.Fs.OpenFile(name, flag, perm)
	if err != nil || flag&os.O_CREATE == 0 {
		return f, err
	}

	return corruptingFile{File: f}, nil
}

type corruptingFile struct {
	afero.File
}

func (f corruptingFile) Write(p []byte) (int, error) {
	q := append([]byte(nil), p...)
	if len(q) > 0 {
		q[0] ^= 0xff
	}

	return f.File.Write(q)
}

// unreadableFs accepts writes but refuses to open files for reading.
type unreadableFs struct {
	afero.Fs
}

func (unreadableFs) Open(name string) (afero.File, error) {
	return nil, &os.PathError{Op: "open", Path: name, Err: os.ErrPermission}
}
