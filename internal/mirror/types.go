package mirror

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Action is the post-processing applied to a remote file after it has been
// mirrored.
type Action int

const (
	ActionNone Action = iota
	ActionMove
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionMove:
		return "move"
	case ActionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Action(%d)", int(a))
	}
}

// ParseAction parses the configuration spelling of an Action. Matching is
// case-insensitive so "Move" and "move" are equivalent.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "none", "":
		return ActionNone, nil
	case "move":
		return ActionMove, nil
	case "delete":
		return ActionDelete, nil
	default:
		return ActionNone, fmt.Errorf("mirror: unknown action %q (want none, move or delete)", s)
	}
}

// SyncConfig is the immutable per-run configuration of the engine. A fresh
// value is built for every run; no component mutates it.
type SyncConfig struct {
	LibraryRoot    string   // store-relative path of the library root, e.g. "Shared Documents/Inbox"
	LocalRoot      string   // absolute local directory that mirrors the library root
	FilePrefix     string   // only files whose name starts with this (case-insensitive) are processed
	IgnoreFolders  []string // folder names never descended into (case-insensitive)
	IgnorePatterns []string // gitignore-style patterns matched against library-relative folder paths
	VerifyHash     bool
	Action         Action
	DoneFolder     string
	ErrorFolder    string
	DirPerms       os.FileMode
	FilePerms      os.FileMode
}

// Permissions used when SyncConfig leaves them zero.
const (
	defaultDirPerms  os.FileMode = 0o755
	defaultFilePerms os.FileMode = 0o644
)

func (c *SyncConfig) dirPerms() os.FileMode {
	if c.DirPerms == 0 {
		return defaultDirPerms
	}

	return c.DirPerms
}

func (c *SyncConfig) filePerms() os.FileMode {
	if c.FilePerms == 0 {
		return defaultFilePerms
	}

	return c.FilePerms
}

// RemoteFile is a read-only snapshot of a file in the remote store.
type RemoteFile struct {
	Name       string
	Path       string // server-relative path, e.g. "/sites/team/Shared Documents/A/f.txt"
	Size       int64
	ModifiedAt time.Time
}

// RemoteFolderRef identifies a child folder returned by a listing.
type RemoteFolderRef struct {
	Name string
	Path string // server-relative path
}

// RemoteFolder is the result of listing one folder: its files and its direct
// subfolders, in the order the store returned them.
type RemoteFolder struct {
	Path    string
	Files   []RemoteFile
	Folders []RemoteFolderRef
}

// OutcomeKind classifies the result of processing one file.
type OutcomeKind int

const (
	Succeeded OutcomeKind = iota
	SucceededWithMismatch
	Failed
)

func (k OutcomeKind) String() string {
	switch k {
	case Succeeded:
		return "succeeded"
	case SucceededWithMismatch:
		return "mismatch"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Disposition records which remote mutation was attempted for a file.
type Disposition int

const (
	DispositionNone Disposition = iota
	DispositionMoveDone
	DispositionMoveError
	DispositionDelete
)

func (d Disposition) String() string {
	switch d {
	case DispositionNone:
		return "none"
	case DispositionMoveDone:
		return "move_done"
	case DispositionMoveError:
		return "move_error"
	case DispositionDelete:
		return "delete"
	default:
		return fmt.Sprintf("Disposition(%d)", int(d))
	}
}

// Outcome is what FileSync.Process reports for one file. Cause is set only
// for Failed. DispositionErr is set when the attempted disposition failed;
// it never changes Kind.
type Outcome struct {
	File           RemoteFile
	Kind           OutcomeKind
	Cause          error
	LocalPath      string
	Bytes          int64
	Digest         string // hex SHA-256 of the downloaded bytes; empty when nothing was downloaded
	Disposition    Disposition
	DispositionTo  string // server-relative target for moves
	DispositionErr error
	Duration       time.Duration
}

// RunReport summarizes one full run.
type RunReport struct {
	StartedAt           time.Time
	Duration            time.Duration
	Folders             int
	FoldersExcluded     int
	FilesSkipped        int // did not match the prefix
	Files               int // processed
	Succeeded           int
	Mismatched          int
	Failed              int
	Moved               int
	Deleted             int
	DispositionFailures int
	Bytes               int64
}

// add folds one outcome into the report counters.
func (r *RunReport) add(o *Outcome) {
	r.Files++
	r.Bytes += o.Bytes

	switch o.Kind {
	case Succeeded:
		r.Succeeded++
	case SucceededWithMismatch:
		r.Mismatched++
	case Failed:
		r.Failed++
	}

	if o.DispositionErr != nil {
		r.DispositionFailures++
		return
	}

	switch o.Disposition {
	case DispositionMoveDone, DispositionMoveError:
		r.Moved++
	case DispositionDelete:
		r.Deleted++
	case DispositionNone:
	}
}
