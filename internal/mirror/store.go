package mirror

import (
	"context"
	"io"
)

// Store is the capability an authenticated session grants the engine. All
// paths are server-relative. Satisfied by *siteops.Session.
type Store interface {
	// WebRoot returns the server-relative path of the site, e.g. "/sites/team".
	WebRoot(ctx context.Context) (string, error)
	ListFolder(ctx context.Context, folderPath string) (*RemoteFolder, error)
	Download(ctx context.Context, filePath string, w io.Writer) (int64, error)
	// MoveFile moves a file, overwriting any file already at dstPath.
	MoveFile(ctx context.Context, srcPath, dstPath string) error
	DeleteFile(ctx context.Context, filePath string) error
	FolderExists(ctx context.Context, folderPath string) (bool, error)
	CreateFolder(ctx context.Context, folderPath string) error
}

// SessionProvider creates an authenticated Store for one run.
type SessionProvider interface {
	Session(ctx context.Context) (Store, error)
}

// FileProcessor handles a single file. Satisfied by *FileSync.
type FileProcessor interface {
	Process(ctx context.Context, file RemoteFile) Outcome
}

// Recorder receives run and per-file results. Satisfied by *journal.Journal.
// Recorder errors are logged and never fail a run.
type Recorder interface {
	BeginRun(ctx context.Context, report *RunReport) (string, error)
	RecordOutcome(ctx context.Context, runID string, o *Outcome) error
	FinishRun(ctx context.Context, runID string, report *RunReport, runErr error) error
}
