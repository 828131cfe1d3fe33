package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// FileSync mirrors a single remote file: resolve, download, persist, verify,
// dispose. It never retries and never returns an error; every result,
// including failure, is an Outcome.
type FileSync struct {
	cfg     *SyncConfig
	store   Store
	webRoot string
	fs      afero.Fs
	checker *IntegrityChecker
	logger  *slog.Logger
}

// NewFileSync creates a FileSync bound to one run's config snapshot and
// store session.
func NewFileSync(cfg *SyncConfig, store Store, webRoot string, fs afero.Fs, logger *slog.Logger) *FileSync {
	return &FileSync{
		cfg:     cfg,
		store:   store,
		webRoot: webRoot,
		fs:      fs,
		checker: NewIntegrityChecker(fs),
		logger:  logger,
	}
}

// Process handles one file. Once started it runs to completion even if ctx
// is canceled: a half-finished file would leave the mirror and the remote
// disposition out of step.
func (f *FileSync) Process(ctx context.Context, file RemoteFile) Outcome {
	start := time.Now()

	out := f.process(context.WithoutCancel(ctx), file)
	out.Duration = time.Since(start)

	attrs := []any{
		slog.String("path", file.Path),
		slog.String("outcome", out.Kind.String()),
		slog.Int64("bytes", out.Bytes),
		slog.Duration("duration", out.Duration),
	}

	if out.Disposition != DispositionNone {
		attrs = append(attrs, slog.String("disposition", out.Disposition.String()))
	}

	switch out.Kind {
	case Failed:
		f.logger.Error("file failed", append(attrs, slog.String("error", out.Cause.Error()))...)
	case SucceededWithMismatch:
		f.logger.Warn("file mirrored with digest mismatch", attrs...)
	case Succeeded:
		f.logger.Info("file mirrored", attrs...)
	}

	return out
}

func (f *FileSync) process(ctx context.Context, file RemoteFile) Outcome {
	out := Outcome{File: file, Kind: Succeeded}

	localPath, err := LocalPath(file.Path, f.webRoot, f.cfg.LibraryRoot, f.cfg.LocalRoot)
	if err != nil {
		f.fail(ctx, &out, fmt.Errorf("%w: %w", ErrPath, err))
		return out
	}

	out.LocalPath = localPath

	var buf bytes.Buffer

	n, err := f.store.Download(ctx, file.Path, &buf)
	if err != nil {
		f.fail(ctx, &out, fmt.Errorf("%w: %s: %w", ErrTransfer, file.Path, err))
		return out
	}

	data := buf.Bytes()
	out.Bytes = n
	out.Digest = Digest(data)

	if err := f.writeAtomic(localPath, data); err != nil {
		f.fail(ctx, &out, fmt.Errorf("%w: %w", ErrLocalIO, err))
		return out
	}

	if f.cfg.VerifyHash {
		ok, verr := f.checker.Verify(data, localPath)
		if verr != nil {
			f.fail(ctx, &out, fmt.Errorf("%w: %w", ErrLocalIO, verr))
			return out
		}

		if !ok {
			out.Kind = SucceededWithMismatch
		}
	}

	f.dispose(ctx, &out)

	return out
}

// fail marks the outcome failed and, in move mode with an error folder,
// makes one best-effort attempt to relocate the original remote file there.
func (f *FileSync) fail(ctx context.Context, out *Outcome, cause error) {
	out.Kind = Failed
	out.Cause = cause

	if f.cfg.Action == ActionMove && f.cfg.ErrorFolder != "" {
		f.moveTo(ctx, out, f.cfg.ErrorFolder, DispositionMoveError)
	}
}

// dispose applies the configured post-processing action. At most one remote
// mutation is attempted.
func (f *FileSync) dispose(ctx context.Context, out *Outcome) {
	switch f.cfg.Action {
	case ActionNone:
		return
	case ActionMove:
		if out.Kind == Succeeded {
			f.moveTo(ctx, out, f.cfg.DoneFolder, DispositionMoveDone)
		} else if f.cfg.ErrorFolder != "" {
			f.moveTo(ctx, out, f.cfg.ErrorFolder, DispositionMoveError)
		}
	case ActionDelete:
		if out.Kind == Succeeded {
			f.delete(ctx, out)
		} else if f.cfg.ErrorFolder != "" {
			f.moveTo(ctx, out, f.cfg.ErrorFolder, DispositionMoveError)
		}
	}
}

func (f *FileSync) moveTo(ctx context.Context, out *Outcome, folder string, kind Disposition) {
	out.Disposition = kind

	target, err := DispositionTargetPath(out.File.Path, f.webRoot, f.cfg.LibraryRoot, folder)
	if err != nil {
		f.dispositionFailed(out, err)
		return
	}

	out.DispositionTo = target

	if err := f.ensureFolder(ctx, parentPath(target)); err != nil {
		f.dispositionFailed(out, err)
		return
	}

	if err := f.store.MoveFile(ctx, out.File.Path, target); err != nil {
		f.dispositionFailed(out, fmt.Errorf("moving %s to %s: %w", out.File.Path, target, err))
		return
	}

	f.logger.Debug("moved remote file",
		slog.String("from", out.File.Path),
		slog.String("to", target),
	)
}

func (f *FileSync) delete(ctx context.Context, out *Outcome) {
	out.Disposition = DispositionDelete

	if err := f.store.DeleteFile(ctx, out.File.Path); err != nil {
		f.dispositionFailed(out, fmt.Errorf("deleting %s: %w", out.File.Path, err))
		return
	}

	f.logger.Debug("deleted remote file", slog.String("path", out.File.Path))
}

// ensureFolder creates folderPath unless it already exists. A not-found
// answer from the existence check means "create it", not an error.
func (f *FileSync) ensureFolder(ctx context.Context, folderPath string) error {
	exists, err := f.store.FolderExists(ctx, folderPath)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("checking folder %s: %w", folderPath, err)
	}

	if exists {
		return nil
	}

	if err := f.store.CreateFolder(ctx, folderPath); err != nil {
		return fmt.Errorf("creating folder %s: %w", folderPath, err)
	}

	return nil
}

func (f *FileSync) dispositionFailed(out *Outcome, err error) {
	out.DispositionErr = fmt.Errorf("%w: %w", ErrDisposition, err)

	f.logger.Warn("disposition failed",
		slog.String("path", out.File.Path),
		slog.String("disposition", out.Disposition.String()),
		slog.String("error", err.Error()),
	)
}

// writeAtomic writes data next to path under a temporary name and renames it
// into place, replacing any existing file. Readers never see a partial file.
func (f *FileSync) writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)

	if err := f.fs.MkdirAll(dir, f.cfg.dirPerms()); err != nil {
		return fmt.Errorf("creating directory %s: %w", dir, err)
	}

	tmp, err := afero.TempFile(f.fs, dir, "."+filepath.Base(path)+".*.partial")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}

	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		f.removeTemp(tmpPath)

		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		f.removeTemp(tmpPath)

		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}

	if err := tmp.Close(); err != nil {
		f.removeTemp(tmpPath)
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}

	if err := f.fs.Chmod(tmpPath, f.cfg.filePerms()); err != nil {
		f.removeTemp(tmpPath)
		return fmt.Errorf("setting permissions on %s: %w", tmpPath, err)
	}

	if err := f.fs.Rename(tmpPath, path); err != nil {
		f.removeTemp(tmpPath)
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, path, err)
	}

	return nil
}

func (f *FileSync) removeTemp(path string) {
	if err := f.fs.Remove(path); err != nil {
		f.logger.Warn("failed to remove temp file",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}
}
