package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Walker performs the depth-first traversal of the library. It keeps pending
// folders on an explicit stack, so depth is bounded by memory rather than the
// goroutine stack, and checks for cancellation before every folder listing.
type Walker struct {
	cfg    *SyncConfig
	store  Store
	proc   FileProcessor
	filter *folderFilter
	logger *slog.Logger
}

// NewWalker creates a walker for one run.
func NewWalker(cfg *SyncConfig, store Store, proc FileProcessor, logger *slog.Logger) (*Walker, error) {
	if store == nil {
		return nil, errors.New("mirror: walker requires a store")
	}

	if proc == nil {
		return nil, errors.New("mirror: walker requires a file processor")
	}

	for _, name := range []string{cfg.DoneFolder, cfg.ErrorFolder} {
		if strings.Contains(name, serverSep) {
			return nil, fmt.Errorf("mirror: disposition folder %q must be a single name", name)
		}
	}

	return &Walker{
		cfg:    cfg,
		store:  store,
		proc:   proc,
		filter: newFolderFilter(cfg),
		logger: logger,
	}, nil
}

// Walk visits rootURL and every non-excluded folder below it, processing
// files whose names match the configured prefix. Per-file failures are
// reported through onOutcome and the report; only a failed folder listing or
// cancellation stops the walk. Cancellation is checked before every file and
// every folder, and a canceled walk always returns the context's error.
func (w *Walker) Walk(ctx context.Context, rootURL string, report *RunReport, onOutcome func(*Outcome)) error {
	stack := []string{rootURL}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		folder := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		listing, err := w.store.ListFolder(ctx, folder)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}

			return fmt.Errorf("%w: %s: %w", ErrListing, folder, err)
		}

		report.Folders++

		w.logger.Debug("listed folder",
			slog.String("folder", folder),
			slog.Int("files", len(listing.Files)),
			slog.Int("folders", len(listing.Folders)),
		)

		for i := range listing.Files {
			file := listing.Files[i]

			if !w.filter.matchesPrefix(file.Name) {
				report.FilesSkipped++
				continue
			}

			if err := ctx.Err(); err != nil {
				return err
			}

			out := w.proc.Process(ctx, file)
			report.add(&out)

			if onOutcome != nil {
				onOutcome(&out)
			}
		}

		// Push in reverse so folders are visited in listing order.
		for i := len(listing.Folders) - 1; i >= 0; i-- {
			sub := listing.Folders[i]

			if !w.filter.includeFolder(sub.Name, relativeTo(rootURL, sub.Path)) {
				report.FoldersExcluded++

				w.logger.Debug("skipping excluded folder", slog.String("folder", sub.Path))

				continue
			}

			stack = append(stack, sub.Path)
		}
	}

	return ctx.Err()
}

// relativeTo returns p relative to root when p lies below it (compared
// case-insensitively), or "" otherwise.
func relativeTo(root, p string) string {
	root = strings.TrimSuffix(root, serverSep)

	if len(p) <= len(root)+1 || p[len(root)] != '/' || !strings.EqualFold(p[:len(root)], root) {
		return ""
	}

	return p[len(root)+1:]
}
