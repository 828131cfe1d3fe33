package mirror

import "errors"

// Error taxonomy. Per-file errors (ErrPath, ErrTransfer, ErrLocalIO) are
// carried in Outcome.Cause and never abort a run. ErrDisposition is logged
// only. ErrAuth and ErrListing fail the whole run and drive scheduler backoff.
var (
	ErrAuth        = errors.New("mirror: authentication failed")
	ErrListing     = errors.New("mirror: folder listing failed")
	ErrPath        = errors.New("mirror: path resolution failed")
	ErrInvalidPath = errors.New("mirror: invalid remote path")
	ErrTransfer    = errors.New("mirror: download failed")
	ErrLocalIO     = errors.New("mirror: local write failed")
	ErrDisposition = errors.New("mirror: disposition failed")

	// ErrNotFound is returned by a Store when the addressed item does not
	// exist. Stores must wrap their own not-found errors with it.
	ErrNotFound = errors.New("mirror: remote item not found")
)
