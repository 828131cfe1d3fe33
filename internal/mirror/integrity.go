package mirror

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/spf13/afero"
)

// Digest returns the hex-encoded SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IntegrityChecker compares downloaded bytes against what actually landed on
// disk by hashing both sides.
type IntegrityChecker struct {
	fs afero.Fs
}

// NewIntegrityChecker returns a checker that reads back files through fs.
func NewIntegrityChecker(fs afero.Fs) *IntegrityChecker {
	return &IntegrityChecker{fs: fs}
}

// Verify reports whether the file at writtenPath has the same SHA-256 as
// data. A mismatch is reported as (false, nil); an error means the file could
// not be read back at all.
func (c *IntegrityChecker) Verify(data []byte, writtenPath string) (bool, error) {
	onDisk, err := c.fileDigest(writtenPath)
	if err != nil {
		return false, err
	}

	want := sha256.Sum256(data)

	return bytes.Equal(want[:], onDisk), nil
}

// fileDigest streams the file through SHA-256 so read-back uses constant
// memory regardless of file size.
func (c *IntegrityChecker) fileDigest(path string) ([]byte, error) {
	f, err := c.fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s for verification: %w", path, err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("hashing %s: %w", path, err)
	}

	return h.Sum(nil), nil
}
