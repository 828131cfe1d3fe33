package sharepoint

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// moveOverwrite is the MoveOperations flag that replaces an existing file at
// the destination.
const moveOverwrite = 1

// Download streams the content of the file at filePath to w and returns the
// number of bytes written. Only the request is retried; a failure while
// streaming is returned to the caller.
func (c *Client) Download(ctx context.Context, filePath string, w io.Writer) (int64, error) {
	c.logger.Debug("downloading file", slog.String("path", filePath))

	resp, err := c.Do(ctx, http.MethodGet, fileAPIPath(filePath)+"/$value", nil)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		c.logger.Error("streaming download content failed",
			slog.String("path", filePath),
			slog.Int64("bytes_before_error", n),
			slog.String("error", err.Error()),
		)

		return n, fmt.Errorf("sharepoint: streaming %s: %w", filePath, err)
	}

	c.logger.Debug("download complete",
		slog.String("path", filePath),
		slog.Int64("bytes", n),
	)

	return n, nil
}

// MoveFile moves a file to dstPath, replacing any file already there. The
// destination folder must exist.
func (c *Client) MoveFile(ctx context.Context, srcPath, dstPath string) error {
	c.logger.Info("moving file",
		slog.String("from", srcPath),
		slog.String("to", dstPath),
	)

	apiPath := fmt.Sprintf("%s/moveto(newurl=%s,flags=%d)", fileAPIPath(srcPath), odataPath(dstPath), moveOverwrite)

	resp, err := c.Do(ctx, http.MethodPost, apiPath, nil)
	if err != nil {
		return err
	}

	return drain(resp, "move")
}

// DeleteFile deletes the file at filePath regardless of its current ETag.
func (c *Client) DeleteFile(ctx context.Context, filePath string) error {
	c.logger.Info("deleting file", slog.String("path", filePath))

	resp, err := c.DoWithHeaders(ctx, http.MethodDelete, fileAPIPath(filePath), nil, http.Header{
		"If-Match": []string{"*"},
	})
	if err != nil {
		return err
	}

	return drain(resp, "delete")
}
