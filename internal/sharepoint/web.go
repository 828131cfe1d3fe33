package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// odataPath renders a server-relative path as a quoted OData string literal
// suitable for decodedurl='...' and newurl='...' parameters. Single quotes
// are doubled per OData rules and each segment is percent-encoded so
// characters like #, % and ? survive the URL.
func odataPath(p string) string {
	p = strings.ReplaceAll(p, "'", "''")

	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}

	return "'" + strings.Join(segments, "/") + "'"
}

func folderAPIPath(folderPath string) string {
	return "/web/GetFolderByServerRelativePath(decodedurl=" + odataPath(folderPath) + ")"
}

func fileAPIPath(filePath string) string {
	return "/web/GetFileByServerRelativePath(decodedurl=" + odataPath(filePath) + ")"
}

// drain discards the rest of a response body and closes it so the
// connection can be reused.
func drain(resp *http.Response, what string) error {
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("sharepoint: draining %s response body: %w", what, err)
	}

	return nil
}

// Web returns the identity of the site the client targets.
func (c *Client) Web(ctx context.Context) (*Web, error) {
	c.logger.Debug("getting web", slog.String("site", c.siteURL))

	resp, err := c.Do(ctx, http.MethodGet, "/web?$select=Title,Url,ServerRelativeUrl", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var wr webResponse
	if err := json.NewDecoder(resp.Body).Decode(&wr); err != nil {
		return nil, fmt.Errorf("sharepoint: decoding web response: %w", err)
	}

	if wr.ServerRelativeURL == "" {
		return nil, fmt.Errorf("sharepoint: web response has no ServerRelativeUrl")
	}

	return wr.toWeb(), nil
}
