package sharepoint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
)

// folderSelect limits a folder listing to the fields the mirror uses.
const folderSelect = "$select=Name,ServerRelativeUrl," +
	"Files/Name,Files/ServerRelativeUrl,Files/Length,Files/TimeLastModified,Files/UniqueId," +
	"Folders/Name,Folders/ServerRelativeUrl,Folders/ItemCount" +
	"&$expand=Files,Folders"

// ListFolder returns the direct files and subfolders of the folder at the
// given server-relative path in a single round trip.
func (c *Client) ListFolder(ctx context.Context, folderPath string) (*Folder, error) {
	c.logger.Debug("listing folder", slog.String("path", folderPath))

	resp, err := c.Do(ctx, http.MethodGet, folderAPIPath(folderPath)+"?"+folderSelect, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var fr folderResponse
	if err := json.NewDecoder(resp.Body).Decode(&fr); err != nil {
		return nil, fmt.Errorf("sharepoint: decoding folder response: %w", err)
	}

	folder := fr.toFolder(c.logger)

	c.logger.Debug("listed folder",
		slog.String("path", folderPath),
		slog.Int("files", len(folder.Files)),
		slog.Int("folders", len(folder.Folders)),
	)

	return folder, nil
}

// FolderExists reports whether a folder exists at the given path. SharePoint
// answers either Exists=false or 404 for a missing folder depending on where
// the path breaks off; the 404 case is returned as an error wrapping
// ErrNotFound.
func (c *Client) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	resp, err := c.Do(ctx, http.MethodGet, folderAPIPath(folderPath)+"/Exists", nil)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	var v boolValueResponse
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return false, fmt.Errorf("sharepoint: decoding exists response: %w", err)
	}

	return v.Value, nil
}

// CreateFolder creates the folder at the given server-relative path. The
// parent must exist.
func (c *Client) CreateFolder(ctx context.Context, folderPath string) error {
	c.logger.Info("creating folder", slog.String("path", folderPath))

	resp, err := c.Do(ctx, http.MethodPost, "/web/folders/AddUsingPath(decodedurl="+odataPath(folderPath)+")", nil)
	if err != nil {
		return err
	}

	return drain(resp, "create folder")
}
