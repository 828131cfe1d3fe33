package sharepoint

import (
	"bytes"
	"fmt"
	"log/slog"
	"strconv"
	"time"
)

// Web is the identity of a SharePoint site.
type Web struct {
	Title             string
	URL               string
	ServerRelativeURL string // e.g. "/sites/Team", "/" for the root site
}

// File is a file inside a document library folder.
type File struct {
	Name              string
	ServerRelativeURL string
	Length            int64
	TimeLastModified  time.Time
	UniqueID          string
}

// FolderRef is a direct subfolder returned by a listing.
type FolderRef struct {
	Name              string
	ServerRelativeURL string
	ItemCount         int
}

// Folder is a folder with its direct files and subfolders, in server order.
type Folder struct {
	Name              string
	ServerRelativeURL string
	Files             []File
	Folders           []FolderRef
}

// flexInt64 decodes an Int64 that SharePoint may send either as a JSON number
// or, for Edm.Int64 fields like File.Length, as a string.
type flexInt64 int64

func (f *flexInt64) UnmarshalJSON(data []byte) error {
	data = bytes.Trim(data, `"`)
	if len(data) == 0 || string(data) == "null" {
		*f = 0
		return nil
	}

	n, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return fmt.Errorf("sharepoint: decoding int64 %q: %w", data, err)
	}

	*f = flexInt64(n)

	return nil
}

// Wire shapes for odata=nometadata responses. Unexported; callers get the
// normalized types above.

type webResponse struct {
	Title             string `json:"Title"`
	URL               string `json:"Url"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
}

type fileResponse struct {
	Name              string    `json:"Name"`
	ServerRelativeURL string    `json:"ServerRelativeUrl"`
	Length            flexInt64 `json:"Length"`
	TimeLastModified  string    `json:"TimeLastModified"`
	UniqueID          string    `json:"UniqueId"`
}

type folderRefResponse struct {
	Name              string `json:"Name"`
	ServerRelativeURL string `json:"ServerRelativeUrl"`
	ItemCount         int    `json:"ItemCount"`
}

type folderResponse struct {
	Name              string              `json:"Name"`
	ServerRelativeURL string              `json:"ServerRelativeUrl"`
	Files             []fileResponse      `json:"Files"`
	Folders           []folderRefResponse `json:"Folders"`
}

type boolValueResponse struct {
	Value bool `json:"value"`
}

func (w *webResponse) toWeb() *Web {
	return &Web{Title: w.Title, URL: w.URL, ServerRelativeURL: w.ServerRelativeURL}
}

func (f *folderResponse) toFolder(logger *slog.Logger) *Folder {
	out := &Folder{
		Name:              f.Name,
		ServerRelativeURL: f.ServerRelativeURL,
		Files:             make([]File, 0, len(f.Files)),
		Folders:           make([]FolderRef, 0, len(f.Folders)),
	}

	for i := range f.Files {
		fr := &f.Files[i]
		out.Files = append(out.Files, File{
			Name:              fr.Name,
			ServerRelativeURL: fr.ServerRelativeURL,
			Length:            int64(fr.Length),
			TimeLastModified:  parseTimestamp(fr.TimeLastModified, fr.ServerRelativeURL, logger),
			UniqueID:          fr.UniqueID,
		})
	}

	for i := range f.Folders {
		sub := &f.Folders[i]
		out.Folders = append(out.Folders, FolderRef{
			Name:              sub.Name,
			ServerRelativeURL: sub.ServerRelativeURL,
			ItemCount:         sub.ItemCount,
		})
	}

	return out
}

// parseTimestamp parses an RFC3339 timestamp. Missing or malformed values
// become the zero time; modification times are informational only.
func parseTimestamp(raw, path string, logger *slog.Logger) time.Time {
	if raw == "" {
		return time.Time{}
	}

	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		logger.Warn("invalid timestamp",
			slog.String("path", path),
			slog.String("raw", raw),
			slog.String("error", err.Error()),
		)

		return time.Time{}
	}

	return t
}
