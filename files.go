package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
	"github.com/tonimelisma/sharepoint-mirror/internal/sharepoint"
	"github.com/tonimelisma/sharepoint-mirror/internal/siteops"
)

// remoteBrowser is the read-only subset of a site session used by ls.
type remoteBrowser interface {
	WebRoot(ctx context.Context) (string, error)
	ListFolder(ctx context.Context, folderPath string) (*mirror.RemoteFolder, error)
}

// webGetter is the subset of a site session used by whoami.
type webGetter interface {
	Web(ctx context.Context) (*sharepoint.Web, error)
}

func openSession(cmd *cobra.Command) (*siteops.Session, error) {
	cc := mustCLIContext(cmd.Context())
	provider := siteops.NewSessionProvider(cc.Holder, nil, "spmirror/"+version, cc.Logger)

	session, err := provider.Open(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("authenticating: %w", err)
	}

	return session, nil
}

func newLsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ls [path]",
		Short: "List a remote folder relative to the library root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := mustCLIContext(cmd.Context())

			session, err := openSession(cmd)
			if err != nil {
				return err
			}

			var rel string
			if len(args) > 0 {
				rel = args[0]
			}

			return runLs(cmd.Context(), session, cc.Cfg.Site.LibraryRoot, rel, cc.Flags.JSON, os.Stdout)
		},
	}
}

// lsEntry is one row of ls output.
type lsEntry struct {
	Name       string    `json:"name"`
	Path       string    `json:"path"`
	Folder     bool      `json:"folder"`
	Size       int64     `json:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitzero"`
}

func runLs(ctx context.Context, b remoteBrowser, libraryRoot, rel string, asJSON bool, w io.Writer) error {
	clean := path.Clean("/" + rel)
	if clean != "/"+strings.Trim(rel, "/") && rel != "" {
		return fmt.Errorf("invalid path %q: use a plain path below the library root", rel)
	}

	webRoot, err := b.WebRoot(ctx)
	if err != nil {
		return err
	}

	target := mirror.LibraryRootURL(webRoot, libraryRoot)
	if clean != "/" {
		target = strings.TrimSuffix(target, "/") + clean
	}

	folder, err := b.ListFolder(ctx, target)
	if err != nil {
		return fmt.Errorf("listing %s: %w", target, err)
	}

	entries := make([]lsEntry, 0, len(folder.Folders)+len(folder.Files))
	for _, f := range folder.Folders {
		entries = append(entries, lsEntry{Name: f.Name, Path: f.Path, Folder: true})
	}

	for _, f := range folder.Files {
		entries = append(entries, lsEntry{Name: f.Name, Path: f.Path, Size: f.Size, ModifiedAt: f.ModifiedAt})
	}

	// Folders first, then by name.
	slices.SortStableFunc(entries, func(a, b lsEntry) int {
		if a.Folder != b.Folder {
			if a.Folder {
				return -1
			}

			return 1
		}

		return strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name))
	})

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(entries); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	now := time.Now()
	rows := make([][]string, 0, len(entries))

	for i := range entries {
		e := &entries[i]
		if e.Folder {
			rows = append(rows, []string{e.Name + "/", "", ""})
			continue
		}

		rows = append(rows, []string{e.Name, formatSize(e.Size), formatTime(e.ModifiedAt, now)})
	}

	printTable(w, []string{"NAME", "SIZE", "MODIFIED"}, rows)

	return nil
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Authenticate and show the site identity",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			session, err := openSession(cmd)
			if err != nil {
				return err
			}

			return runWhoami(cmd.Context(), session, cc, os.Stdout)
		},
	}
}

type whoamiOutput struct {
	Title             string `json:"title"`
	URL               string `json:"url"`
	ServerRelativeURL string `json:"server_relative_url"`
	AuthMode          string `json:"auth_mode"`
	TenantID          string `json:"tenant_id"`
	ClientID          string `json:"client_id"`
}

func runWhoami(ctx context.Context, g webGetter, cc *CLIContext, w io.Writer) error {
	web, err := g.Web(ctx)
	if err != nil {
		return err
	}

	out := whoamiOutput{
		Title:             web.Title,
		URL:               web.URL,
		ServerRelativeURL: web.ServerRelativeURL,
		AuthMode:          cc.Cfg.Auth.Mode,
		TenantID:          cc.Cfg.Auth.TenantID,
		ClientID:          cc.Cfg.Auth.ClientID,
	}

	if cc.Flags.JSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		if err := enc.Encode(out); err != nil {
			return fmt.Errorf("encoding JSON output: %w", err)
		}

		return nil
	}

	fmt.Fprintf(w, "Site:      %s\n", out.Title)
	fmt.Fprintf(w, "URL:       %s\n", out.URL)
	fmt.Fprintf(w, "Web root:  %s\n", out.ServerRelativeURL)
	fmt.Fprintf(w, "Auth:      %s (client %s, tenant %s)\n", out.AuthMode, out.ClientID, out.TenantID)

	return nil
}
