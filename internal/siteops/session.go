package siteops

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	gosync "sync"

	"github.com/spf13/afero"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
	"github.com/tonimelisma/sharepoint-mirror/internal/sharepoint"
	"github.com/tonimelisma/sharepoint-mirror/internal/tokenfile"
)

// TokenSourceFunc creates a token source for a set of credentials.
type TokenSourceFunc func(
	ctx context.Context, creds sharepoint.Credentials, cache sharepoint.TokenCache, logger *slog.Logger,
) (sharepoint.TokenSource, error)

// Session holds the authenticated clients for the configured site. Meta
// (request timeout) serves metadata calls and Transfer (no timeout) serves
// downloads.
type Session struct {
	Meta     *sharepoint.Client
	Transfer *sharepoint.Client
	logger   *slog.Logger
}

// SessionProvider creates Sessions from the current config in a Holder and
// caches token sources by credential identity.
type SessionProvider struct {
	holder    *config.Holder
	fs        afero.Fs
	userAgent string
	logger    *slog.Logger

	// TokenSourceFn creates a TokenSource. Exported for test injection;
	// defaults to sharepoint.NewTokenSource.
	TokenSourceFn TokenSourceFunc

	// HTTPClientsFn builds the metadata and transfer HTTP clients. Exported
	// for test injection; defaults to NewHTTPClients.
	HTTPClientsFn func(cfg *config.NetworkConfig) (meta, transfer *http.Client)

	mu     gosync.Mutex
	tokens map[string]sharepoint.TokenSource // keyed by credentialKey
}

// NewSessionProvider creates a SessionProvider. fs holds the token cache
// file (when auth.token_cache is set). An empty userAgent falls back to
// network.user_agent and then to the client default.
func NewSessionProvider(holder *config.Holder, fs afero.Fs, userAgent string, logger *slog.Logger) *SessionProvider {
	if logger == nil {
		logger = slog.Default()
	}

	if fs == nil {
		fs = afero.NewOsFs()
	}

	return &SessionProvider{
		holder:        holder,
		fs:            fs,
		userAgent:     userAgent,
		logger:        logger,
		TokenSourceFn: sharepoint.NewTokenSource,
		HTTPClientsFn: func(n *config.NetworkConfig) (*http.Client, *http.Client) {
			return NewHTTPClients(n.ConnectTimeoutDuration(), n.DataTimeoutDuration())
		},
		tokens: make(map[string]sharepoint.TokenSource),
	}
}

// Session satisfies mirror.SessionProvider.
func (p *SessionProvider) Session(ctx context.Context) (mirror.Store, error) {
	return p.Open(ctx)
}

// Open authenticates against the configured site and returns a Session. A
// token is acquired eagerly so credential problems surface here rather than
// on the first listing.
func (p *SessionProvider) Open(ctx context.Context) (*Session, error) {
	cfg := p.holder.Config()

	creds, err := Credentials(cfg)
	if err != nil {
		return nil, err
	}

	ts, err := p.getOrCreateTokenSource(ctx, creds, cfg.Auth.TokenCache)
	if err != nil {
		return nil, err
	}

	if _, err := ts.Token(); err != nil {
		return nil, err
	}

	userAgent := p.userAgent
	if cfg.Network.UserAgent != "" {
		userAgent = cfg.Network.UserAgent
	}

	metaHTTP, transferHTTP := p.HTTPClientsFn(&cfg.Network)

	s := &Session{
		Meta:     sharepoint.NewClient(cfg.Site.URL, metaHTTP, ts, p.logger, userAgent),
		Transfer: sharepoint.NewClient(cfg.Site.URL, transferHTTP, ts, p.logger, userAgent),
		logger:   p.logger,
	}

	p.logger.Debug("session created", slog.String("site", s.Meta.SiteURL()))

	return s, nil
}

// Credentials derives the app-only credentials for cfg. The token resource is
// the site's origin.
func Credentials(cfg *config.Config) (sharepoint.Credentials, error) {
	u, err := url.Parse(cfg.Site.URL)
	if err != nil || u.Host == "" {
		return sharepoint.Credentials{}, fmt.Errorf("site url %q: cannot derive token resource", cfg.Site.URL)
	}

	return sharepoint.Credentials{
		Mode:         cfg.Auth.Mode,
		TenantID:     cfg.Auth.TenantID,
		ClientID:     cfg.Auth.ClientID,
		ClientSecret: cfg.Auth.ClientSecret,
		PFXPath:      cfg.Auth.PFXPath,
		PFXPassword:  cfg.Auth.PFXPassword,
		Resource:     u.Scheme + "://" + u.Host,
	}, nil
}

// credentialKey identifies a token source. Secrets are folded in as a hash
// so a rotated secret gets a fresh source after reload.
func credentialKey(creds sharepoint.Credentials, cachePath string) string {
	sum := sha256.Sum256([]byte(creds.ClientSecret + "\x00" + creds.PFXPassword))

	return strings.Join([]string{
		creds.Mode, creds.TenantID, creds.ClientID, creds.Resource, creds.PFXPath, cachePath,
		hex.EncodeToString(sum[:8]),
	}, "|")
}

// getOrCreateTokenSource returns the cached TokenSource for creds, creating
// one on a miss.
func (p *SessionProvider) getOrCreateTokenSource(
	ctx context.Context, creds sharepoint.Credentials, cachePath string,
) (sharepoint.TokenSource, error) {
	key := credentialKey(creds, cachePath)

	p.mu.Lock()
	defer p.mu.Unlock()

	if ts, ok := p.tokens[key]; ok {
		return ts, nil
	}

	var cache sharepoint.TokenCache
	if cachePath != "" {
		cache = tokenfile.New(p.fs, cachePath, creds.Identity())
	}

	// The source outlives the run that created it.
	ts, err := p.TokenSourceFn(context.WithoutCancel(ctx), creds, cache, p.logger)
	if err != nil {
		return nil, err
	}

	p.tokens[key] = ts

	return ts, nil
}

// WebRoot returns the site's server-relative URL.
func (s *Session) WebRoot(ctx context.Context) (string, error) {
	web, err := s.Meta.Web(ctx)
	if err != nil {
		return "", mapErr(err)
	}

	return web.ServerRelativeURL, nil
}

// Web returns the full site identity.
func (s *Session) Web(ctx context.Context) (*sharepoint.Web, error) {
	web, err := s.Meta.Web(ctx)
	if err != nil {
		return nil, mapErr(err)
	}

	return web, nil
}

// ListFolder lists one folder.
func (s *Session) ListFolder(ctx context.Context, folderPath string) (*mirror.RemoteFolder, error) {
	f, err := s.Meta.ListFolder(ctx, folderPath)
	if err != nil {
		return nil, mapErr(err)
	}

	out := &mirror.RemoteFolder{
		Path:    f.ServerRelativeURL,
		Files:   make([]mirror.RemoteFile, 0, len(f.Files)),
		Folders: make([]mirror.RemoteFolderRef, 0, len(f.Folders)),
	}

	if out.Path == "" {
		out.Path = folderPath
	}

	for i := range f.Files {
		file := &f.Files[i]
		out.Files = append(out.Files, mirror.RemoteFile{
			Name:       file.Name,
			Path:       file.ServerRelativeURL,
			Size:       file.Length,
			ModifiedAt: file.TimeLastModified,
		})
	}

	for i := range f.Folders {
		out.Folders = append(out.Folders, mirror.RemoteFolderRef{
			Name: f.Folders[i].Name,
			Path: f.Folders[i].ServerRelativeURL,
		})
	}

	return out, nil
}

// Download streams a file through the transfer client.
func (s *Session) Download(ctx context.Context, filePath string, w io.Writer) (int64, error) {
	n, err := s.Transfer.Download(ctx, filePath, w)
	if err != nil {
		return n, mapErr(err)
	}

	return n, nil
}

// MoveFile moves a file, replacing any file at dstPath.
func (s *Session) MoveFile(ctx context.Context, srcPath, dstPath string) error {
	return mapErr(s.Meta.MoveFile(ctx, srcPath, dstPath))
}

// DeleteFile deletes a file.
func (s *Session) DeleteFile(ctx context.Context, filePath string) error {
	return mapErr(s.Meta.DeleteFile(ctx, filePath))
}

// FolderExists reports whether a folder exists.
func (s *Session) FolderExists(ctx context.Context, folderPath string) (bool, error) {
	ok, err := s.Meta.FolderExists(ctx, folderPath)
	if err != nil {
		return false, mapErr(err)
	}

	return ok, nil
}

// CreateFolder creates a folder. A folder that already exists (created
// concurrently, or by an earlier attempt whose response was lost) is not an
// error.
func (s *Session) CreateFolder(ctx context.Context, folderPath string) error {
	err := s.Meta.CreateFolder(ctx, folderPath)
	if errors.Is(err, sharepoint.ErrConflict) {
		s.logger.Debug("folder already exists", slog.String("path", folderPath))
		return nil
	}

	return mapErr(err)
}

// mapErr attaches the engine's sentinels to SharePoint errors.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sharepoint.ErrNotFound):
		return fmt.Errorf("%w: %w", mirror.ErrNotFound, err)
	case errors.Is(err, sharepoint.ErrAuthentication), errors.Is(err, sharepoint.ErrUnauthorized):
		return fmt.Errorf("%w: %w", mirror.ErrAuth, err)
	default:
		return err
	}
}
