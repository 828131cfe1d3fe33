package siteops

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tonimelisma/sharepoint-mirror/internal/config"
	"github.com/tonimelisma/sharepoint-mirror/internal/mirror"
	"github.com/tonimelisma/sharepoint-mirror/internal/sharepoint"
)

// stubTokenSource implements sharepoint.TokenSource for tests.
type stubTokenSource struct {
	err error
}

func (s *stubTokenSource) Token() (string, error) {
	if s.err != nil {
		return "", s.err
	}

	return "test-token", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func testConfig(siteURL string) *config.Config {
	cfg := config.DefaultConfig()
	cfg.Site.URL = siteURL
	cfg.Auth.TenantID = "contoso.onmicrosoft.com"
	cfg.Auth.ClientID = "client-1"
	cfg.Auth.Mode = config.AuthModeClientSecret
	cfg.Auth.ClientSecret = "s1"
	cfg.Tracking.LocalRoot = "/srv/mirror"

	return cfg
}

// newTestProvider returns a provider whose token sources are stubs and whose
// HTTP clients are plain default clients. calls counts TokenSourceFn calls.
func newTestProvider(t *testing.T, cfg *config.Config, tokenErr error) (*SessionProvider, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	p := NewSessionProvider(config.NewHolder(cfg, "/etc/spmirror/config.toml"), afero.NewMemMapFs(), "test-agent", discardLogger())
	p.TokenSourceFn = func(
		_ context.Context, _ sharepoint.Credentials, _ sharepoint.TokenCache, _ *slog.Logger,
	) (sharepoint.TokenSource, error) {
		calls.Add(1)
		return &stubTokenSource{err: tokenErr}, nil
	}
	p.HTTPClientsFn = func(*config.NetworkConfig) (*http.Client, *http.Client) {
		return http.DefaultClient, http.DefaultClient
	}

	return p, &calls
}

func TestCredentials(t *testing.T) {
	creds, err := Credentials(testConfig("https://contoso.sharepoint.com/sites/Team"))
	require.NoError(t, err)

	assert.Equal(t, "https://contoso.sharepoint.com", creds.Resource)
	assert.Equal(t, "client_secret", creds.Mode)
	assert.Equal(t, "s1", creds.ClientSecret)

	_, err = Credentials(testConfig("not a url"))
	assert.Error(t, err)
}

func TestSessionProvider_CachesTokenSource(t *testing.T) {
	cfg := testConfig("https://contoso.sharepoint.com/sites/Team")
	p, calls := newTestProvider(t, cfg, nil)

	s1, err := p.Open(context.Background())
	require.NoError(t, err)
	s2, err := p.Open(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "https://contoso.sharepoint.com/sites/Team", s1.Meta.SiteURL())
	assert.NotSame(t, s1, s2)
}

func TestSessionProvider_NewSourceAfterSecretRotation(t *testing.T) {
	cfg := testConfig("https://contoso.sharepoint.com/sites/Team")
	p, calls := newTestProvider(t, cfg, nil)

	_, err := p.Open(context.Background())
	require.NoError(t, err)

	rotated := testConfig("https://contoso.sharepoint.com/sites/Team")
	rotated.Auth.ClientSecret = "s2"
	p.holder.Update(rotated)

	_, err = p.Open(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int32(2), calls.Load())
}

func TestSessionProvider_TokenSourceError(t *testing.T) {
	p, _ := newTestProvider(t, testConfig("https://contoso.sharepoint.com/sites/Team"), nil)
	p.TokenSourceFn = func(
		context.Context, sharepoint.Credentials, sharepoint.TokenCache, *slog.Logger,
	) (sharepoint.TokenSource, error) {
		return nil, sharepoint.ErrInvalidCredentials
	}

	_, err := p.Session(context.Background())
	assert.ErrorIs(t, err, sharepoint.ErrInvalidCredentials)
}

func TestSessionProvider_EagerTokenFailure(t *testing.T) {
	p, _ := newTestProvider(t, testConfig("https://contoso.sharepoint.com/sites/Team"), errors.New("AADSTS700016"))

	_, err := p.Open(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AADSTS700016")
}

func TestSessionProvider_PassesCache(t *testing.T) {
	cfg := testConfig("https://contoso.sharepoint.com/sites/Team")
	cfg.Auth.TokenCache = "/cache/token.json"

	p, _ := newTestProvider(t, cfg, nil)

	var gotCache sharepoint.TokenCache

	p.TokenSourceFn = func(
		_ context.Context, _ sharepoint.Credentials, cache sharepoint.TokenCache, _ *slog.Logger,
	) (sharepoint.TokenSource, error) {
		gotCache = cache
		return &stubTokenSource{}, nil
	}

	_, err := p.Open(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, gotCache)
}

func TestNewHTTPClients(t *testing.T) {
	meta, transfer := NewHTTPClients(3*time.Second, 45*time.Second)

	assert.Equal(t, 45*time.Second, meta.Timeout)
	assert.Zero(t, transfer.Timeout)
	assert.NotSame(t, meta.Transport, transfer.Transport)
}

// siteServer fakes the handful of REST endpoints a Session calls.
func siteServer(t *testing.T) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uri := r.RequestURI

		switch {
		case strings.HasPrefix(uri, "/sites/Team/_api/web?"):
			_, _ = w.Write([]byte(`{"Title":"Team","ServerRelativeUrl":"/sites/Team"}`))
		case strings.Contains(uri, "decodedurl='/sites/Team/Docs')?"):
			_, _ = w.Write([]byte(`{"Name":"Docs","ServerRelativeUrl":"/sites/Team/Docs",
				"Files":[{"Name":"a.txt","ServerRelativeUrl":"/sites/Team/Docs/a.txt","Length":"3"}],
				"Folders":[{"Name":"Sub","ServerRelativeUrl":"/sites/Team/Docs/Sub"}]}`))
		case strings.Contains(uri, "/$value"):
			_, _ = w.Write([]byte("abc"))
		case strings.Contains(uri, "AddUsingPath"):
			w.WriteHeader(http.StatusConflict)
		case strings.HasSuffix(uri, "/Exists"):
			_, _ = w.Write([]byte(`{"value":false}`))
		case strings.Contains(uri, "/moveto("):
			w.WriteHeader(http.StatusUnauthorized)
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)

	return srv
}

func openTestSession(t *testing.T) *Session {
	t.Helper()

	srv := siteServer(t)
	p, _ := newTestProvider(t, testConfig(srv.URL+"/sites/Team"), nil)

	s, err := p.Open(context.Background())
	require.NoError(t, err)

	return s
}

func TestSession_Store(t *testing.T) {
	var _ mirror.Store = (*Session)(nil)

	s := openTestSession(t)
	ctx := context.Background()

	root, err := s.WebRoot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "/sites/Team", root)

	folder, err := s.ListFolder(ctx, "/sites/Team/Docs")
	require.NoError(t, err)
	assert.Equal(t, "/sites/Team/Docs", folder.Path)
	require.Len(t, folder.Files, 1)
	assert.Equal(t, mirror.RemoteFile{Name: "a.txt", Path: "/sites/Team/Docs/a.txt", Size: 3}, folder.Files[0])
	assert.Equal(t, []mirror.RemoteFolderRef{{Name: "Sub", Path: "/sites/Team/Docs/Sub"}}, folder.Folders)

	var buf bytes.Buffer
	n, err := s.Download(ctx, "/sites/Team/Docs/a.txt", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Equal(t, "abc", buf.String())

	exists, err := s.FolderExists(ctx, "/sites/Team/Docs/_done")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.CreateFolder(ctx, "/sites/Team/Docs/_done"), "409 means it already exists")
}

func TestSession_ErrorMapping(t *testing.T) {
	s := openTestSession(t)
	ctx := context.Background()

	_, err := s.ListFolder(ctx, "/sites/Team/Gone")
	assert.ErrorIs(t, err, mirror.ErrNotFound)
	assert.ErrorIs(t, err, sharepoint.ErrNotFound)

	err = s.DeleteFile(ctx, "/sites/Team/Docs/missing.txt")
	assert.ErrorIs(t, err, mirror.ErrNotFound)

	err = s.MoveFile(ctx, "/sites/Team/Docs/a.txt", "/sites/Team/Docs/_done/a.txt")
	assert.ErrorIs(t, err, mirror.ErrAuth)
}

func TestMapErr(t *testing.T) {
	assert.NoError(t, mapErr(nil))

	other := errors.New("boom")
	assert.Same(t, other, mapErr(other))
}
