package sharepoint

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

// memCache is an in-memory TokenCache.
type memCache struct {
	mu    sync.Mutex
	tok   *oauth2.Token
	saves int
}

func (m *memCache) Load() (*oauth2.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.tok, nil
}

func (m *memCache) Save(tok *oauth2.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tok = tok
	m.saves++

	return nil
}

func secretCreds() Credentials {
	return Credentials{
		Mode:         AuthClientSecret,
		TenantID:     "contoso.onmicrosoft.com",
		ClientID:     "client-1",
		ClientSecret: "s3cret",
		Resource:     "https://contoso.sharepoint.com/",
	}
}

// tokenServer is a fake Azure AD token endpoint.
func tokenServer(t *testing.T, check func(r *http.Request)) (*httptest.Server, *atomic.Int32) {
	t.Helper()

	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		require.NoError(t, r.ParseForm())

		if check != nil {
			check(r)
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"app-token","token_type":"Bearer","expires_in":3600}`))
	}))
	t.Cleanup(srv.Close)

	return srv, &calls
}

func TestCredentials_Validate(t *testing.T) {
	assert.NoError(t, secretCreds().Validate())

	noSecret := secretCreds()
	noSecret.ClientSecret = ""
	assert.ErrorIs(t, noSecret.Validate(), ErrInvalidCredentials)

	cert := secretCreds()
	cert.Mode = AuthCertificate
	err := cert.Validate()
	require.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Contains(t, err.Error(), "pfx path")

	bad := Credentials{Mode: "password"}
	err = bad.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tenant id")
	assert.Contains(t, err.Error(), "client id")
	assert.Contains(t, err.Error(), `unknown auth mode "password"`)
}

func TestCredentials_Identity(t *testing.T) {
	id := secretCreds().Identity()
	assert.Equal(t, "https://contoso.sharepoint.com", id["resource"])
	assert.Equal(t, "client-1", id["client"])
	assert.NotContains(t, id, "secret")
}

func TestTokenSource_ClientSecret(t *testing.T) {
	srv, calls := tokenServer(t, func(r *http.Request) {
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "https://contoso.sharepoint.com/.default", r.PostForm.Get("scope"))
	})

	cache := &memCache{}

	ts, err := newTokenSource(context.Background(), secretCreds(), srv.URL, cache, slog.Default())
	require.NoError(t, err)

	for range 3 {
		tok, err := ts.Token()
		require.NoError(t, err)
		assert.Equal(t, "app-token", tok)
	}

	assert.Equal(t, int32(1), calls.Load(), "valid token is reused")
	assert.Equal(t, 1, cache.saves)
	assert.Equal(t, "app-token", cache.tok.AccessToken)
}

func TestTokenSource_UsesCachedToken(t *testing.T) {
	srv, calls := tokenServer(t, nil)

	cache := &memCache{tok: &oauth2.Token{AccessToken: "cached", Expiry: time.Now().Add(time.Hour)}}

	ts, err := newTokenSource(context.Background(), secretCreds(), srv.URL, cache, slog.Default())
	require.NoError(t, err)

	tok, err := ts.Token()
	require.NoError(t, err)
	assert.Equal(t, "cached", tok)
	assert.Zero(t, calls.Load())
}

func TestTokenSource_EndpointError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"AADSTS7000215"}`))
	}))
	defer srv.Close()

	ts, err := newTokenSource(context.Background(), secretCreds(), srv.URL, nil, nil)
	require.NoError(t, err)

	_, err = ts.Token()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "obtaining token")
}

func TestTokenSource_InvalidCredentials(t *testing.T) {
	creds := secretCreds()
	creds.ClientID = ""

	_, err := NewTokenSource(context.Background(), creds, nil, nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestTokenSource_MissingPFX(t *testing.T) {
	creds := secretCreds()
	creds.Mode = AuthCertificate
	creds.PFXPath = filepath.Join(t.TempDir(), "missing.pfx")

	_, err := newTokenSource(context.Background(), creds, "http://localhost", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestParseCertificate_Garbage(t *testing.T) {
	_, err := parseCertificate([]byte("not a pfx"), "pw")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func testCertificate(t *testing.T) (*rsa.PrivateKey, *x509.Certificate) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "spmirror-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return key, cert
}

func TestNewCertSigner_RejectsNonRSA(t *testing.T) {
	_, cert := testCertificate(t)

	ecKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, err = newCertSigner(ecKey, cert)
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestAssertionSource(t *testing.T) {
	key, cert := testCertificate(t)

	signer, err := newCertSigner(key, cert)
	require.NoError(t, err)

	var assertions []string

	srv, calls := tokenServer(t, func(r *http.Request) {
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Empty(t, r.PostForm.Get("client_secret"))
		assert.Equal(t, clientAssertionType, r.PostForm.Get("client_assertion_type"))
		assertions = append(assertions, r.PostForm.Get("client_assertion"))
	})

	src := &assertionSource{
		ctx:      context.Background(),
		clientID: "client-1",
		tokenURL: srv.URL,
		scopes:   []string{"https://contoso.sharepoint.com/.default"},
		signer:   signer,
	}

	for range 2 {
		tok, err := src.Token()
		require.NoError(t, err)
		assert.Equal(t, "app-token", tok.AccessToken)
	}

	require.Equal(t, int32(2), calls.Load())
	require.Len(t, assertions, 2)

	var ids []string

	for _, raw := range assertions {
		claims := &jwt.RegisteredClaims{}
		parsed, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
			if tok.Method != jwt.SigningMethodRS256 {
				return nil, errors.New("unexpected signing method")
			}

			return &key.PublicKey, nil
		})
		require.NoError(t, err)
		require.True(t, parsed.Valid)

		assert.Equal(t, signer.thumbprint, parsed.Header["x5t"])
		assert.Equal(t, "client-1", claims.Issuer)
		assert.Equal(t, "client-1", claims.Subject)
		assert.Equal(t, jwt.ClaimStrings{srv.URL}, claims.Audience)
		ids = append(ids, claims.ID)
	}

	assert.NotEqual(t, ids[0], ids[1], "each assertion carries a fresh jti")
}
