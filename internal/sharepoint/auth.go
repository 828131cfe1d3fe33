package sharepoint

import (
	"context"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // x5t is defined as the SHA-1 thumbprint
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/pkcs12"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// Auth modes accepted in Credentials.Mode.
const (
	AuthClientSecret = "client_secret"
	AuthCertificate  = "certificate"
)

// clientAssertionType is the OAuth2 assertion type for certificate auth.
const clientAssertionType = "urn:ietf:params:oauth:client-assertion-type:jwt-bearer"

// assertionLifetime bounds how long a signed client assertion is valid.
const assertionLifetime = 10 * time.Minute

// ErrInvalidCredentials is returned when credentials are incomplete or the
// certificate cannot be loaded. It is never retried.
var ErrInvalidCredentials = errors.New("sharepoint: invalid credentials")

// TokenCache persists tokens between process runs. tokenfile.Cache
// satisfies it.
type TokenCache interface {
	Load() (*oauth2.Token, error)
	Save(tok *oauth2.Token) error
}

// Credentials describe an app-only Azure AD identity.
type Credentials struct {
	Mode         string
	TenantID     string
	ClientID     string
	ClientSecret string
	PFXPath      string
	PFXPassword  string
	// Resource is the SharePoint origin, e.g. "https://contoso.sharepoint.com".
	// The token is requested for Resource + "/.default".
	Resource string
}

// Identity returns the values a cached token is pinned to.
func (c Credentials) Identity() map[string]string {
	return map[string]string{
		"mode":     c.Mode,
		"tenant":   c.TenantID,
		"client":   c.ClientID,
		"resource": strings.TrimSuffix(c.Resource, "/"),
	}
}

// Validate reports missing fields for the selected mode.
func (c Credentials) Validate() error {
	var errs []error

	if c.TenantID == "" {
		errs = append(errs, errors.New("tenant id is required"))
	}

	if c.ClientID == "" {
		errs = append(errs, errors.New("client id is required"))
	}

	if c.Resource == "" {
		errs = append(errs, errors.New("resource is required"))
	}

	switch c.Mode {
	case AuthClientSecret:
		if c.ClientSecret == "" {
			errs = append(errs, errors.New("client secret is required for client_secret auth"))
		}
	case AuthCertificate:
		if c.PFXPath == "" {
			errs = append(errs, errors.New("pfx path is required for certificate auth"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown auth mode %q", c.Mode))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, errors.Join(errs...))
	}

	return nil
}

// NewTokenSource returns a TokenSource for creds against the Azure AD token
// endpoint of creds.TenantID. cache may be nil.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source;
// ctx must outlive it.
func NewTokenSource(
	ctx context.Context, creds Credentials, cache TokenCache, logger *slog.Logger,
) (TokenSource, error) {
	return newTokenSource(ctx, creds, microsoft.AzureADEndpoint(creds.TenantID).TokenURL, cache, logger)
}

// newTokenSource takes the token URL so tests can point at httptest.
func newTokenSource(
	ctx context.Context, creds Credentials, tokenURL string, cache TokenCache, logger *slog.Logger,
) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := creds.Validate(); err != nil {
		return nil, err
	}

	scopes := []string{strings.TrimSuffix(creds.Resource, "/") + "/.default"}

	var base oauth2.TokenSource

	switch creds.Mode {
	case AuthClientSecret:
		cfg := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       scopes,
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		base = &fetchSource{ctx: ctx, fetch: cfg.Token}
	case AuthCertificate:
		signer, err := loadCertificate(creds.PFXPath, creds.PFXPassword)
		if err != nil {
			return nil, err
		}

		base = &assertionSource{
			ctx:      ctx,
			clientID: creds.ClientID,
			tokenURL: tokenURL,
			scopes:   scopes,
			signer:   signer,
		}
	}

	var seed *oauth2.Token

	if cache != nil {
		tok, err := cache.Load()
		if err != nil {
			logger.Warn("ignoring unreadable token cache", slog.String("error", err.Error()))
		} else if tok != nil {
			logger.Debug("using cached token", slog.Time("expiry", tok.Expiry))
			seed = tok
		}

		base = &persistingSource{src: base, cache: cache, logger: logger}
	}

	return &tokenBridge{src: oauth2.ReuseTokenSource(seed, base), logger: logger}, nil
}

// fetchSource calls fetch with a bound context on every Token call.
type fetchSource struct {
	ctx   context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	fetch func(context.Context) (*oauth2.Token, error)
}

func (s *fetchSource) Token() (*oauth2.Token, error) {
	return s.fetch(s.ctx)
}

// certSigner holds the parsed PFX contents.
type certSigner struct {
	key        *rsa.PrivateKey
	thumbprint string // base64url SHA-1 of the certificate DER
}

func loadCertificate(path, password string) (*certSigner, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading certificate %s: %w", ErrInvalidCredentials, path, err)
	}

	return parseCertificate(data, password)
}

func parseCertificate(pfx []byte, password string) (*certSigner, error) {
	key, cert, err := pkcs12.Decode(pfx, password)
	if err != nil {
		return nil, fmt.Errorf("%w: decoding pfx: %w", ErrInvalidCredentials, err)
	}

	return newCertSigner(key, cert)
}

func newCertSigner(key any, cert *x509.Certificate) (*certSigner, error) {
	rsaKey, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: certificate key is %T, want RSA", ErrInvalidCredentials, key)
	}

	sum := sha1.Sum(cert.Raw) //nolint:gosec // thumbprint, not a security boundary

	return &certSigner{
		key:        rsaKey,
		thumbprint: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// assertion returns a signed client assertion for tokenURL.
func (s *certSigner) assertion(clientID, tokenURL string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Audience:  jwt.ClaimStrings{tokenURL},
		Issuer:    clientID,
		Subject:   clientID,
		ID:        uuid.NewString(),
		NotBefore: jwt.NewNumericDate(now),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(assertionLifetime)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["x5t"] = s.thumbprint

	signed, err := tok.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("signing client assertion: %w", err)
	}

	return signed, nil
}

// assertionSource mints a fresh client assertion for each token request.
type assertionSource struct {
	ctx      context.Context //nolint:containedctx // oauth2.TokenSource has no ctx parameter
	clientID string
	tokenURL string
	scopes   []string
	signer   *certSigner
}

func (s *assertionSource) Token() (*oauth2.Token, error) {
	assertion, err := s.signer.assertion(s.clientID, s.tokenURL, time.Now())
	if err != nil {
		return nil, err
	}

	cfg := &clientcredentials.Config{
		ClientID:  s.clientID,
		TokenURL:  s.tokenURL,
		Scopes:    s.scopes,
		AuthStyle: oauth2.AuthStyleInParams,
		EndpointParams: url.Values{
			"client_assertion_type": {clientAssertionType},
			"client_assertion":      {assertion},
		},
	}

	return cfg.Token(s.ctx)
}

// persistingSource saves every freshly fetched token to the cache.
type persistingSource struct {
	mu     sync.Mutex
	src    oauth2.TokenSource
	cache  TokenCache
	logger *slog.Logger
}

func (p *persistingSource) Token() (*oauth2.Token, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	tok, err := p.src.Token()
	if err != nil {
		return nil, err
	}

	if saveErr := p.cache.Save(tok); saveErr != nil {
		p.logger.Warn("failed to persist token", slog.String("error", saveErr.Error()))
	} else {
		p.logger.Debug("persisted new token", slog.Time("expiry", tok.Expiry))
	}

	return tok, nil
}

// tokenBridge adapts oauth2.TokenSource to sharepoint.TokenSource.
type tokenBridge struct {
	src    oauth2.TokenSource
	logger *slog.Logger
}

func (b *tokenBridge) Token() (string, error) {
	t, err := b.src.Token()
	if err != nil {
		b.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("sharepoint: obtaining token: %w", err)
	}

	b.logger.Debug("token acquired",
		slog.Time("expiry", t.Expiry),
		slog.Bool("valid", t.Valid()),
	)

	return t.AccessToken, nil
}
