package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sethvargo/go-retry"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"
)

// GraphScope requests every application permission granted to the app
// registration for Microsoft Graph.
const GraphScope = "https://graph.microsoft.com/.default"

// DefaultRefreshMargin is how long before expiry a cached token is
// replaced.
const DefaultRefreshMargin = 5 * time.Minute

// Credentials identify an Entra ID app registration using the client
// credentials grant.
type Credentials struct {
	TenantID     string
	ClientID     string
	ClientSecret string
}

// AuthOptions tune an Authenticator. Zero values pick the defaults.
type AuthOptions struct {
	// TokenURL overrides the tenant's v2.0 token endpoint.
	TokenURL      string
	HTTPClient    *http.Client
	Retry         RetryPolicy
	RefreshMargin time.Duration
	Clock         clockwork.Clock
}

// Authenticator obtains app-only access tokens and caches them until they
// come within RefreshMargin of expiry. It implements TokenSource.
type Authenticator struct {
	cfg        clientcredentials.Config
	httpClient *http.Client
	retry      RetryPolicy
	margin     time.Duration
	clock      clockwork.Clock
	logger     *slog.Logger

	mu      sync.Mutex
	token   *oauth2.Token
	fetches int
}

// NewAuthenticator validates creds and builds an Authenticator. No network
// traffic happens until the first Token call.
func NewAuthenticator(creds Credentials, opts AuthOptions, logger *slog.Logger) (*Authenticator, error) {
	var missing []error
	if creds.TenantID == "" {
		missing = append(missing, errors.New("tenant ID is empty"))
	}

	if creds.ClientID == "" {
		missing = append(missing, errors.New("client ID is empty"))
	}

	if creds.ClientSecret == "" {
		missing = append(missing, errors.New("client secret is empty"))
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, errors.Join(missing...))
	}

	if logger == nil {
		logger = slog.Default()
	}

	tokenURL := opts.TokenURL
	if tokenURL == "" {
		tokenURL = microsoft.AzureADEndpoint(creds.TenantID).TokenURL
	}

	margin := opts.RefreshMargin
	if margin <= 0 {
		margin = DefaultRefreshMargin
	}

	clock := opts.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Authenticator{
		cfg: clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     tokenURL,
			Scopes:       []string{GraphScope},
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		httpClient: opts.HTTPClient,
		retry:      opts.Retry,
		margin:     margin,
		clock:      clock,
		logger:     logger,
	}, nil
}

// Token returns a cached access token, fetching a new one when none is
// cached or the cached one is about to expire.
func (a *Authenticator) Token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.token != nil && !a.expiringSoon(a.token) {
		return a.token.AccessToken, nil
	}

	if a.token != nil {
		a.logger.Debug("access token near expiry, refreshing",
			slog.Time("expiry", a.token.Expiry),
		)
	}

	tok, err := a.fetch(ctx)
	if err != nil {
		return "", err
	}

	a.token = tok

	return tok.AccessToken, nil
}

// Fetches reports how many tokens have been requested from the identity
// endpoint.
func (a *Authenticator) Fetches() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.fetches
}

func (a *Authenticator) expiringSoon(tok *oauth2.Token) bool {
	if tok.Expiry.IsZero() {
		return false
	}

	return !a.clock.Now().Add(a.margin).Before(tok.Expiry)
}

func (a *Authenticator) fetch(ctx context.Context) (*oauth2.Token, error) {
	if a.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, a.httpClient)
	}

	var tok *oauth2.Token

	err := retry.Do(ctx, a.retry.Backoff(), func(ctx context.Context) error {
		a.fetches++

		t, err := a.cfg.Token(ctx)
		if err != nil {
			if ctx.Err() == nil && transientTokenError(err) {
				a.logger.Warn("token request failed, retrying",
					slog.String("error", err.Error()),
				)

				return retry.RetryableError(err)
			}

			return err
		}

		tok = t

		return nil
	})
	if err != nil {
		a.logger.Error("token acquisition failed",
			slog.String("token_url", a.cfg.TokenURL),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("%w: %w", ErrAuthFailed, err)
	}

	a.logger.Info("access token acquired",
		slog.Time("expiry", tok.Expiry),
	)

	return tok, nil
}

// transientTokenError treats unreachable endpoints, 429 and 5xx as worth a
// retry. Any other rejection (bad secret, unknown tenant) is final.
func transientTokenError(err error) bool {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return true
	}

	if re.Response == nil {
		return true
	}

	code := re.Response.StatusCode

	return code == http.StatusTooManyRequests || code >= http.StatusInternalServerError
}
