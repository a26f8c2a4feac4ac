package notifier

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/metrics"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// CredentialState is the lifecycle state of the cached access token.
type CredentialState string

const (
	CredentialNoToken CredentialState = "no_token"
	CredentialValid   CredentialState = "valid"
	CredentialExpired CredentialState = "expired"
)

// errNoCredentials is returned by Token when neither a static token nor
// refresh credentials are configured.
var errNoCredentials = errors.New("email API key missing and no refresh token available")

// CredentialConfig seeds a CredentialStore.
type CredentialConfig struct {
	// AccessToken is an optional static bearer token used until it expires or is rejected.
	AccessToken  string
	RefreshToken string
	ClientID     string
	ClientSecret string
	TokenURL     string
}

// CredentialStore caches the email provider's OAuth access token for the
// lifetime of the process. All access is serialized so that concurrent
// senders trigger at most one token exchange.
type CredentialStore struct {
	mu           sync.Mutex
	token        *oauth2.Token
	refreshToken string
	tokenURL     string
	oauthConfig  *oauth2.Config
	httpClient   *http.Client
	logger       *logger.Logger
}

// NewCredentialStore creates a store against Google's OAuth endpoint, with
// cfg.TokenURL replacing the token URL when set. Refresh is enabled only when
// the refresh token and both client credentials are present.
func NewCredentialStore(cfg CredentialConfig, httpClient *http.Client, logger *logger.Logger) *CredentialStore {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	endpoint := google.Endpoint
	endpoint.AuthStyle = oauth2.AuthStyleInParams
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}

	store := &CredentialStore{
		refreshToken: cfg.RefreshToken,
		tokenURL:     endpoint.TokenURL,
		httpClient:   httpClient,
		logger:       logger,
	}

	if cfg.AccessToken != "" {
		store.token = &oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"}
	}

	if cfg.RefreshToken != "" && cfg.ClientID != "" && cfg.ClientSecret != "" {
		store.oauthConfig = &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     endpoint,
		}
	}

	return store
}

// CanRefresh reports whether refresh credentials are configured.
func (s *CredentialStore) CanRefresh() bool {
	return s.oauthConfig != nil
}

// Validate checks the store can produce a token at all and that the token
// endpoint uses HTTPS.
func (s *CredentialStore) Validate() error {
	s.mu.Lock()
	hasToken := s.token != nil
	s.mu.Unlock()

	if !hasToken && !s.CanRefresh() {
		return apierrors.NewConfigError("EMAIL_API_KEY", "%s", errNoCredentials.Error())
	}

	if s.CanRefresh() {
		u, err := url.Parse(s.tokenURL)
		if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
			return apierrors.NewConfigError("OAUTH_TOKEN_URL", "OAuth token URL must use HTTPS")
		}
	}

	return nil
}

// State returns the current lifecycle state of the cached token.
func (s *CredentialStore) State() CredentialState {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.token == nil:
		return CredentialNoToken
	case s.token.Valid():
		return CredentialValid
	default:
		return CredentialExpired
	}
}

// Token returns a usable access token, exchanging the refresh token when no
// token is cached or the cached one has expired.
func (s *CredentialStore) Token(ctx context.Context) (*oauth2.Token, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != nil && (s.token.Valid() || s.oauthConfig == nil) {
		return s.cloneLocked(), nil
	}

	if s.oauthConfig == nil {
		return nil, errNoCredentials
	}

	if err := s.refreshLocked(ctx); err != nil {
		return nil, err
	}

	return s.cloneLocked(), nil
}

// Invalidate marks accessToken as rejected by the provider. It is a no-op if
// the cached token has already been replaced or refresh is not configured.
func (s *CredentialStore) Invalidate(accessToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.oauthConfig == nil || s.token == nil || s.token.AccessToken != accessToken {
		return
	}

	expired := *s.token
	expired.Expiry = time.Now().Add(-time.Minute)
	s.token = &expired
}

// Close forgets the cached access token.
func (s *CredentialStore) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = nil
}

func (s *CredentialStore) refreshLocked(ctx context.Context) error {
	log := s.logger.WithContext(ctx).WithComponent("credentials")

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.oauthConfig.TokenSource(ctx, &oauth2.Token{RefreshToken: s.refreshToken}).Token()
	if err != nil {
		metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeFailure).Inc()
		log.Warn("email access token refresh failed", slog.String("detail", refreshErrorDetail(err)))

		message := "Unable to refresh email access token"
		if detail := refreshErrorDetail(err); detail != "" {
			message = message + ": " + detail
		}
		return errors.New(message)
	}

	metrics.TokenRefreshesTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Info("email access token refreshed", slog.Time("expiry", token.Expiry))

	if token.RefreshToken != "" {
		s.refreshToken = token.RefreshToken
	}
	s.token = token

	return nil
}

func (s *CredentialStore) cloneLocked() *oauth2.Token {
	clone := *s.token
	return &clone
}

// refreshErrorDetail extracts the provider's explanation from a failed
// exchange without echoing request data.
func refreshErrorDetail(err error) string {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		switch {
		case retrieveErr.ErrorDescription != "":
			return retrieveErr.ErrorDescription
		case retrieveErr.ErrorCode != "":
			return retrieveErr.ErrorCode
		case retrieveErr.Response != nil:
			return fmt.Sprintf("HTTP %d", retrieveErr.Response.StatusCode)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err.Error()
	}

	return err.Error()
}
