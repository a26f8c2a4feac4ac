package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/mail"
	"net/url"
	"regexp"
	"strings"

	"github.com/prakashnk/trafficalert/internal/config"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/metrics"
	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// NotificationRequest is a single alert email.
type NotificationRequest struct {
	From    string
	To      string
	Subject string
	Body    string
}

// jsonPayload is the body accepted by generic JSON email APIs.
type jsonPayload struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
}

// Notifier delivers alert emails through the configured provider.
type Notifier struct {
	provider    config.EmailProvider
	apiURL      string
	apiKey      string
	httpClient  *http.Client
	credentials *CredentialStore
	logger      *logger.Logger
}

// NewNotifier creates a notifier for cfg.EmailProvider. credentials is only
// consulted for the Gmail provider and may be nil otherwise.
func NewNotifier(cfg *config.Config, httpClient *http.Client, credentials *CredentialStore, logger *logger.Logger) *Notifier {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPClientTimeout}
	}

	return &Notifier{
		provider:    cfg.EmailProvider,
		apiURL:      cfg.EmailAPIURL,
		apiKey:      cfg.EmailAPIKey,
		httpClient:  httpClient,
		credentials: credentials,
		logger:      logger,
	}
}

// NewCredentialStoreFromConfig builds the credential store for the Gmail provider.
func NewCredentialStoreFromConfig(cfg *config.Config, httpClient *http.Client, logger *logger.Logger) *CredentialStore {
	return NewCredentialStore(CredentialConfig{
		AccessToken:  cfg.EmailAPIKey,
		RefreshToken: cfg.EmailRefreshToken,
		ClientID:     cfg.OAuthClientID,
		ClientSecret: cfg.OAuthClientSecret,
		TokenURL:     cfg.OAuthTokenURL,
	}, httpClient, logger)
}

// Provider returns the provider kind alerts are sent with.
func (n *Notifier) Provider() config.EmailProvider {
	return n.provider
}

// SendAlert delivers req. Configuration problems return *apierrors.ConfigError
// without contacting the provider; delivery failures return *SendError.
func (n *Notifier) SendAlert(ctx context.Context, req NotificationRequest) error {
	log := n.logger.WithContext(ctx).WithComponent("notifier")

	err := n.send(ctx, req)

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeFailure
		log.Warn("email alert not delivered",
			slog.String("provider", providerLabel(n.provider)),
			slog.String("error", err.Error()))
	} else {
		log.Info("email alert delivered", slog.String("provider", providerLabel(n.provider)))
	}
	metrics.AlertsTotal.WithLabelValues(providerLabel(n.provider), outcome).Inc()

	return err
}

func (n *Notifier) send(ctx context.Context, req NotificationRequest) error {
	if n.provider == config.EmailProviderNone || n.apiURL == "" {
		return apierrors.NewConfigError("EMAIL_API_URL", "email provider URL is not configured")
	}
	if err := requireHTTPS(n.apiURL); err != nil {
		return err
	}
	if strings.TrimSpace(req.From) == "" {
		return apierrors.NewConfigError("EMAIL_FROM", "sender address is not configured")
	}
	if _, err := mail.ParseAddress(req.To); err != nil {
		return ErrInvalidRecipient
	}

	switch n.provider {
	case config.EmailProviderJSON:
		return n.sendJSON(ctx, req)
	case config.EmailProviderGmail:
		return n.sendGmail(ctx, req)
	default:
		return apierrors.NewConfigError("EMAIL_PROVIDER", "unsupported email provider %q", string(n.provider))
	}
}

func (n *Notifier) sendJSON(ctx context.Context, req NotificationRequest) error {
	if n.apiKey == "" {
		return apierrors.NewConfigError("EMAIL_API_KEY", "email API key is not configured")
	}

	payload, err := json.Marshal(jsonPayload{
		From:    req.From,
		To:      req.To,
		Subject: req.Subject,
		Text:    req.Body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, n.apiURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+n.apiKey)

	resp, err := n.httpClient.Do(httpReq)
	if err != nil {
		return &SendError{
			Provider: n.provider,
			Message:  "Failed to reach the email API",
			Err:      err,
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &SendError{
			Provider:   n.provider,
			StatusCode: resp.StatusCode,
			Message:    rejectionMessage(jsonErrorDetail(body)),
		}
	}

	return nil
}

func (n *Notifier) sendGmail(ctx context.Context, req NotificationRequest) error {
	if n.credentials == nil {
		return apierrors.NewConfigError("EMAIL_API_KEY", "%s", errNoCredentials.Error())
	}
	if err := n.credentials.Validate(); err != nil {
		return err
	}

	basePath, userID, err := gmailEndpoint(n.apiURL)
	if err != nil {
		return err
	}

	raw, err := encodeRawMessage(req)
	if err != nil {
		return err
	}
	message := &gmail.Message{Raw: raw}

	token, err := n.credentials.Token(ctx)
	if err != nil {
		return &SendError{Provider: n.provider, Message: err.Error(), Err: err}
	}

	err = n.deliverGmail(ctx, basePath, userID, token, message)
	if isUnauthorized(err) && n.credentials.CanRefresh() {
		n.logger.WithContext(ctx).WithComponent("notifier").
			Info("gmail rejected access token, refreshing once")

		n.credentials.Invalidate(token.AccessToken)

		token, err = n.credentials.Token(ctx)
		if err != nil {
			return &SendError{Provider: n.provider, StatusCode: http.StatusUnauthorized, Message: err.Error(), Err: err}
		}

		err = n.deliverGmail(ctx, basePath, userID, token, message)
	}

	if err != nil {
		return gmailSendError(n.provider, err)
	}

	return nil
}

// deliverGmail performs one users.messages.send call authorized with token.
func (n *Notifier) deliverGmail(ctx context.Context, basePath, userID string, token *oauth2.Token, message *gmail.Message) error {
	client := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(token),
			Base:   n.httpClient.Transport,
		},
		Timeout: n.httpClient.Timeout,
	}

	service, err := gmail.NewService(ctx, option.WithHTTPClient(client), option.WithEndpoint(basePath))
	if err != nil {
		return fmt.Errorf("failed to create gmail client: %w", err)
	}

	_, err = service.Users.Messages.Send(userID, message).Context(ctx).Do()
	return err
}

var gmailSendPath = regexp.MustCompile(`^(.*?/)gmail/v1/users/([^/]+)/messages/send/?$`)

// gmailEndpoint splits a configured send URL into the API base path and user
// ID. Any path ahead of /gmail/v1/ stays part of the base path.
func gmailEndpoint(apiURL string) (basePath, userID string, err error) {
	u, err := url.Parse(apiURL)
	if err != nil || u.Host == "" {
		return "", "", apierrors.NewConfigError("EMAIL_API_URL", "invalid email API URL")
	}

	prefix := "/"
	userID = "me"
	if m := gmailSendPath.FindStringSubmatch(u.EscapedPath()); m != nil {
		prefix = m[1]
		if unescaped, err := url.PathUnescape(m[2]); err == nil && unescaped != "" {
			userID = unescaped
		}
	} else if path := strings.TrimSuffix(u.EscapedPath(), "/"); path != "" {
		prefix = path + "/"
	}

	return u.Scheme + "://" + u.Host + prefix, userID, nil
}

func isUnauthorized(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusUnauthorized
}

func gmailSendError(provider config.EmailProvider, err error) *SendError {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &SendError{
			Provider:   provider,
			StatusCode: apiErr.Code,
			Message:    rejectionMessage(apiErr.Message),
			Err:        err,
		}
	}

	return &SendError{
		Provider: provider,
		Message:  "Failed to reach the email API",
		Err:      err,
	}
}

func requireHTTPS(apiURL string) error {
	u, err := url.Parse(apiURL)
	if err != nil || !strings.EqualFold(u.Scheme, "https") || u.Host == "" {
		return apierrors.NewConfigError("EMAIL_API_URL", "Email API URL must use HTTPS")
	}
	return nil
}

func rejectionMessage(detail string) string {
	if detail == "" {
		return "Email API rejected the request"
	}
	return "Email API rejected the request: " + detail
}

// jsonErrorDetail reads "error" or "message" from a JSON error body, falling
// back to the trimmed body text.
func jsonErrorDetail(body []byte) string {
	var parsed map[string]interface{}
	if err := json.Unmarshal(body, &parsed); err == nil {
		for _, key := range []string{"error", "message"} {
			switch v := parsed[key].(type) {
			case string:
				if v != "" {
					return v
				}
			case map[string]interface{}:
				if msg, ok := v["message"].(string); ok && msg != "" {
					return msg
				}
			}
		}
		return ""
	}
	return strings.TrimSpace(string(body))
}

func providerLabel(provider config.EmailProvider) string {
	if provider == config.EmailProviderNone {
		return "none"
	}
	return string(provider)
}
