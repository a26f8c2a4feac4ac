package alerts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/prakashnk/trafficalert/internal/config"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/maps"
	"github.com/prakashnk/trafficalert/internal/metrics"
	"github.com/prakashnk/trafficalert/internal/notifier"
)

// ErrEmailRequired is returned when an alert is requested without a recipient.
var ErrEmailRequired = errors.New("an email address is required to send an alert")

// RouteLookup is the mapping provider used by Service.
type RouteLookup interface {
	LookupTravelTime(ctx context.Context, origin, destination string, thresholdMinutes int) (*maps.TripResult, error)
	SuggestAddresses(ctx context.Context, partialText string) ([]maps.AddressSuggestion, error)
}

// AlertSender delivers alert emails.
type AlertSender interface {
	SendAlert(ctx context.Context, req notifier.NotificationRequest) error
	Provider() config.EmailProvider
}

// Service checks trips against their threshold and relays alerts.
type Service struct {
	lookup           RouteLookup
	sender           AlertSender
	policy           config.AlertPolicy
	defaultThreshold int
	from             string
	subject          string
	logger           *logger.Logger
}

// NewService creates a trip alert service. sender may be nil when no email
// provider is configured; requested alerts then fail with a config error.
func NewService(cfg *config.Config, lookup RouteLookup, sender AlertSender, logger *logger.Logger) *Service {
	threshold := cfg.AlertThresholdMinutes
	if threshold <= 0 {
		threshold = config.DefaultAlertThresholdMinutes
	}

	policy := cfg.AlertPolicy
	if err := policy.Validate(); err != nil {
		policy = config.AlertPolicyBelowThreshold
	}

	subject := cfg.EmailSubject
	if subject == "" {
		subject = config.DefaultEmailSubject
	}

	return &Service{
		lookup:           lookup,
		sender:           sender,
		policy:           policy,
		defaultThreshold: threshold,
		from:             cfg.EmailFrom,
		subject:          subject,
		logger:           logger,
	}
}

// CheckTrip looks up the current travel time of req and sends an alert when
// one was requested and the alert policy allows it. Lookup failures are
// returned; alert failures are reported in the outcome only.
func (s *Service) CheckTrip(ctx context.Context, req TripRequest) (*TripOutcome, error) {
	log := s.logger.WithContext(ctx).WithComponent("alerts")

	origin := strings.TrimSpace(req.Origin)
	destination := strings.TrimSpace(req.Destination)
	email := strings.TrimSpace(req.Email)

	if req.Notify && email == "" {
		return nil, ErrEmailRequired
	}

	threshold := req.ThresholdMinutes
	if threshold == 0 {
		threshold = s.defaultThreshold
	}

	result, err := s.lookup.LookupTravelTime(ctx, origin, destination, threshold)
	if err != nil {
		return nil, err
	}

	outcome := &TripOutcome{
		TripResult:  result,
		Origin:      origin,
		Destination: destination,
		Alert:       AlertOutcome{Status: AlertNotRequested},
	}

	if !req.Notify {
		return outcome, nil
	}

	if s.policy == config.AlertPolicyBelowThreshold && !result.BelowThreshold {
		log.Info("alert skipped, travel time above threshold",
			slog.String("eta", result.ETAText),
			slog.Int("threshold_minutes", result.ThresholdMinutes))
		metrics.AlertsTotal.WithLabelValues(s.providerLabel(), metrics.OutcomeSkipped).Inc()

		outcome.Alert = AlertOutcome{
			Status:  AlertSkipped,
			Message: fmt.Sprintf("Travel time %s is above the %d minute threshold.", result.ETAText, result.ThresholdMinutes),
		}
		return outcome, nil
	}

	outcome.Alert = s.sendAlert(ctx, email, origin, destination, result)
	return outcome, nil
}

// SuggestAddresses returns completions for a partially typed address.
func (s *Service) SuggestAddresses(ctx context.Context, partialText string) ([]maps.AddressSuggestion, error) {
	return s.lookup.SuggestAddresses(ctx, partialText)
}

func (s *Service) sendAlert(ctx context.Context, email, origin, destination string, result *maps.TripResult) AlertOutcome {
	if s.sender == nil {
		return AlertOutcome{Status: AlertFailed, Message: "Email alerts are not configured."}
	}

	err := s.logger.LogOperation(ctx, "send_alert", func() error {
		return s.sender.SendAlert(ctx, notifier.NotificationRequest{
			From:    s.from,
			To:      email,
			Subject: s.subject,
			Body:    AlertBody(origin, destination, result.ETAText),
		})
	})
	if err != nil {
		return AlertOutcome{Status: AlertFailed, Message: err.Error()}
	}

	return AlertOutcome{Status: AlertSent, Message: fmt.Sprintf("Alert sent to %s.", email)}
}

func (s *Service) providerLabel() string {
	if s.sender == nil || s.sender.Provider() == config.EmailProviderNone {
		return "none"
	}
	return string(s.sender.Provider())
}

// AlertBody renders the alert email text.
func AlertBody(origin, destination, eta string) string {
	return fmt.Sprintf("🚗 Traffic Alert: Travel time from %s to %s is now %s.", origin, destination, eta)
}
