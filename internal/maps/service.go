package maps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strings"

	"github.com/prakashnk/trafficalert/internal/config"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/metrics"
)

const (
	operationDirections   = "directions"
	operationAutocomplete = "autocomplete"
	operationGeocode      = "geocode"
)

// Service talks to the Google Maps web services.
type Service struct {
	httpClient      *http.Client
	logger          *logger.Logger
	apiKey          string
	directionsURL   string
	autocompleteURL string
	geocodeURL      string
}

// NewService creates a new maps service from the application config.
func NewService(cfg *config.Config, httpClient *http.Client, logger *logger.Logger) *Service {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.HTTPClientTimeout}
	}

	return &Service{
		httpClient:      httpClient,
		logger:          logger,
		apiKey:          cfg.GoogleMapsAPIKey,
		directionsURL:   cfg.DirectionsURL,
		autocompleteURL: cfg.AutocompleteURL,
		geocodeURL:      cfg.GeocodeURL,
	}
}

// LookupTravelTime returns the current traffic-aware travel time between
// origin and destination and whether it is within thresholdMinutes.
func (s *Service) LookupTravelTime(ctx context.Context, origin, destination string, thresholdMinutes int) (*TripResult, error) {
	log := s.logger.WithContext(ctx).WithComponent("maps")

	origin = strings.TrimSpace(origin)
	destination = strings.TrimSpace(destination)
	if origin == "" || destination == "" {
		return nil, &LookupError{
			Kind:      KindInvalidInput,
			Operation: operationDirections,
			Message:   "Please provide both origin and destination addresses.",
		}
	}
	if thresholdMinutes <= 0 {
		return nil, &LookupError{
			Kind:      KindInvalidInput,
			Operation: operationDirections,
			Message:   "Alert threshold must be a positive number of minutes.",
		}
	}
	if s.apiKey == "" {
		return nil, missingKeyError()
	}

	params := url.Values{}
	params.Set("origin", origin)
	params.Set("destination", destination)
	params.Set("departure_time", "now")
	params.Set("traffic_model", "best_guess")

	var resp directionsResponse
	if err := s.getJSON(ctx, operationDirections, s.directionsURL, params, &resp); err != nil {
		metrics.LookupsTotal.WithLabelValues(operationDirections, metrics.OutcomeFailure).Inc()
		log.Warn("directions lookup failed", slog.String("error", err.Error()))
		return nil, err
	}

	seconds, err := durationInTraffic(resp)
	if err != nil {
		metrics.LookupsTotal.WithLabelValues(operationDirections, metrics.OutcomeFailure).Inc()
		log.Warn("directions lookup returned no usable route", slog.String("error", err.Error()))
		return nil, err
	}

	metrics.LookupsTotal.WithLabelValues(operationDirections, metrics.OutcomeSuccess).Inc()

	result := NewTripResult(seconds, thresholdMinutes)

	log.Info("travel time resolved",
		slog.Int("duration_in_traffic_seconds", result.DurationInTrafficSeconds),
		slog.Int("threshold_minutes", result.ThresholdMinutes),
		slog.Bool("below_threshold", result.BelowThreshold))

	return result, nil
}

// NewTripResult derives a TripResult from a duration and a threshold.
func NewTripResult(durationInTrafficSeconds, thresholdMinutes int) *TripResult {
	return &TripResult{
		ETAText:                  FormatETA(durationInTrafficSeconds),
		DurationInTrafficSeconds: durationInTrafficSeconds,
		ThresholdMinutes:         thresholdMinutes,
		BelowThreshold:           withinThreshold(durationInTrafficSeconds, thresholdMinutes),
	}
}

// withinThreshold reports seconds <= thresholdMinutes*60 without overflowing
// for large thresholds.
func withinThreshold(seconds, thresholdMinutes int) bool {
	if seconds <= 0 {
		return true
	}
	minutes := seconds / 60
	if seconds%60 != 0 {
		minutes++
	}
	return minutes <= thresholdMinutes
}

// FormatETA renders a duration as "18 min", "2 hr" or "1 hr 30 min",
// rounded to the nearest minute.
func FormatETA(seconds int) string {
	totalMinutes := int(math.Round(float64(seconds) / 60))
	hours, minutes := totalMinutes/60, totalMinutes%60

	switch {
	case hours > 0 && minutes > 0:
		return fmt.Sprintf("%d hr %d min", hours, minutes)
	case hours > 0:
		return fmt.Sprintf("%d hr", hours)
	default:
		return fmt.Sprintf("%d min", minutes)
	}
}

// durationInTraffic extracts the first leg's traffic-aware duration, falling
// back to the plain duration when the provider omitted traffic data.
func durationInTraffic(resp directionsResponse) (int, error) {
	switch resp.Status {
	case statusOK:
	case statusZeroResults, statusNotFound:
		return 0, &LookupError{
			Kind:           KindNoRoute,
			Operation:      operationDirections,
			ProviderStatus: resp.Status,
			Message:        "No route found between the selected locations.",
		}
	default:
		return 0, providerError(operationDirections, "Directions API", resp.Status, resp.ErrorMessage)
	}

	if len(resp.Routes) == 0 || len(resp.Routes[0].Legs) == 0 {
		return 0, &LookupError{
			Kind:           KindNoRoute,
			Operation:      operationDirections,
			ProviderStatus: resp.Status,
			Message:        "No route found between the selected locations.",
		}
	}

	leg := resp.Routes[0].Legs[0]
	block := leg.DurationInTraffic
	if block == nil || block.Value == nil {
		block = leg.Duration
	}
	if block == nil || block.Value == nil {
		return 0, &LookupError{
			Kind:      KindMalformed,
			Operation: operationDirections,
			Message:   "Directions API did not include a travel time.",
		}
	}

	return *block.Value, nil
}

// getJSON performs a keyed GET against endpoint and decodes the JSON body
// into out. Failures are returned as *LookupError.
func (s *Service) getJSON(ctx context.Context, operation, endpoint string, params url.Values, out interface{}) error {
	label := apiLabel(operation)

	u, err := url.Parse(endpoint)
	if err != nil {
		return apierrors.NewConfigError("endpoints."+operation, "invalid %s URL: %v", label, err)
	}
	query := u.Query()
	for key, values := range params {
		query[key] = values
	}
	query.Set("key", s.apiKey)
	u.RawQuery = query.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return &LookupError{
			Kind:      KindMalformed,
			Operation: operation,
			Message:   "Unable to build the " + label + " request",
			Err:       redactURLError(err),
		}
	}

	resp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return &LookupError{
			Kind:      KindUnreachable,
			Operation: operation,
			Message:   "Unable to contact the Google " + label,
			Err:       redactURLError(err),
		}
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &LookupError{
			Kind:      KindUnreachable,
			Operation: operation,
			Message:   "Unable to read the Google " + label + " response",
			Err:       err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &LookupError{
			Kind:       KindHTTPStatus,
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Message:    fmt.Sprintf("%s request failed with HTTP %d", label, resp.StatusCode),
		}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &LookupError{
			Kind:      KindMalformed,
			Operation: operation,
			Message:   label + " returned an unreadable response",
			Err:       err,
		}
	}

	return nil
}

func missingKeyError() error {
	return apierrors.NewConfigError("GOOGLE_MAPS_API_KEY", "Google Maps API key missing")
}

func providerError(operation, label, status, message string) *LookupError {
	if message == "" {
		message = fmt.Sprintf("%s error: %s", label, status)
	}
	return &LookupError{
		Kind:           KindProvider,
		Operation:      operation,
		ProviderStatus: status,
		Message:        message,
	}
}

func apiLabel(operation string) string {
	switch operation {
	case operationAutocomplete:
		return "Places Autocomplete API"
	case operationGeocode:
		return "Geocoding API"
	default:
		return "Directions API"
	}
}

// redactURLError drops the request URL, which carries the API key, from
// transport errors.
func redactURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
