package maps

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/prakashnk/trafficalert/internal/metrics"
)

// autocompleteStatus is the classified outcome of a Places Autocomplete call.
type autocompleteStatus int

const (
	autocompleteOK autocompleteStatus = iota
	// autocompleteNotEnabled means Places is not enabled for the key; the
	// geocoding fallback may be used.
	autocompleteNotEnabled
	// autocompleteFailed covers every other failure; it is never masked by
	// the fallback.
	autocompleteFailed
)

type autocompleteResult struct {
	status      autocompleteStatus
	suggestions []AddressSuggestion
	err         error
}

// notEnabledMarkers identify REQUEST_DENIED messages that mean the API itself
// is unavailable to the key, as opposed to a bad key or quota problem.
var notEnabledMarkers = []string{
	"not enabled",
	"not authorized to use this api",
	"legacy api",
}

// SuggestAddresses returns completions for partialText. When Places
// Autocomplete is not enabled for the API key, results come from the
// Geocoding API instead and carry no place ID.
func (s *Service) SuggestAddresses(ctx context.Context, partialText string) ([]AddressSuggestion, error) {
	log := s.logger.WithContext(ctx).WithComponent("maps")

	partialText = strings.TrimSpace(partialText)
	if partialText == "" {
		return []AddressSuggestion{}, nil
	}

	result := s.autocomplete(ctx, partialText)

	switch result.status {
	case autocompleteOK:
		metrics.LookupsTotal.WithLabelValues(operationAutocomplete, metrics.OutcomeSuccess).Inc()
		return result.suggestions, nil

	case autocompleteNotEnabled:
		metrics.LookupsTotal.WithLabelValues(operationAutocomplete, metrics.OutcomeFallback).Inc()
		log.Info("places autocomplete not enabled for key, falling back to geocoding")

		suggestions, err := s.geocodeSuggestions(ctx, partialText)
		if err != nil {
			metrics.LookupsTotal.WithLabelValues(operationGeocode, metrics.OutcomeFailure).Inc()
			log.Warn("geocoding fallback failed", slog.String("error", err.Error()))
			return nil, err
		}
		metrics.LookupsTotal.WithLabelValues(operationGeocode, metrics.OutcomeSuccess).Inc()
		return suggestions, nil

	default:
		metrics.LookupsTotal.WithLabelValues(operationAutocomplete, metrics.OutcomeFailure).Inc()
		log.Warn("places autocomplete failed", slog.String("error", result.err.Error()))
		return nil, result.err
	}
}

func (s *Service) autocomplete(ctx context.Context, input string) autocompleteResult {
	if s.apiKey == "" {
		return autocompleteResult{
			status: autocompleteFailed,
			err:    missingKeyError(),
		}
	}

	params := url.Values{}
	params.Set("input", input)

	var resp autocompleteResponse
	if err := s.getJSON(ctx, operationAutocomplete, s.autocompleteURL, params, &resp); err != nil {
		return autocompleteResult{status: autocompleteFailed, err: err}
	}

	return classifyAutocomplete(resp)
}

// classifyAutocomplete maps a decoded autocomplete response onto the typed result.
func classifyAutocomplete(resp autocompleteResponse) autocompleteResult {
	switch resp.Status {
	case statusOK, statusZeroResults:
		suggestions := make([]AddressSuggestion, 0, len(resp.Predictions))
		for _, prediction := range resp.Predictions {
			suggestions = append(suggestions, AddressSuggestion{
				Label:   prediction.Description,
				PlaceID: prediction.PlaceID,
			})
		}
		return autocompleteResult{status: autocompleteOK, suggestions: suggestions}

	case statusRequestDenied:
		if isNotEnabledMessage(resp.ErrorMessage) {
			return autocompleteResult{status: autocompleteNotEnabled}
		}
	}

	return autocompleteResult{
		status: autocompleteFailed,
		err:    providerError(operationAutocomplete, apiLabel(operationAutocomplete), resp.Status, resp.ErrorMessage),
	}
}

func isNotEnabledMessage(message string) bool {
	message = strings.ToLower(message)
	for _, marker := range notEnabledMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}

func (s *Service) geocodeSuggestions(ctx context.Context, address string) ([]AddressSuggestion, error) {
	params := url.Values{}
	params.Set("address", address)

	var resp geocodeResponse
	if err := s.getJSON(ctx, operationGeocode, s.geocodeURL, params, &resp); err != nil {
		return nil, err
	}

	switch resp.Status {
	case statusOK, statusZeroResults:
	default:
		return nil, providerError(operationGeocode, apiLabel(operationGeocode), resp.Status, resp.ErrorMessage)
	}

	suggestions := make([]AddressSuggestion, 0, len(resp.Results))
	for _, result := range resp.Results {
		if result.FormattedAddress == "" {
			continue
		}
		suggestions = append(suggestions, AddressSuggestion{Label: result.FormattedAddress})
	}

	return suggestions, nil
}
