package alerts

import (
	"github.com/prakashnk/trafficalert/internal/maps"
)

// TripRequest asks for the current travel time of a trip and, optionally,
// an email alert about it.
type TripRequest struct {
	Origin      string `json:"origin"`
	Destination string `json:"destination"`
	// ThresholdMinutes of 0 selects the configured default.
	ThresholdMinutes int    `json:"threshold_minutes"`
	Notify           bool   `json:"notify"`
	Email            string `json:"email"`
}

// AlertStatus reports what happened to the alert of a trip check.
type AlertStatus string

const (
	AlertNotRequested AlertStatus = "not_requested"
	AlertSkipped      AlertStatus = "skipped"
	AlertSent         AlertStatus = "sent"
	AlertFailed       AlertStatus = "failed"
)

// AlertOutcome is the alert part of a TripOutcome.
type AlertOutcome struct {
	Status  AlertStatus `json:"status"`
	Message string      `json:"message,omitempty"`
}

// TripOutcome is the answer to a TripRequest.
type TripOutcome struct {
	*maps.TripResult
	Origin      string       `json:"origin"`
	Destination string       `json:"destination"`
	Alert       AlertOutcome `json:"alert"`
}

// SuggestionsResponse is the body of the autocomplete endpoint.
type SuggestionsResponse struct {
	Suggestions []maps.AddressSuggestion `json:"suggestions"`
}
