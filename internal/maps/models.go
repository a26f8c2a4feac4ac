package maps

// TripResult is the traffic-aware travel time of a trip compared against an
// alert threshold.
type TripResult struct {
	ETAText                  string `json:"eta_text"`
	DurationInTrafficSeconds int    `json:"duration_in_traffic_seconds"`
	ThresholdMinutes         int    `json:"threshold_minutes"`
	BelowThreshold           bool   `json:"below_threshold"`
}

// AddressSuggestion is one candidate completion for a partial address.
// PlaceID is empty when the suggestion came from the geocoding fallback.
type AddressSuggestion struct {
	Label   string `json:"label"`
	PlaceID string `json:"place_id,omitempty"`
}

// durationValue is a Google Maps duration block.
type durationValue struct {
	Value *int   `json:"value"`
	Text  string `json:"text"`
}

// directionsResponse is the subset of the Directions API response we read.
type directionsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Routes       []struct {
		Legs []struct {
			Duration          *durationValue `json:"duration"`
			DurationInTraffic *durationValue `json:"duration_in_traffic"`
		} `json:"legs"`
	} `json:"routes"`
}

// autocompleteResponse is the subset of the Places Autocomplete response we read.
type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Predictions  []struct {
		Description string `json:"description"`
		PlaceID     string `json:"place_id"`
	} `json:"predictions"`
}

// geocodeResponse is the subset of the Geocoding API response we read.
type geocodeResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message,omitempty"`
	Results      []struct {
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
}

// Google Maps web service status codes.
const (
	statusOK            = "OK"
	statusZeroResults   = "ZERO_RESULTS"
	statusNotFound      = "NOT_FOUND"
	statusRequestDenied = "REQUEST_DENIED"
)
