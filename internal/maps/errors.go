package maps

// LookupErrorKind classifies why a mapping lookup failed.
type LookupErrorKind string

const (
	// KindInvalidInput means the request was rejected before any call was made.
	KindInvalidInput LookupErrorKind = "invalid_input"
	// KindUnreachable means the provider could not be contacted.
	KindUnreachable LookupErrorKind = "unreachable"
	// KindHTTPStatus means the provider answered with a non-2xx status.
	KindHTTPStatus LookupErrorKind = "http_status"
	// KindNoRoute means the provider found no route between the addresses.
	KindNoRoute LookupErrorKind = "no_route"
	// KindProvider means the provider reported an error status such as REQUEST_DENIED.
	KindProvider LookupErrorKind = "provider"
	// KindMalformed means the response could not be read or lacked required data.
	KindMalformed LookupErrorKind = "malformed"
)

// LookupError is returned by every failed Service call.
// Message is safe to show to end users; it never contains the API key.
type LookupError struct {
	Kind           LookupErrorKind
	Operation      string
	StatusCode     int
	ProviderStatus string
	Message        string
	Err            error
}

func (e *LookupError) Error() string {
	return e.Message
}

func (e *LookupError) Unwrap() error {
	return e.Err
}
