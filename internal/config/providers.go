package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/goccy/go-yaml"
)

// EmailProvider identifies which email API shape alerts are sent with.
type EmailProvider string

const (
	// EmailProviderNone means no email endpoint is configured.
	EmailProviderNone EmailProvider = ""

	// EmailProviderJSON posts {from, to, subject, text} with a bearer token.
	EmailProviderJSON EmailProvider = "json"

	// EmailProviderGmail sends a base64url MIME message through the Gmail API.
	EmailProviderGmail EmailProvider = "gmail"
)

const gmailAPIHost = "gmail.googleapis.com"

// ResolveEmailProvider returns the provider to use for the given explicit
// setting and endpoint URL. An empty setting is inferred from the URL host.
func ResolveEmailProvider(explicit EmailProvider, apiURL string) (EmailProvider, error) {
	switch explicit {
	case EmailProviderJSON, EmailProviderGmail:
		return explicit, nil
	case EmailProviderNone:
	default:
		return EmailProviderNone, fmt.Errorf(
			"bad EmailProvider value %q: must be empty or one of %q, %q",
			string(explicit),
			string(EmailProviderJSON),
			string(EmailProviderGmail),
		)
	}

	if apiURL == "" {
		return EmailProviderNone, nil
	}

	u, err := url.Parse(apiURL)
	if err != nil {
		return EmailProviderNone, fmt.Errorf("failed to parse EMAIL_API_URL: %w", err)
	}

	if strings.EqualFold(u.Hostname(), gmailAPIHost) {
		return EmailProviderGmail, nil
	}

	return EmailProviderJSON, nil
}

// AlertPolicy decides when a requested alert is actually sent.
type AlertPolicy string

const (
	// AlertPolicyBelowThreshold sends only when the ETA is within the threshold.
	AlertPolicyBelowThreshold AlertPolicy = "below_threshold"

	// AlertPolicyAlways sends whenever the caller asked for an alert.
	AlertPolicyAlways AlertPolicy = "always"
)

// Validate checks whether the value is a known AlertPolicy and replaces an
// empty value with AlertPolicyBelowThreshold.
func (p *AlertPolicy) Validate() error {
	switch *p {
	case "":
		*p = AlertPolicyBelowThreshold
		return nil
	case AlertPolicyBelowThreshold, AlertPolicyAlways:
		return nil
	default:
		return fmt.Errorf(
			"bad AlertPolicy value: must be empty or one of %q, %q",
			string(AlertPolicyBelowThreshold),
			string(AlertPolicyAlways),
		)
	}
}

// EndpointsConfig overrides the Google Maps endpoint URLs.
type EndpointsConfig struct {
	Directions   string `yaml:"directions"`
	Autocomplete string `yaml:"autocomplete"`
	Geocode      string `yaml:"geocode"`
}

// Validate checks that every non-empty endpoint is a usable URL.
func (e *EndpointsConfig) Validate() error {
	for name, value := range map[string]string{
		"directions":   e.Directions,
		"autocomplete": e.Autocomplete,
		"geocode":      e.Geocode,
	} {
		if err := validateURLString(value); err != nil {
			return fmt.Errorf("endpoints.%s: %w", name, err)
		}
	}
	return nil
}

func (e *EndpointsConfig) apply(cfg *Config) {
	if e.Directions != "" {
		cfg.DirectionsURL = e.Directions
	}
	if e.Autocomplete != "" {
		cfg.AutocompleteURL = e.Autocomplete
	}
	if e.Geocode != "" {
		cfg.GeocodeURL = e.Geocode
	}
}

// unmarshalEndpointsConfig validates the endpoints section after decoding.
func unmarshalEndpointsConfig(value *EndpointsConfig, data []byte) error {
	type alias EndpointsConfig
	var aux alias

	if err := yaml.Unmarshal(data, &aux); err != nil {
		return err
	}

	*value = EndpointsConfig(aux)

	return value.Validate()
}

func init() {
	yaml.RegisterCustomUnmarshaler[EndpointsConfig](unmarshalEndpointsConfig)
}

// validateURLString performs basic sanity checks of a string that should contain a valid URL.
// Empty strings are ignored.
func validateURLString(str string) error {
	if str == "" {
		return nil
	}

	u, err := url.Parse(str)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}

	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported URL scheme: %q", u.Scheme)
	}

	if u.Host == "" {
		return errors.New("URL does not contain a hostname")
	}

	return nil
}
