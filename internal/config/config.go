package config

import (
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"golang.org/x/oauth2/google"
)

const (
	DefaultDirectionsURL   = "https://maps.googleapis.com/maps/api/directions/json"
	DefaultAutocompleteURL = "https://maps.googleapis.com/maps/api/place/autocomplete/json"
	DefaultGeocodeURL      = "https://maps.googleapis.com/maps/api/geocode/json"

	DefaultAlertThresholdMinutes = 120
	DefaultEmailSubject          = "🚦 Traffic Alert"
	DefaultHTTPClientTimeout     = 10 * time.Second
)

// DefaultOAuthTokenURL is Google's OAuth 2.0 token endpoint.
var DefaultOAuthTokenURL = google.Endpoint.TokenURL

type Config struct {
	Port    string
	GinMode string

	// Google Maps
	GoogleMapsAPIKey string
	DirectionsURL    string
	AutocompleteURL  string
	GeocodeURL       string

	// Email provider
	EmailProvider     EmailProvider
	EmailAPIURL       string
	EmailAPIKey       string
	EmailRefreshToken string
	OAuthClientID     string
	OAuthClientSecret string
	OAuthTokenURL     string
	EmailFrom         string
	EmailSubject      string

	// Alerts
	AlertThresholdMinutes int
	AlertPolicy           AlertPolicy

	// Outbound HTTP
	HTTPClientTimeout time.Duration

	// Server
	ServerShutdownTimeoutSeconds int

	// CORS
	CORSAllowedOrigins string

	// Logging
	LogLevel  string
	LogFormat string
}

// fileConfig is the shape of the optional YAML configuration file.
type fileConfig struct {
	Endpoints EndpointsConfig `yaml:"endpoints"`
}

var AppConfig *Config

// LoadConfig loads the process configuration into AppConfig.
// Configuration problems are fatal at startup.
func LoadConfig() {
	if err := godotenv.Load(".env"); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	if cfg.GoogleMapsAPIKey == "" {
		log.Println("Warning: Google Maps API key is missing. Please set GOOGLE_MAPS_API_KEY environment variable.")
	}

	if cfg.EmailProvider == EmailProviderNone {
		log.Println("Warning: Email provider is not configured. Please set EMAIL_API_URL to enable alerts.")
	} else if cfg.EmailFrom == "" {
		log.Println("Warning: Email sender is missing. Please set EMAIL_FROM environment variable.")
	}

	if cfg.EmailProvider == EmailProviderGmail && !cfg.RefreshConfigured() && cfg.EmailAPIKey == "" {
		log.Println("Warning: Gmail provider has neither an access token nor refresh credentials.")
	}

	AppConfig = cfg
}

// Load builds a Config from the environment and the optional YAML file named
// by CONFIG_FILE. It does not read .env.
func Load() (*Config, error) {
	cfg := &Config{
		Port:    getEnvOrDefault("PORT", "8080"),
		GinMode: getEnvOrDefault("GIN_MODE", "release"),

		// Google Maps
		GoogleMapsAPIKey: getEnvOrDefault("GOOGLE_MAPS_API_KEY", ""),
		DirectionsURL:    DefaultDirectionsURL,
		AutocompleteURL:  DefaultAutocompleteURL,
		GeocodeURL:       DefaultGeocodeURL,

		// Email
		EmailProvider:     EmailProvider(strings.ToLower(getEnvOrDefault("EMAIL_PROVIDER", ""))),
		EmailAPIURL:       getEnvOrDefault("EMAIL_API_URL", ""),
		EmailAPIKey:       getEnvOrDefault("EMAIL_API_KEY", ""),
		EmailRefreshToken: getEnvOrDefault("EMAIL_REFRESH_TOKEN", ""),
		OAuthClientID:     getEnvOrDefault("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: getEnvOrDefault("OAUTH_CLIENT_SECRET", ""),
		OAuthTokenURL:     getEnvOrDefault("OAUTH_TOKEN_URL", DefaultOAuthTokenURL),
		EmailFrom:         getEnvOrDefault("EMAIL_FROM", ""),
		EmailSubject:      getEnvOrDefault("EMAIL_SUBJECT", DefaultEmailSubject),

		// Alerts
		AlertThresholdMinutes: getEnvAsInt("ALERT_THRESHOLD_MINUTES", DefaultAlertThresholdMinutes),
		AlertPolicy:           AlertPolicy(strings.ToLower(getEnvOrDefault("ALERT_POLICY", ""))),

		HTTPClientTimeout: getEnvAsDuration("HTTP_CLIENT_TIMEOUT", DefaultHTTPClientTimeout),

		ServerShutdownTimeoutSeconds: getEnvAsInt("SERVER_SHUTDOWN_TIMEOUT_SECONDS", 30),

		CORSAllowedOrigins: getEnvOrDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),

		LogLevel:  getEnvOrDefault("LOG_LEVEL", "debug"),
		LogFormat: getEnvOrDefault("LOG_FORMAT", "text"),
	}

	if cfg.AlertThresholdMinutes <= 0 {
		log.Printf("Warning: ALERT_THRESHOLD_MINUTES must be positive, using default %d", DefaultAlertThresholdMinutes)
		cfg.AlertThresholdMinutes = DefaultAlertThresholdMinutes
	}

	if err := cfg.AlertPolicy.Validate(); err != nil {
		return nil, fmt.Errorf("ALERT_POLICY: %w", err)
	}

	provider, err := ResolveEmailProvider(cfg.EmailProvider, cfg.EmailAPIURL)
	if err != nil {
		return nil, fmt.Errorf("EMAIL_PROVIDER: %w", err)
	}
	cfg.EmailProvider = provider

	if err := cfg.loadConfigFileFromEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// RefreshConfigured reports whether OAuth refresh credentials are complete.
func (c *Config) RefreshConfigured() bool {
	return c.EmailRefreshToken != "" && c.OAuthClientID != "" && c.OAuthClientSecret != ""
}

// loadConfigFileFromEnv applies CONFIG_FILE if set, or config.yaml if it exists.
// An explicitly named file that cannot be opened is an error.
func (c *Config) loadConfigFileFromEnv() error {
	configFilePath, explicit := os.LookupEnv("CONFIG_FILE")
	if !explicit || strings.TrimSpace(configFilePath) == "" {
		configFilePath = "config.yaml"
		explicit = false
	}

	configFile, err := os.Open(configFilePath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open config file: %w", err)
	}
	defer configFile.Close()

	log.Printf("Loading config file: %v", configFilePath)

	if err := LoadConfigFile(configFile, c); err != nil {
		return fmt.Errorf("failed to load config file %s: %w", configFilePath, err)
	}

	return nil
}

// LoadConfigFile decodes YAML settings from reader into config.
// Only the endpoint overrides are read from the file.
func LoadConfigFile(reader io.Reader, config *Config) error {
	var fc fileConfig

	decoder := yaml.NewDecoder(reader)
	if err := decoder.Decode(&fc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	fc.Endpoints.apply(config)

	return nil
}

// getEnvOrDefault returns the trimmed value of key, or defaultValue when the
// variable is unset or blank.
func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as time.Duration, using default %v: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		} else {
			log.Printf("Warning: Failed to parse environment variable %s='%s' as int, using default %d: %v", key, value, defaultValue, err)
		}
	}
	return defaultValue
}
