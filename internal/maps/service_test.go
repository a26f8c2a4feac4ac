package maps

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/prakashnk/trafficalert/internal/config"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
)

const testAPIKey = "test-maps-key"

var log *logger.Logger

func TestMain(m *testing.M) {
	flag.Parse()

	if testing.Verbose() {
		log = logger.New(logger.Config{Level: slog.LevelDebug})
	} else {
		log = logger.New(logger.Config{Level: slog.LevelError})
	}

	os.Exit(m.Run())
}

// fakeMaps serves canned bodies for the three Google Maps endpoints and
// counts how often each one is hit.
type fakeMaps struct {
	directions   func(w http.ResponseWriter, r *http.Request)
	autocomplete func(w http.ResponseWriter, r *http.Request)
	geocode      func(w http.ResponseWriter, r *http.Request)

	directionsCalls   atomic.Int32
	autocompleteCalls atomic.Int32
	geocodeCalls      atomic.Int32
}

func (f *fakeMaps) start(t *testing.T) *Service {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/directions/json", func(w http.ResponseWriter, r *http.Request) {
		f.directionsCalls.Add(1)
		if r.URL.Query().Get("key") != testAPIKey {
			t.Errorf("expected API key %q, got %q", testAPIKey, r.URL.Query().Get("key"))
		}
		f.directions(w, r)
	})
	mux.HandleFunc("/place/autocomplete/json", func(w http.ResponseWriter, r *http.Request) {
		f.autocompleteCalls.Add(1)
		f.autocomplete(w, r)
	})
	mux.HandleFunc("/geocode/json", func(w http.ResponseWriter, r *http.Request) {
		f.geocodeCalls.Add(1)
		f.geocode(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	cfg := &config.Config{
		GoogleMapsAPIKey: testAPIKey,
		DirectionsURL:    server.URL + "/directions/json",
		AutocompleteURL:  server.URL + "/place/autocomplete/json",
		GeocodeURL:       server.URL + "/geocode/json",
	}

	return NewService(cfg, server.Client(), log)
}

func respond(body string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(body))
	}
}

func unexpected(t *testing.T, name string) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected call to %s", name)
		http.Error(w, "unexpected", http.StatusTeapot)
	}
}

func TestBelowThresholdProperty(t *testing.T) {
	for _, seconds := range []int{0, 59, 60, 3599, 3600, 3601, 5400, 7199, 7200, 7201, 86400} {
		for _, threshold := range []int{1, 30, 60, 90, 120, 1440} {
			result := NewTripResult(seconds, threshold)
			want := seconds <= threshold*60
			if result.BelowThreshold != want {
				t.Errorf("seconds=%d threshold=%d: expected below_threshold=%v, got %v", seconds, threshold, want, result.BelowThreshold)
			}
		}
	}
}

func TestBelowThresholdLargeThresholds(t *testing.T) {
	tests := []struct {
		seconds   int
		threshold int
		want      bool
	}{
		{100, math.MaxInt, true},
		{100, math.MaxInt / 30, true},
		{100, math.MaxInt / 60, true},
		{math.MaxInt, math.MaxInt/60 + 1, true},
		{math.MaxInt, math.MaxInt / 60, false},
		{61, 1, false},
		{60, 1, true},
	}

	for _, tt := range tests {
		result := NewTripResult(tt.seconds, tt.threshold)
		if result.BelowThreshold != tt.want {
			t.Errorf("seconds=%d threshold=%d: expected below_threshold=%v, got %v", tt.seconds, tt.threshold, tt.want, result.BelowThreshold)
		}
	}
}

func TestFormatETA(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{0, "0 min"},
		{29, "0 min"},
		{1080, "18 min"},
		{3600, "1 hr"},
		{5400, "1 hr 30 min"},
		{5429, "1 hr 30 min"},
		{7230, "2 hr 1 min"},
	}

	for _, tt := range tests {
		if got := FormatETA(tt.seconds); got != tt.want {
			t.Errorf("FormatETA(%d) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestLookupTravelTime(t *testing.T) {
	ctx := context.Background()

	t.Run("below threshold uses duration in traffic", func(t *testing.T) {
		fake := &fakeMaps{
			directions: func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if q.Get("origin") != "A" || q.Get("destination") != "B" {
					t.Errorf("unexpected origin/destination %q/%q", q.Get("origin"), q.Get("destination"))
				}
				if q.Get("departure_time") != "now" {
					t.Errorf("expected departure_time=now, got %q", q.Get("departure_time"))
				}
				respond(`{"status":"OK","routes":[{"legs":[{"duration":{"value":4000},"duration_in_traffic":{"value":5400,"text":"1 hour 30 mins"}}]}]}`)(w, r)
			},
		}
		svc := fake.start(t)

		result, err := svc.LookupTravelTime(ctx, "A", "B", 120)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DurationInTrafficSeconds != 5400 {
			t.Errorf("expected 5400 seconds, got %d", result.DurationInTrafficSeconds)
		}
		if result.ETAText != "1 hr 30 min" {
			t.Errorf("expected ETA %q, got %q", "1 hr 30 min", result.ETAText)
		}
		if !result.BelowThreshold {
			t.Error("expected trip to be below threshold")
		}
	})

	t.Run("above threshold", func(t *testing.T) {
		fake := &fakeMaps{
			directions: respond(`{"status":"OK","routes":[{"legs":[{"duration_in_traffic":{"value":5400}}]}]}`),
		}
		svc := fake.start(t)

		result, err := svc.LookupTravelTime(ctx, "A", "B", 60)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.BelowThreshold {
			t.Error("expected trip to be above threshold")
		}
	})

	t.Run("falls back to duration without traffic data", func(t *testing.T) {
		fake := &fakeMaps{
			directions: respond(`{"status":"OK","routes":[{"legs":[{"duration":{"value":1080}}]}]}`),
		}
		svc := fake.start(t)

		result, err := svc.LookupTravelTime(ctx, "A", "B", 60)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.DurationInTrafficSeconds != 1080 || result.ETAText != "18 min" {
			t.Errorf("unexpected result %+v", result)
		}
	})
}

func TestLookupTravelTime_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		handler    func(w http.ResponseWriter, r *http.Request)
		wantKind   LookupErrorKind
		wantStatus int
		wantMsg    string
	}{
		{
			name:     "zero results",
			handler:  respond(`{"status":"ZERO_RESULTS","routes":[]}`),
			wantKind: KindNoRoute,
			wantMsg:  "No route found between the selected locations.",
		},
		{
			name:     "ok without routes",
			handler:  respond(`{"status":"OK","routes":[]}`),
			wantKind: KindNoRoute,
		},
		{
			name:     "request denied carries provider message",
			handler:  respond(`{"status":"REQUEST_DENIED","error_message":"The provided API key is invalid."}`),
			wantKind: KindProvider,
			wantMsg:  "The provided API key is invalid.",
		},
		{
			name:     "unknown status without message",
			handler:  respond(`{"status":"UNKNOWN_ERROR"}`),
			wantKind: KindProvider,
			wantMsg:  "Directions API error: UNKNOWN_ERROR",
		},
		{
			name: "non-2xx",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "boom", http.StatusInternalServerError)
			},
			wantKind:   KindHTTPStatus,
			wantStatus: http.StatusInternalServerError,
			wantMsg:    "Directions API request failed with HTTP 500",
		},
		{
			name:     "unreadable body",
			handler:  respond(`not json`),
			wantKind: KindMalformed,
		},
		{
			name:     "missing duration",
			handler:  respond(`{"status":"OK","routes":[{"legs":[{}]}]}`),
			wantKind: KindMalformed,
			wantMsg:  "Directions API did not include a travel time.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake := &fakeMaps{directions: tt.handler}
			svc := fake.start(t)

			_, err := svc.LookupTravelTime(ctx, "A", "B", 60)

			var lookupErr *LookupError
			if !errors.As(err, &lookupErr) {
				t.Fatalf("expected *LookupError, got %T (%v)", err, err)
			}
			if lookupErr.Kind != tt.wantKind {
				t.Errorf("expected kind %q, got %q", tt.wantKind, lookupErr.Kind)
			}
			if tt.wantStatus != 0 && lookupErr.StatusCode != tt.wantStatus {
				t.Errorf("expected status %d, got %d", tt.wantStatus, lookupErr.StatusCode)
			}
			if tt.wantMsg != "" && lookupErr.Error() != tt.wantMsg {
				t.Errorf("expected message %q, got %q", tt.wantMsg, lookupErr.Error())
			}
			if fake.directionsCalls.Load() != 1 {
				t.Errorf("expected exactly 1 directions call, got %d", fake.directionsCalls.Load())
			}
		})
	}
}

func TestLookupTravelTime_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL + "/directions/json"
	server.Close()

	svc := NewService(&config.Config{
		GoogleMapsAPIKey: testAPIKey,
		DirectionsURL:    endpoint,
	}, &http.Client{}, log)

	_, err := svc.LookupTravelTime(context.Background(), "A", "B", 60)

	var lookupErr *LookupError
	if !errors.As(err, &lookupErr) {
		t.Fatalf("expected *LookupError, got %T (%v)", err, err)
	}
	if lookupErr.Kind != KindUnreachable {
		t.Errorf("expected kind %q, got %q", KindUnreachable, lookupErr.Kind)
	}
	if lookupErr.Unwrap() != nil && strings.Contains(lookupErr.Unwrap().Error(), testAPIKey) {
		t.Errorf("transport error leaks the API key: %v", lookupErr.Unwrap())
	}
}

func TestLookupTravelTime_RejectsBeforeCalling(t *testing.T) {
	ctx := context.Background()

	t.Run("blank addresses", func(t *testing.T) {
		fake := &fakeMaps{directions: unexpected(t, "directions")}
		svc := fake.start(t)

		_, err := svc.LookupTravelTime(ctx, "  ", "B", 60)

		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) || lookupErr.Kind != KindInvalidInput {
			t.Fatalf("expected invalid input error, got %v", err)
		}
	})

	t.Run("non-positive threshold", func(t *testing.T) {
		fake := &fakeMaps{directions: unexpected(t, "directions")}
		svc := fake.start(t)

		_, err := svc.LookupTravelTime(ctx, "A", "B", 0)

		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) || lookupErr.Kind != KindInvalidInput {
			t.Fatalf("expected invalid input error, got %v", err)
		}
	})

	t.Run("missing API key", func(t *testing.T) {
		svc := NewService(&config.Config{DirectionsURL: "http://127.0.0.1:1/"}, &http.Client{}, log)

		_, err := svc.LookupTravelTime(ctx, "A", "B", 60)

		var configErr *apierrors.ConfigError
		if !errors.As(err, &configErr) {
			t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
		}
		if configErr.Setting != "GOOGLE_MAPS_API_KEY" {
			t.Errorf("unexpected setting %q", configErr.Setting)
		}
	})
}

func TestGetJSON_RequestErrorsAreTyped(t *testing.T) {
	t.Run("unparseable endpoint", func(t *testing.T) {
		svc := NewService(&config.Config{
			GoogleMapsAPIKey: testAPIKey,
			DirectionsURL:    "http://[::1",
		}, &http.Client{}, log)

		_, err := svc.LookupTravelTime(context.Background(), "A", "B", 60)

		var configErr *apierrors.ConfigError
		if !errors.As(err, &configErr) {
			t.Fatalf("expected *ConfigError, got %T (%v)", err, err)
		}
		if configErr.Setting != "endpoints.directions" {
			t.Errorf("unexpected setting %q", configErr.Setting)
		}
	})

	t.Run("request cannot be built", func(t *testing.T) {
		fake := &fakeMaps{directions: unexpected(t, "directions")}
		svc := fake.start(t)

		// A nil context makes http.NewRequestWithContext fail.
		var ctx context.Context
		var resp directionsResponse
		err := svc.getJSON(ctx, operationDirections, svc.directionsURL, url.Values{}, &resp)

		var lookupErr *LookupError
		if !errors.As(err, &lookupErr) {
			t.Fatalf("expected *LookupError, got %T (%v)", err, err)
		}
		if lookupErr.Kind != KindMalformed {
			t.Errorf("expected kind %q, got %q", KindMalformed, lookupErr.Kind)
		}
		if strings.Contains(err.Error(), testAPIKey) {
			t.Errorf("error leaks the API key: %v", err)
		}
	})
}
