package alerts

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prakashnk/trafficalert/internal/config"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/maps"
)

func setupRouter(lookup RouteLookup, sender AlertSender) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(logger.RequestLoggingMiddleware(log))

	svc := NewService(testConfig(config.AlertPolicyBelowThreshold), lookup, sender, log)
	NewHandler(svc, log).RegisterRoutes(router)

	return router
}

func postTrip(router *gin.Engine, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/trips", bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	router := setupRouter(&fakeLookup{}, &fakeSender{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != `{"status":"ok"}` {
		t.Errorf("unexpected body %s", w.Body.String())
	}
}

func TestCheckTripHandler_Success(t *testing.T) {
	sender := &fakeSender{}
	router := setupRouter(&fakeLookup{seconds: 1080}, sender)

	w := postTrip(router, `{"origin":"A","destination":"B","threshold_minutes":30,"notify":true,"email":"driver@example.com"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var body map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body["eta_text"] != "18 min" {
		t.Errorf("expected eta_text %q, got %v", "18 min", body["eta_text"])
	}
	if body["below_threshold"] != true {
		t.Errorf("expected below_threshold true, got %v", body["below_threshold"])
	}
	if body["threshold_minutes"] != float64(30) {
		t.Errorf("expected threshold_minutes 30, got %v", body["threshold_minutes"])
	}
	alert, _ := body["alert"].(map[string]interface{})
	if alert["status"] != string(AlertSent) {
		t.Errorf("expected alert status %q, got %v", AlertSent, alert["status"])
	}
	if len(sender.sent) != 1 {
		t.Errorf("expected 1 alert, got %d", len(sender.sent))
	}
}

func TestCheckTripHandler_Errors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		lookupErr  error
		wantStatus int
		wantError  string
	}{
		{
			name:       "malformed body",
			body:       `{"origin":`,
			wantStatus: http.StatusBadRequest,
			wantError:  "invalid request body",
		},
		{
			name:       "notify without email",
			body:       `{"origin":"A","destination":"B","notify":true}`,
			wantStatus: http.StatusBadRequest,
			wantError:  ErrEmailRequired.Error(),
		},
		{
			name:       "invalid input",
			body:       `{"origin":"","destination":"B"}`,
			lookupErr:  &maps.LookupError{Kind: maps.KindInvalidInput, Message: "Please provide both origin and destination addresses."},
			wantStatus: http.StatusBadRequest,
			wantError:  "Please provide both origin and destination addresses.",
		},
		{
			name:       "provider failure",
			body:       `{"origin":"A","destination":"B"}`,
			lookupErr:  &maps.LookupError{Kind: maps.KindProvider, ProviderStatus: "REQUEST_DENIED", Message: "The provided API key is invalid."},
			wantStatus: http.StatusBadGateway,
			wantError:  "The provided API key is invalid.",
		},
		{
			name:       "missing maps key",
			body:       `{"origin":"A","destination":"B"}`,
			lookupErr:  apierrors.NewConfigError("GOOGLE_MAPS_API_KEY", "Google Maps API key missing"),
			wantStatus: http.StatusServiceUnavailable,
			wantError:  "Google Maps API key missing",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := setupRouter(&fakeLookup{err: tt.lookupErr}, &fakeSender{})

			w := postTrip(router, tt.body)

			if w.Code != tt.wantStatus {
				t.Fatalf("expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			var apiErr apierrors.APIError
			if err := json.Unmarshal(w.Body.Bytes(), &apiErr); err != nil {
				t.Fatalf("failed to decode error body: %v", err)
			}
			if apiErr.Error != tt.wantError {
				t.Errorf("expected error %q, got %q", tt.wantError, apiErr.Error)
			}
			if apiErr.RequestID == "" || apiErr.RequestID != w.Header().Get(logger.RequestIDHeader) {
				t.Errorf("expected request id %q in body, got %q", w.Header().Get(logger.RequestIDHeader), apiErr.RequestID)
			}
		})
	}
}

func TestAutocompleteHandler(t *testing.T) {
	lookup := &fakeLookup{suggestions: []maps.AddressSuggestion{
		{Label: "1600 Amphitheatre Pkwy, Mountain View, CA", PlaceID: "place-1"},
		{Label: "1600 Pennsylvania Ave NW, Washington, DC"},
	}}
	router := setupRouter(lookup, &fakeSender{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/places/autocomplete?input=1600", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	if lookup.lastInput != "1600" {
		t.Errorf("expected input %q to be forwarded, got %q", "1600", lookup.lastInput)
	}

	var resp SuggestionsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if len(resp.Suggestions) != 2 || resp.Suggestions[0].PlaceID != "place-1" || resp.Suggestions[1].PlaceID != "" {
		t.Errorf("unexpected suggestions %+v", resp.Suggestions)
	}
}

func TestAutocompleteHandler_ProviderFailure(t *testing.T) {
	lookup := &fakeLookup{err: &maps.LookupError{Kind: maps.KindHTTPStatus, StatusCode: 500, Message: "Places Autocomplete API returned status 500"}}
	router := setupRouter(lookup, &fakeSender{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/places/autocomplete?input=main", nil))

	if w.Code != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", w.Code)
	}
}
