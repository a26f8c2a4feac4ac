package alerts

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	apierrors "github.com/prakashnk/trafficalert/internal/errors"
	"github.com/prakashnk/trafficalert/internal/logger"
	"github.com/prakashnk/trafficalert/internal/maps"
)

// Handler exposes the trip alert service over HTTP.
type Handler struct {
	service *Service
	logger  *logger.Logger
}

// NewHandler creates a new trip alert handler
func NewHandler(service *Service, logger *logger.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes mounts the API routes on router.
func (h *Handler) RegisterRoutes(router gin.IRouter) {
	router.GET("/health", h.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/trips", h.CheckTrip)
		api.GET("/places/autocomplete", h.Autocomplete)
	}
}

// Health handles GET /health
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// CheckTrip handles POST /api/v1/trips
func (h *Handler) CheckTrip(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("alerts_handler")

	var req TripRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn("failed to bind trip request", slog.String("error", err.Error()))
		apierrors.AbortWithBadRequest(c, "invalid request body", map[string]interface{}{"reason": err.Error()})
		return
	}

	outcome, err := h.service.CheckTrip(c.Request.Context(), req)
	if err != nil {
		h.abortWithError(c, log, err)
		return
	}

	log.Info("trip checked",
		slog.String("eta", outcome.ETAText),
		slog.Bool("below_threshold", outcome.BelowThreshold),
		slog.String("alert_status", string(outcome.Alert.Status)))

	c.JSON(http.StatusOK, outcome)
}

// Autocomplete handles GET /api/v1/places/autocomplete
// Query parameters:
//   - input: partially typed address; empty yields no suggestions
func (h *Handler) Autocomplete(c *gin.Context) {
	log := h.logger.WithContext(c.Request.Context()).WithComponent("alerts_handler")

	suggestions, err := h.service.SuggestAddresses(c.Request.Context(), c.Query("input"))
	if err != nil {
		h.abortWithError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, SuggestionsResponse{Suggestions: suggestions})
}

// abortWithError maps service errors onto API responses. Provider messages
// are user safe; anything unrecognized is reported as an internal error.
func (h *Handler) abortWithError(c *gin.Context, log *logger.Logger, err error) {
	var lookupErr *maps.LookupError
	var configErr *apierrors.ConfigError

	switch {
	case errors.Is(err, ErrEmailRequired):
		apierrors.AbortWithBadRequest(c, err.Error(), nil)

	case errors.As(err, &lookupErr) && lookupErr.Kind == maps.KindInvalidInput:
		apierrors.AbortWithBadRequest(c, lookupErr.Message, nil)

	case errors.As(err, &lookupErr):
		log.Warn("mapping lookup failed",
			slog.String("operation", lookupErr.Operation),
			slog.String("kind", string(lookupErr.Kind)),
			slog.String("provider_status", lookupErr.ProviderStatus),
			slog.Int("status_code", lookupErr.StatusCode))
		apierrors.AbortWithBadGateway(c, lookupErr.Message, map[string]interface{}{"kind": string(lookupErr.Kind)})

	case errors.As(err, &configErr):
		log.Error("service is missing configuration", slog.String("setting", configErr.Setting))
		apierrors.AbortWithServiceUnavailable(c, configErr.Message, map[string]interface{}{"setting": configErr.Setting})

	default:
		h.logger.WithComponent("alerts_handler").LogError(c.Request.Context(), err, "unexpected error")
		apierrors.AbortWithInternal(c, "internal error", nil)
	}
}
