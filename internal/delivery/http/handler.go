package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/pricematch/backend/internal/domain"
	"github.com/pricematch/backend/internal/usecase"
)

// Product search limits
const (
	defaultSearchLimit = 20
	maxSearchLimit     = 100
)

// HealthChecker reports whether a backing store is reachable
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	matcher  *usecase.MatchService
	manual   *usecase.ManualMappingService
	mappings *usecase.MappingCache
	catalog  domain.CatalogRepository
	database HealthChecker
	logger   zerolog.Logger
}

// HandlerDeps groups the handler's collaborators
type HandlerDeps struct {
	Matcher  *usecase.MatchService
	Manual   *usecase.ManualMappingService
	Mappings *usecase.MappingCache
	Catalog  domain.CatalogRepository
	Database HealthChecker
}

// NewHandler creates a new HTTP handler
func NewHandler(deps HandlerDeps, logger zerolog.Logger) *Handler {
	return &Handler{
		matcher:  deps.Matcher,
		manual:   deps.Manual,
		mappings: deps.Mappings,
		catalog:  deps.Catalog,
		database: deps.Database,
		logger:   logger.With().Str("component", "http").Logger(),
	}
}

// HealthCheck reports database reachability and the loaded mapping snapshot
func (h *Handler) HealthCheck(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	body := gin.H{"service": "pricematch-backend", "version": "1.0.0"}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := h.database.Ping(ctx); err != nil {
		h.logger.Warn().Err(err).Msg("health check: database unreachable")
		status, code = "degraded", http.StatusServiceUnavailable
		body["database"] = "unreachable"
	} else {
		body["database"] = "ok"
	}

	if snap, err := h.mappings.Snapshot(); err != nil {
		status, code = "degraded", http.StatusServiceUnavailable
		body["mappings"] = gin.H{"loaded": false}
	} else {
		body["mappings"] = gin.H{
			"loaded":    true,
			"version":   snap.Version,
			"rows":      len(snap.Mappings),
			"loaded_at": snap.LoadedAt.UTC().Format(time.RFC3339),
		}
	}

	body["status"] = status
	c.JSON(code, body)
}

// MatchItem handles POST /api/match-item
func (h *Handler) MatchItem(c *gin.Context) {
	var req domain.MatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "request body must be JSON with an itemName field",
		})
		return
	}

	resp, err := h.matcher.Match(c.Request.Context(), &req)
	if err != nil {
		h.respondError(c, err, gin.H{"success": false})
		return
	}

	c.JSON(http.StatusOK, resp)
}

// SearchProducts handles GET /api/search-products?store=&q=&limit=
func (h *Handler) SearchProducts(c *gin.Context) {
	store := domain.StoreKey(c.Query("store"))
	if !domain.IsKnownStore(store) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "store must be 'tesco' or 'sainsburys'"})
		return
	}

	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "q is required"})
		return
	}

	limit := defaultSearchLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxSearchLimit)
	}

	products, err := h.catalog.SearchProducts(c.Request.Context(), store, query, limit)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	if products == nil {
		products = []domain.RawProduct{}
	}

	c.JSON(http.StatusOK, gin.H{"store": store, "query": query, "products": products})
}

// ListManualMappings handles GET /api/admin/manual-mappings
func (h *Handler) ListManualMappings(c *gin.Context) {
	mappings, err := h.manual.List(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{"manual_mappings": mappings})
}

// CreateManualMapping handles POST /api/admin/manual-mappings
func (h *Handler) CreateManualMapping(c *gin.Context) {
	var input usecase.ManualMappingInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	m, err := h.manual.Create(c.Request.Context(), input)
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusCreated, m)
}

// GetManualMapping handles GET /api/admin/manual-mappings/:id
func (h *Handler) GetManualMapping(c *gin.Context) {
	m, err := h.manual.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteManualMapping handles DELETE /api/admin/manual-mappings/:id
func (h *Handler) DeleteManualMapping(c *gin.Context) {
	if err := h.manual.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.Status(http.StatusNoContent)
}

// RefreshMappings handles POST /api/admin/mappings/refresh, forcing a
// snapshot reload after a build.
func (h *Handler) RefreshMappings(c *gin.Context) {
	snap, err := h.mappings.Refresh(c.Request.Context())
	if err != nil {
		h.respondError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"version":   snap.Version,
		"rows":      len(snap.Mappings),
		"loaded_at": snap.LoadedAt.UTC().Format(time.RFC3339),
	})
}

// respondError writes err with the status it maps to. Extra fields are
// merged into the body.
func (h *Handler) respondError(c *gin.Context, err error, extra gin.H) {
	code := statusFor(err)
	message := err.Error()
	if code == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		message = "internal server error"
	}

	body := gin.H{"error": message}
	for k, v := range extra {
		body[k] = v
	}
	c.JSON(code, body)
}

// statusFor maps domain errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownStore):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrManualMappingNotFound), errors.Is(err, domain.ErrProductNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrManualMappingConflict):
		return http.StatusConflict
	case errors.Is(err, domain.ErrDisambiguationFailed):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrCacheUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
