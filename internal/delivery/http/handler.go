package http

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/foodnutrition/pipeline/internal/domain"
	"github.com/foodnutrition/pipeline/internal/usecase"
)

// NutritionEnricher is the enrichment usecase as the API sees it
type NutritionEnricher interface {
	Enrich(ctx context.Context, req domain.EnrichRequest, forceRefresh bool) (*domain.EnrichmentResult, error)
	CacheStats(ctx context.Context) (*domain.CacheStats, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	enricher  NutritionEnricher
	batches   usecase.BatchGate
	validator usecase.ResultValidator
	uploadDir string
	logger    *zap.Logger
}

// NewHandler creates a new HTTP handler. validator may be nil, in which case
// enrichment responses carry no validation block.
func NewHandler(
	enricher NutritionEnricher,
	batches usecase.BatchGate,
	validator usecase.ResultValidator,
	uploadDir string,
	logger *zap.Logger,
) *Handler {
	if uploadDir == "" {
		uploadDir = os.TempDir()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		enricher:  enricher,
		batches:   batches,
		validator: validator,
		uploadDir: uploadDir,
		logger:    logger,
	}
}

// EnrichResponse is the body of a successful enrichment
type EnrichResponse struct {
	Result     *domain.EnrichmentResult     `json:"result"`
	Validation *usecase.NutritionValidation `json:"validation,omitempty"`
}

// BatchValidationResponse is a batch grade plus the CLI-equivalent exit code
type BatchValidationResponse struct {
	usecase.BatchValidation
	ExitCode int `json:"exit_code"`
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "foodnutrition-pipeline",
		"version": "1.0.0",
	})
}

// EnrichNutrition estimates nutrition for one product.
// ?force_refresh=true bypasses the cache.
func (h *Handler) EnrichNutrition(c *gin.Context) {
	if h.enricher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrichment is not configured"})
		return
	}

	var req domain.EnrichRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	force := false
	if raw := c.Query("force_refresh"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "force_refresh must be a boolean"})
			return
		}
		force = v
	}

	result, err := h.enricher.Enrich(c.Request.Context(), req, force)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidRequest) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("enrichment failed", zap.String("product", req.ProductName), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "enrichment failed"})
		return
	}
	if result == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no provider produced an estimate"})
		return
	}

	resp := EnrichResponse{Result: result}
	if h.validator != nil {
		resp.Validation = h.validator.Validate(c.Request.Context(), result, req.ProductName, req.Brand)
	}
	c.JSON(http.StatusOK, resp)
}

// CacheStats reports on the enrichment cache
func (h *Handler) CacheStats(c *gin.Context) {
	if h.enricher == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "enrichment is not configured"})
		return
	}

	stats, err := h.enricher.CacheStats(c.Request.Context())
	if err != nil {
		h.logger.Error("cache stats failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": domain.ErrCacheUnavailable.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// ValidateBatch grades an uploaded batch file sent as multipart field "file".
// The grade is returned with 200 whatever the status; FAIL is data, not an error.
func (h *Handler) ValidateBatch(c *gin.Context) {
	if h.batches == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "batch validation is not configured"})
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "multipart field \"file\" is required"})
		return
	}

	name := filepath.Base(file.Filename)
	dst := filepath.Join(h.uploadDir, uuid.NewString()+"_"+name)
	if err := c.SaveUploadedFile(file, dst); err != nil {
		h.logger.Error("failed to store upload", zap.String("file", name), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to store upload"})
		return
	}
	defer os.Remove(dst)

	validation := h.batches.Validate(dst)
	resp := BatchValidationResponse{BatchValidation: *validation, ExitCode: usecase.ExitCode(validation.Status)}
	resp.Path = name

	h.logger.Info("batch validated",
		zap.String("file", name),
		zap.String("status", string(validation.Status)),
		zap.Int("products", validation.TotalProducts),
	)
	c.JSON(http.StatusOK, resp)
}
