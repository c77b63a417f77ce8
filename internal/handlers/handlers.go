// Package handlers serves the JSON prediction API.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/Brownie44l1/butterfly-api/internal/imageio"
	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/model"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/postprocess"
	"github.com/Brownie44l1/butterfly-api/internal/preprocess"
	"github.com/Brownie44l1/butterfly-api/internal/species"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

// RequestIDHeader carries the id requests are logged under. Clients may
// repeat it, so history rows get their own id.
const RequestIDHeader = "X-Request-ID"

// History is the subset of the store the API writes to.
type History interface {
	RecordPrediction(ctx context.Context, p *store.Prediction) error
	Ping(ctx context.Context) error
}

type Options struct {
	Catalog   *species.Catalog
	History   History
	Logger    *slog.Logger
	MaxUpload int64
	Timeout   time.Duration
}

type Handler struct {
	pipeline  *pipeline.Pipeline
	catalog   *species.Catalog
	history   History
	logger    *slog.Logger
	maxUpload int64
	timeout   time.Duration
}

// NewHandler accepts a nil pipeline; every prediction then answers 503.
func NewHandler(p *pipeline.Pipeline, opts Options) *Handler {
	h := &Handler{
		pipeline:  p,
		catalog:   opts.Catalog,
		history:   opts.History,
		logger:    opts.Logger,
		maxUpload: opts.MaxUpload,
		timeout:   opts.Timeout,
	}
	if h.catalog == nil {
		h.catalog = species.Default()
	}
	if h.logger == nil {
		h.logger = slog.Default()
	}
	return h
}

// Register mounts the API routes behind the CORS middleware.
func (h *Handler) Register(r gin.IRouter, origins []string) {
	api := r.Group("", CORS(origins))
	api.GET("/health", h.Health)
	api.OPTIONS("/predict", Preflight(origins))
	api.POST("/predict", LimitBody(h.maxUpload), h.PredictFromImage)
	api.OPTIONS("/predict/tensor", Preflight(origins))
	api.POST("/predict/tensor", h.PredictTensor)
}

// PredictionResponse is the JSON body of a successful prediction.
type PredictionResponse struct {
	Prediction     string `json:"prediction"`
	Confidence     string `json:"confidence"`
	ScientificName string `json:"scientific_name"`
	Description    string `json:"description"`
	Habitat        string `json:"habitat"`
	CommonIn       string `json:"common_in"`
}

// NewPredictionResponse formats pred for display.
func NewPredictionResponse(pred postprocess.Prediction, catalog *species.Catalog) PredictionResponse {
	d := catalog.Lookup(pred.Label)
	return PredictionResponse{
		Prediction:     TitleCase(pred.Label),
		Confidence:     FormatConfidence(pred.Confidence),
		ScientificName: d.ScientificName,
		Description:    d.Description,
		Habitat:        d.Habitat,
		CommonIn:       d.CommonIn,
	}
}

// TitleCase turns "RED ADMIRAL" into "Red Admiral".
func TitleCase(label string) string {
	// Casers are stateful, so one per call.
	return cases.Title(language.English).String(label)
}

// FormatConfidence renders a probability as a percentage with one decimal.
func FormatConfidence(p float64) string {
	return fmt.Sprintf("%.1f%%", p*100)
}

func (h *Handler) Health(c *gin.Context) {
	if h.pipeline == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "model not loaded"})
		return
	}

	rt := h.pipeline.Runtime()
	resp := gin.H{
		"status":  "healthy",
		"model":   rt.Info(),
		"classes": labels.Count,
	}
	if p, ok := rt.(interface{ Size() int }); ok {
		resp["workers"] = p.Size()
	}
	if h.history != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := h.history.Ping(ctx); err != nil {
			resp["database"] = err.Error()
		} else {
			resp["database"] = "ok"
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) PredictFromImage(c *gin.Context) {
	id := requestID(c)

	fh, err := c.FormFile("image")
	if BodyTooLarge(err) {
		h.logger.Info("rejected upload", "request_id", id, "error", err)
		c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{
			"error": fmt.Sprintf("%v: more than %d bytes", imageio.ErrTooLarge, h.maxUpload),
		})
		return
	}
	if err != nil {
		h.logger.Debug("missing image field", "request_id", id, "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "No image provided. Use 'image' as the form field name"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	defer f.Close()

	dec, err := imageio.Decode(f, h.maxUpload)
	if err != nil {
		h.logger.Info("rejected upload", "request_id", id, "file", fh.Filename, "error", err)
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	h.logger.Debug("received image", "request_id", id, "file", fh.Filename,
		"format", dec.Format, "bytes", dec.Size, "bounds", dec.Image.Bounds())

	if h.pipeline == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "model not loaded"})
		return
	}

	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()
	pred, err := h.pipeline.Classify(ctx, dec.Image)
	if err != nil {
		h.fail(c, id, err)
		return
	}

	h.record(ctx, id, fh.Filename, pred)
	c.JSON(http.StatusOK, NewPredictionResponse(pred, h.catalog))
}

// TensorRequest is a preprocessed NHWC BGR input.
type TensorRequest struct {
	Image []float32 `json:"image"`
}

func (h *Handler) PredictTensor(c *gin.Context) {
	id := requestID(c)

	var req TensorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON"})
		return
	}
	if len(req.Image) != preprocess.Len {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Expected %d values, got %d", preprocess.Len, len(req.Image)),
		})
		return
	}
	if h.pipeline == nil {
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "model not loaded"})
		return
	}

	ctx, cancel := h.withTimeout(c.Request.Context())
	defer cancel()
	pred, err := h.pipeline.ClassifyTensor(ctx, req.Image)
	if err != nil {
		h.fail(c, id, err)
		return
	}

	h.record(ctx, id, "", pred)
	c.JSON(http.StatusOK, NewPredictionResponse(pred, h.catalog))
}

// StatusFor maps a pipeline error to an HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrClosed),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(c *gin.Context, id string, err error) {
	status := StatusFor(err)
	h.logger.Error("prediction failed", "request_id", id, "status", status, "error", err)
	c.AbortWithStatusJSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) record(ctx context.Context, id, filename string, pred postprocess.Prediction) {
	if h.history == nil {
		h.logger.Info("prediction", "request_id", id, "label", pred.Label, "confidence", pred.Confidence)
		return
	}
	row := &store.Prediction{
		ID:         uuid.NewString(),
		Source:     store.SourceAPI,
		Filename:   filename,
		Label:      pred.Label,
		Confidence: pred.Confidence,
	}
	h.logger.Info("prediction", "request_id", id, "prediction_id", row.ID,
		"label", pred.Label, "confidence", pred.Confidence)
	if err := h.history.RecordPrediction(ctx, row); err != nil {
		h.logger.Warn("could not record prediction", "request_id", id, "error", err)
	}
}

func (h *Handler) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, h.timeout)
}

func requestID(c *gin.Context) string {
	id := c.GetHeader(RequestIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	c.Header(RequestIDHeader, id)
	return id
}
