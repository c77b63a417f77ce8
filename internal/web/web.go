// Package web serves the login-protected upload form.
package web

import (
	"bytes"
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"fmt"
	"html/template"
	"image"
	"image/jpeg"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/nfnt/resize"

	"github.com/Brownie44l1/butterfly-api/internal/handlers"
	"github.com/Brownie44l1/butterfly-api/internal/imageio"
	"github.com/Brownie44l1/butterfly-api/internal/labels"
	"github.com/Brownie44l1/butterfly-api/internal/pipeline"
	"github.com/Brownie44l1/butterfly-api/internal/preprocess"
	"github.com/Brownie44l1/butterfly-api/internal/species"
	"github.com/Brownie44l1/butterfly-api/internal/store"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	previewSize    = 480
	previewQuality = 85
	historyLimit   = 50
)

// Store is what the pages need from persistence.
type Store interface {
	Authenticate(ctx context.Context, username, password string) error
	RecordPrediction(ctx context.Context, p *store.Prediction) error
	RecentPredictions(ctx context.Context, limit int) ([]store.Prediction, error)
}

type Options struct {
	Catalog   *species.Catalog
	Logger    *slog.Logger
	MaxUpload int64
	Timeout   time.Duration
}

type Server struct {
	pipeline  *pipeline.Pipeline
	store     Store
	catalog   *species.Catalog
	logger    *slog.Logger
	maxUpload int64
	timeout   time.Duration
}

func New(p *pipeline.Pipeline, st Store, opts Options) *Server {
	s := &Server{
		pipeline:  p,
		store:     st,
		catalog:   opts.Catalog,
		logger:    opts.Logger,
		maxUpload: opts.MaxUpload,
		timeout:   opts.Timeout,
	}
	if s.catalog == nil {
		s.catalog = species.Default()
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// Templates parses the embedded pages.
func Templates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"title":   handlers.TitleCase,
		"percent": handlers.FormatConfidence,
	}).ParseFS(templateFS, "templates/*.html")
}

// Register installs the templates and the authenticated page routes on r.
func (s *Server) Register(r *gin.Engine) error {
	tmpl, err := Templates()
	if err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	r.SetHTMLTemplate(tmpl)

	pages := r.Group("", BasicAuth(s.store, s.logger))
	pages.GET("/", s.Index)
	pages.POST("/", handlers.LimitBody(s.maxUpload), s.Upload)
	pages.GET("/about", s.About)
	pages.GET("/history", s.History)
	return nil
}

// Result is what the index page shows after a successful upload.
type Result struct {
	handlers.PredictionResponse
	ImageURL template.URL
}

type page struct {
	Title       string
	User        string
	Error       string
	Result      *Result
	Classes     int
	Predictions []store.Prediction
}

func (s *Server) page(c *gin.Context, title string) page {
	return page{Title: title, User: c.GetString(gin.AuthUserKey), Classes: labels.Count}
}

func (s *Server) Index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.page(c, "Classify"))
}

func (s *Server) About(c *gin.Context) {
	c.HTML(http.StatusOK, "about.html", s.page(c, "About"))
}

func (s *Server) History(c *gin.Context) {
	p := s.page(c, "History")
	rows, err := s.store.RecentPredictions(c.Request.Context(), historyLimit)
	if err != nil {
		s.logger.Error("load history", "error", err)
		p.Error = "History is unavailable right now."
		c.HTML(http.StatusInternalServerError, "history.html", p)
		return
	}
	p.Predictions = rows
	c.HTML(http.StatusOK, "history.html", p)
}

// Upload classifies the posted image and renders it beside the result.
func (s *Server) Upload(c *gin.Context) {
	p := s.page(c, "Classify")

	res, status, err := s.classify(c)
	if err != nil {
		s.logger.Warn("web prediction failed", "user", p.User, "error", err)
		p.Error = ErrorMessage(err)
		c.HTML(status, "index.html", p)
		return
	}
	p.Result = res
	c.HTML(http.StatusOK, "index.html", p)
}

func (s *Server) classify(c *gin.Context) (*Result, int, error) {
	fh, err := c.FormFile("image")
	if handlers.BodyTooLarge(err) {
		return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("%w: more than %d bytes", imageio.ErrTooLarge, s.maxUpload)
	}
	if err != nil {
		return nil, http.StatusBadRequest, imageio.ErrNoImage
	}
	f, err := fh.Open()
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	defer f.Close()

	dec, err := imageio.Decode(f, s.maxUpload)
	if err != nil {
		return nil, http.StatusBadRequest, err
	}
	if s.pipeline == nil {
		return nil, http.StatusServiceUnavailable, errors.New("model not loaded")
	}

	preview, err := PreviewURL(dec.Image)
	if err != nil {
		return nil, http.StatusInternalServerError, err
	}

	ctx := c.Request.Context()
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	pred, err := s.pipeline.Classify(ctx, dec.Image)
	if err != nil {
		return nil, handlers.StatusFor(err), err
	}

	row := &store.Prediction{
		ID:         uuid.NewString(),
		Source:     store.SourceWeb,
		Username:   c.GetString(gin.AuthUserKey),
		Filename:   fh.Filename,
		Label:      pred.Label,
		Confidence: pred.Confidence,
	}
	if err := s.store.RecordPrediction(ctx, row); err != nil {
		s.logger.Warn("could not record prediction", "id", row.ID, "error", err)
	}

	return &Result{
		PredictionResponse: handlers.NewPredictionResponse(pred, s.catalog),
		ImageURL:           preview,
	}, http.StatusOK, nil
}

// ErrorMessage is the text shown when an upload cannot be classified.
func ErrorMessage(err error) string {
	return fmt.Sprintf("Could not identify the image. Please try another photo. (Error: %v)", err)
}

// PreviewURL re-encodes img as a bounded JPEG data URL.
func PreviewURL(img image.Image) (template.URL, error) {
	thumb := resize.Thumbnail(previewSize, previewSize, preprocess.ToRGB(img), resize.Lanczos3)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: previewQuality}); err != nil {
		return "", fmt.Errorf("encode preview: %w", err)
	}
	return template.URL("data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())), nil
}
