// Package web serves the incident form, the JSON API and PDF downloads.
package web

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"vargento/internal/domain"
	"vargento/internal/engine"
	"vargento/internal/integrations/llm"
	"vargento/internal/labels"
	"vargento/internal/metrics"
)

//go:embed templates/*.html
var templateFS embed.FS

const (
	defaultMaxUploadMB = 32
	// Uploads larger than this are acknowledged by name only, not embedded.
	maxEmbeddedMediaBytes = 8 << 20
	similarShown          = 5
	rationaleTimeout      = 20 * time.Second
	notifyTimeout         = 15 * time.Second
)

// Notifier announces answered queries, e.g. to Slack.
type Notifier interface {
	NotifyVerdict(ctx context.Context, rec domain.PredictionRecord) error
}

// Rationalizer writes a short explanation for a verdict.
type Rationalizer interface {
	Rationale(ctx context.Context, req llm.RationaleRequest) (string, llm.Usage, error)
}

type Deps struct {
	Engine    *engine.Engine
	DB        *sql.DB
	Labels    *labels.Catalog
	Metrics   *metrics.Metrics
	Notifier  Notifier
	Rationale Rationalizer
	Logger    *zap.Logger
}

type Options struct {
	Brand          string
	MaxUploadMB    int
	ReportDir      string
	ArchiveReports bool
	Location       *time.Location
}

type Server struct {
	engine    *engine.Engine
	db        *sql.DB
	labels    *labels.Catalog
	metrics   *metrics.Metrics
	notifier  Notifier
	rationale Rationalizer
	opts      Options
	log       *zap.SugaredLogger
	tmpl      *template.Template

	bg    sync.WaitGroup
	newID func() string
	now   func() time.Time
}

func New(deps Deps, opts Options) (*Server, error) {
	if deps.Engine == nil || deps.DB == nil {
		return nil, fmt.Errorf("web: engine and db are required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.New()
	}
	if opts.Brand == "" {
		opts.Brand = "VARGENTO"
	}
	if opts.MaxUploadMB <= 0 {
		opts.MaxUploadMB = defaultMaxUploadMB
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}

	tmpl, err := template.New("").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("parse templates: %w", err)
	}

	return &Server{
		engine:    deps.Engine,
		db:        deps.DB,
		labels:    deps.Labels,
		metrics:   deps.Metrics,
		notifier:  deps.Notifier,
		rationale: deps.Rationale,
		opts:      opts,
		log:       deps.Logger.Sugar().Named("web"),
		tmpl:      tmpl,
		newID:     uuid.NewString,
		now:       time.Now,
	}, nil
}

// Router builds the gin engine with every route mounted.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())
	r.SetHTMLTemplate(s.tmpl)
	r.MaxMultipartMemory = int64(s.opts.MaxUploadMB) << 20

	r.GET("/", s.handleIndex)
	r.POST("/analyze", s.handleAnalyze)
	r.GET("/digest", s.handleDigestPage)
	r.GET("/reports/:id", s.handleReport)
	r.GET("/health", s.handleHealth)
	r.GET("/metrics", gin.WrapH(s.metrics.Handler()))

	api := r.Group("/api/v1")
	api.POST("/predict", s.handlePredict)
	api.GET("/model", s.handleModel)
	api.POST("/model/reload", s.handleReload)
	api.GET("/predictions", s.handleListPredictions)
	api.POST("/predictions/:id/correction", s.handleCorrection)
	api.GET("/stats", s.handleStats)
	return r
}

// Wait blocks until background notifications have finished.
func (s *Server) Wait() { s.bg.Wait() }

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if c.Request.URL.Path == "/metrics" || c.Request.URL.Path == "/health" {
			return
		}
		s.log.Infow("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"took", time.Since(start).Round(time.Millisecond).String(),
		)
	}
}

var templateFuncs = template.FuncMap{
	"percent": func(p float64) string { return fmt.Sprintf("%.1f%%", p*100) },
	"width":   func(p float64) string { return fmt.Sprintf("%.1f", p*100) },
	"inc":     func(i int) int { return i + 1 },
}

func (s *Server) display(label string) string {
	return s.labels.Display(label)
}

// HTTPServer wraps the router in an http.Server with sane timeouts.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
	}
}
