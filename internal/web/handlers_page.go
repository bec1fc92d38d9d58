package web

import (
	"database/sql"
	"errors"
	"html/template"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vargento/internal/classifier"
	"vargento/internal/engine"
	"vargento/internal/report"
	"vargento/internal/schedule"
	"vargento/internal/storage/sqlite"
)

type labelView struct {
	Label       string
	Display     string
	Description string
}

type probabilityView struct {
	Display     string
	Probability float64
}

type indexPage struct {
	Brand      string
	Ready      bool
	ModelError string
	Report     classifier.TrainingReport
	Labels     []labelView
	Error      string
	Form       analyzeInput
}

type resultPage struct {
	Brand         string
	ID            string
	Stored        bool
	Description   string
	Display       string
	Confidence    float64
	Probabilities []probabilityView
	Similar       []classifier.SimilarIncident
	Rationale     string
	VideoURL      string
	KeyFrame      int
	Media         *media
	Accuracy      float64
}

type digestPage struct {
	Brand string
	Days  int
	Body  template.HTML
}

func (s *Server) indexData(c *gin.Context) indexPage {
	page := indexPage{Brand: s.opts.Brand}
	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		page.ModelError = err.Error()
		return page
	}
	page.Ready = true
	page.Report = snap.Report
	for _, l := range snap.Model.Labels() {
		page.Labels = append(page.Labels, labelView{Label: l, Display: s.display(l), Description: s.labels.Description(l)})
	}
	return page
}

func (s *Server) handleIndex(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", s.indexData(c))
}

func (s *Server) handleAnalyze(c *gin.Context) {
	in := analyzeInput{
		Description: c.PostForm("description"),
		VideoURL:    c.PostForm("video_url"),
	}
	if kf := strings.TrimSpace(c.PostForm("key_frame")); kf != "" {
		n, err := strconv.Atoi(kf)
		if err != nil {
			s.renderFormError(c, http.StatusBadRequest, in, errBadKeyFrame)
			return
		}
		in.KeyFrame = n
	}

	var upload *media
	if fh, err := c.FormFile("media"); err == nil {
		upload, err = readMedia(fh)
		if err != nil {
			s.renderFormError(c, http.StatusBadRequest, in, err)
			return
		}
		in.MediaName = upload.Name
		in.MediaType = upload.Type
	} else if !errors.Is(err, http.ErrMissingFile) {
		s.renderFormError(c, http.StatusBadRequest, in, err)
		return
	}

	a, err := s.analyze(c.Request.Context(), in)
	if err != nil {
		s.renderFormError(c, statusFor(err), in, err)
		return
	}

	page := resultPage{
		Brand:       s.opts.Brand,
		ID:          a.Record.ID,
		Stored:      a.Stored,
		Description: a.Record.Description,
		Display:     a.Record.DisplayLabel,
		Confidence:  a.Record.Confidence,
		Similar:     a.Similar,
		Rationale:   a.Record.Rationale,
		VideoURL:    a.Record.VideoURL,
		KeyFrame:    a.Record.KeyFrame,
		Media:       upload,
		Accuracy:    a.Snapshot.Report.Accuracy,
	}
	for _, p := range a.Prediction.Probabilities {
		page.Probabilities = append(page.Probabilities, probabilityView{Display: s.display(p.Label), Probability: p.Probability})
	}
	c.HTML(http.StatusOK, "result.html", page)
}

func (s *Server) renderFormError(c *gin.Context, status int, in analyzeInput, err error) {
	page := s.indexData(c)
	page.Error = userMessage(err)
	page.Form = in
	c.HTML(status, "index.html", page)
}

func (s *Server) handleDigestPage(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, 1, 365)
	if !ok {
		c.String(http.StatusBadRequest, "days must be between 1 and 365")
		return
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	md, err := schedule.BuildDigest(s.db, since, s.opts.Brand, s.display)
	if err != nil {
		s.log.Errorf("digest page: %v", err)
		c.String(http.StatusInternalServerError, "could not build digest")
		return
	}
	c.HTML(http.StatusOK, "digest.html", digestPage{
		Brand: s.opts.Brand,
		Days:  days,
		Body:  template.HTML(report.HTML(md)),
	})
}

// handleReport renders the PDF for a stored prediction. Probabilities and
// similar incidents are recomputed from the serving model and only shown
// while that model still agrees with the stored verdict.
func (s *Server) handleReport(c *gin.Context) {
	id := strings.TrimSuffix(c.Param("id"), ".pdf")
	rec, err := sqlite.GetPrediction(s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.String(http.StatusNotFound, "prediction not found")
		return
	}
	if err != nil {
		s.log.Errorf("load prediction id=%s: %v", id, err)
		c.String(http.StatusInternalServerError, "could not load prediction")
		return
	}

	var (
		probs   []classifier.LabelProbability
		similar []classifier.SimilarIncident
		snap    *engine.Snapshot
	)
	if cur, err := s.engine.Snapshot(c.Request.Context()); err == nil {
		snap = cur
		if pred, err := cur.Model.Predict(rec.Description); err == nil && pred.Label == rec.Label {
			probs = pred.Probabilities
			similar = cur.Similar.TopK(rec.Description, similarShown)
		}
	}
	if len(probs) == 0 {
		probs = []classifier.LabelProbability{{Label: rec.Label, Probability: rec.Confidence}}
	}

	pdf, err := report.RenderPDF(s.summary(rec, probs, similar, snap))
	if err != nil {
		s.log.Errorf("render report id=%s: %v", id, err)
		c.String(http.StatusInternalServerError, "could not render report")
		return
	}
	name := report.Filename(s.opts.Brand, rec.ID, rec.CreatedAt.In(s.opts.Location))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/pdf", pdf)
}

func (s *Server) handleHealth(c *gin.Context) {
	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "model_ready": false, "error": err.Error()})
		return
	}
	body := gin.H{
		"status":      "ok",
		"model_ready": true,
		"trained_at":  snap.TrainedAt.UTC().Format(time.RFC3339),
	}
	if reloadErr := s.engine.LastError(); reloadErr != nil {
		body["last_reload_error"] = reloadErr.Error()
	}
	c.JSON(http.StatusOK, body)
}
