package web

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"vargento/internal/classifier"
	"vargento/internal/dataset"
	"vargento/internal/domain"
	"vargento/internal/storage/sqlite"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

type predictRequest struct {
	Text     string `json:"text"`
	VideoURL string `json:"video_url"`
	KeyFrame int    `json:"key_frame"`
}

type probabilityJSON struct {
	Label        string  `json:"label"`
	DisplayLabel string  `json:"display_label"`
	Probability  float64 `json:"probability"`
}

type similarJSON struct {
	Description string  `json:"description"`
	Decision    string  `json:"decision"`
	Score       float64 `json:"score"`
}

type predictResponse struct {
	ID            string            `json:"id"`
	Label         string            `json:"label"`
	DisplayLabel  string            `json:"display_label"`
	Confidence    float64           `json:"confidence"`
	Probabilities []probabilityJSON `json:"probabilities"`
	Similar       []similarJSON     `json:"similar"`
	Rationale     string            `json:"rationale,omitempty"`
	ReportURL     string            `json:"report_url,omitempty"`
}

type predictionJSON struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Label        string    `json:"label"`
	DisplayLabel string    `json:"display_label"`
	Confidence   float64   `json:"confidence"`
	Algorithm    string    `json:"algorithm"`
	VideoURL     string    `json:"video_url,omitempty"`
	MediaName    string    `json:"media_name,omitempty"`
	KeyFrame     int       `json:"key_frame,omitempty"`
	Rationale    string    `json:"rationale,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

type correctionRequest struct {
	Label       string `json:"label"`
	CorrectedBy string `json:"corrected_by"`
	Note        string `json:"note"`
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var insufficient *classifier.InsufficientDataError
	var loadErr *dataset.DataLoadError
	switch {
	case errors.Is(err, classifier.ErrEmptyInput):
		return http.StatusUnprocessableEntity
	case errors.Is(err, errBadVideoURL), errors.Is(err, errBadKeyFrame):
		return http.StatusBadRequest
	case errors.Is(err, ErrModelUnavailable), errors.As(err, &insufficient), errors.As(err, &loadErr):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// userMessage is the text shown on the form for a failed analysis.
func userMessage(err error) string {
	if errors.Is(err, classifier.ErrEmptyInput) {
		return "Describe the incident before asking for a decision."
	}
	return err.Error()
}

func intQuery(c *gin.Context, key string, def, min, max int) (int, bool) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

func (s *Server) handlePredict(c *gin.Context) {
	var req predictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	a, err := s.analyze(c.Request.Context(), analyzeInput{
		Description: req.Text,
		VideoURL:    req.VideoURL,
		KeyFrame:    req.KeyFrame,
	})
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}

	resp := predictResponse{
		ID:            a.Record.ID,
		Label:         a.Record.Label,
		DisplayLabel:  a.Record.DisplayLabel,
		Confidence:    a.Record.Confidence,
		Probabilities: make([]probabilityJSON, 0, len(a.Prediction.Probabilities)),
		Similar:       make([]similarJSON, 0, len(a.Similar)),
		Rationale:     a.Record.Rationale,
	}
	for _, p := range a.Prediction.Probabilities {
		resp.Probabilities = append(resp.Probabilities, probabilityJSON{Label: p.Label, DisplayLabel: s.display(p.Label), Probability: p.Probability})
	}
	for _, sim := range a.Similar {
		resp.Similar = append(resp.Similar, similarJSON{Description: sim.Description, Decision: sim.Decision, Score: sim.Score})
	}
	if a.Stored {
		resp.ReportURL = "/reports/" + a.Record.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleModel(c *gin.Context) {
	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	labels := make([]gin.H, 0, len(snap.Model.Labels()))
	for _, l := range snap.Model.Labels() {
		labels = append(labels, gin.H{"label": l, "display_label": s.display(l), "examples": snap.Report.LabelCounts[l]})
	}
	c.JSON(http.StatusOK, gin.H{
		"algorithm":       snap.Report.Algorithm,
		"labels":          labels,
		"vocabulary_size": snap.Report.VocabularySize,
		"accuracy":        snap.Report.Accuracy,
		"train_size":      snap.Report.TrainSize,
		"test_size":       snap.Report.TestSize,
		"stratified":      snap.Report.Stratified,
		"encoding":        snap.Encoding,
		"dropped_rows":    snap.Dropped,
		"trained_at":      snap.TrainedAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleReload(c *gin.Context) {
	snap, err := s.engine.Reload(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"algorithm":  snap.Report.Algorithm,
		"accuracy":   snap.Report.Accuracy,
		"train_size": snap.Report.TrainSize,
		"test_size":  snap.Report.TestSize,
		"stratified": snap.Report.Stratified,
	})
}

func (s *Server) handleListPredictions(c *gin.Context) {
	limit, ok := intQuery(c, "limit", defaultListLimit, 1, maxListLimit)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
		return
	}
	recs, err := sqlite.ListRecentPredictions(s.db, limit)
	if err != nil {
		s.log.Errorf("list predictions: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list predictions"})
		return
	}
	out := make([]predictionJSON, 0, len(recs))
	for _, r := range recs {
		out = append(out, predictionJSON{
			ID:           r.ID,
			Description:  r.Description,
			Label:        r.Label,
			DisplayLabel: s.display(r.Label),
			Confidence:   r.Confidence,
			Algorithm:    r.Algorithm,
			VideoURL:     r.VideoURL,
			MediaName:    r.MediaName,
			KeyFrame:     r.KeyFrame,
			Rationale:    r.Rationale,
			CreatedAt:    r.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"predictions": out})
}

func (s *Server) handleCorrection(c *gin.Context) {
	var req correctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.Label = strings.TrimSpace(req.Label)
	if req.Label == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "label is required"})
		return
	}

	id := c.Param("id")
	rec, err := sqlite.GetPrediction(s.db, id)
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "prediction not found"})
		return
	}
	if err != nil {
		s.log.Errorf("load prediction id=%s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load prediction"})
		return
	}

	snap, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	if !snap.Model.HasLabel(req.Label) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "unknown label " + strconv.Quote(req.Label), "labels": snap.Model.Labels()})
		return
	}

	corr := domain.Correction{
		PredictionID:   rec.ID,
		OriginalLabel:  rec.Label,
		CorrectedLabel: req.Label,
		CorrectedBy:    strings.TrimSpace(req.CorrectedBy),
		Note:           strings.TrimSpace(req.Note),
		CorrectedAt:    s.now(),
	}
	corrID, err := sqlite.InsertCorrection(s.db, corr)
	if err != nil {
		s.log.Errorf("store correction prediction=%s: %v", rec.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not store correction"})
		return
	}
	s.metrics.ObserveCorrection(rec.Label)
	s.log.Infof("correction prediction=%s from=%s to=%s by=%s", rec.ID, rec.Label, req.Label, corr.CorrectedBy)
	c.JSON(http.StatusCreated, gin.H{
		"id":              corrID,
		"prediction_id":   rec.ID,
		"original_label":  rec.Label,
		"corrected_label": req.Label,
	})
}

func (s *Server) handleStats(c *gin.Context) {
	days, ok := intQuery(c, "days", 7, 1, 365)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}
	since := s.now().Add(-time.Duration(days) * 24 * time.Hour)
	stats, err := sqlite.GetPredictionStats(s.db, since)
	if err != nil {
		s.log.Errorf("prediction stats: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stats"})
		return
	}
	counts, err := sqlite.GetLabelCounts(s.db, since)
	if err != nil {
		s.log.Errorf("label counts: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load stats"})
		return
	}
	labels := make([]gin.H, 0, len(counts))
	for _, lc := range counts {
		labels = append(labels, gin.H{"label": lc.Label, "display_label": s.display(lc.Label), "count": lc.Count})
	}
	c.JSON(http.StatusOK, gin.H{
		"days":              days,
		"total_predictions": stats.TotalPredictions,
		"total_corrections": stats.TotalCorrections,
		"avg_confidence":    stats.AvgConfidence,
		"confidence_buckets": gin.H{
			"below_50": stats.BucketBelow50,
			"50_70":    stats.Bucket50to70,
			"70_90":    stats.Bucket70to90,
			"90_plus":  stats.Bucket90Plus,
		},
		"labels": labels,
	})
}
