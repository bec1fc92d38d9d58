package web

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"vargento/internal/classifier"
	"vargento/internal/domain"
	"vargento/internal/engine"
	"vargento/internal/integrations/llm"
	"vargento/internal/report"
	"vargento/internal/storage/sqlite"
)

// ErrModelUnavailable wraps the training error while no model can serve.
var ErrModelUnavailable = errors.New("model unavailable")

var errBadVideoURL = errors.New("video link must be an http(s) URL")
var errBadKeyFrame = errors.New("key frame must be zero or positive")

type analyzeInput struct {
	Description string
	VideoURL    string
	KeyFrame    int
	MediaName   string
	MediaType   string
}

type analysis struct {
	Record     domain.PredictionRecord
	Prediction classifier.Prediction
	Similar    []classifier.SimilarIncident
	Snapshot   *engine.Snapshot
	Stored     bool
}

func validateInput(in analyzeInput) error {
	if in.KeyFrame < 0 {
		return errBadKeyFrame
	}
	if in.VideoURL != "" {
		u, err := url.Parse(in.VideoURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errBadVideoURL
		}
	}
	return nil
}

// analyze classifies the description and records the answer. Media fields
// are carried along untouched; they never influence the prediction.
func (s *Server) analyze(ctx context.Context, in analyzeInput) (*analysis, error) {
	in.VideoURL = strings.TrimSpace(in.VideoURL)
	if err := validateInput(in); err != nil {
		s.metrics.ObservePredictionError("invalid_input")
		return nil, err
	}

	snap, err := s.engine.Snapshot(ctx)
	if err != nil {
		s.metrics.ObservePredictionError("model_unavailable")
		return nil, fmt.Errorf("%w: %w", ErrModelUnavailable, err)
	}

	pred, err := snap.Model.Predict(in.Description)
	if err != nil {
		if errors.Is(err, classifier.ErrEmptyInput) {
			s.metrics.ObservePredictionError("empty_input")
		}
		return nil, err
	}
	s.metrics.ObservePrediction(pred.Label, pred.Confidence)

	a := &analysis{
		Prediction: pred,
		Similar:    snap.Similar.TopK(in.Description, similarShown),
		Snapshot:   snap,
		Record: domain.PredictionRecord{
			ID:           s.newID(),
			Description:  strings.TrimSpace(in.Description),
			Label:        pred.Label,
			DisplayLabel: s.display(pred.Label),
			Confidence:   pred.Confidence,
			Algorithm:    string(snap.Model.Algorithm()),
			VideoURL:     in.VideoURL,
			MediaName:    in.MediaName,
			MediaType:    in.MediaType,
			KeyFrame:     in.KeyFrame,
			CreatedAt:    s.now(),
		},
	}
	s.log.Infof("prediction id=%s label=%s confidence=%.3f similar=%d", a.Record.ID, pred.Label, pred.Confidence, len(a.Similar))

	if s.rationale != nil {
		a.Record.Rationale = s.requestRationale(ctx, a)
	}

	if err := sqlite.InsertPrediction(s.db, a.Record); err != nil {
		s.log.Errorf("store prediction id=%s: %v", a.Record.ID, err)
	} else {
		a.Stored = true
	}

	if s.opts.ArchiveReports && a.Stored {
		s.archive(a)
	}
	s.notify(a.Record)
	return a, nil
}

func (s *Server) requestRationale(ctx context.Context, a *analysis) string {
	ctx, cancel := context.WithTimeout(ctx, rationaleTimeout)
	defer cancel()
	text, usage, err := s.rationale.Rationale(ctx, llm.RationaleRequest{
		Description:  a.Record.Description,
		Label:        a.Record.Label,
		DisplayLabel: a.Record.DisplayLabel,
		Confidence:   a.Record.Confidence,
		Labels:       a.Snapshot.Model.Labels(),
		Similar:      a.Similar,
	})
	if err != nil {
		s.log.Warnf("rationale skipped id=%s: %v", a.Record.ID, err)
		return ""
	}
	s.log.Debugf("rationale id=%s tokens=%d", a.Record.ID, usage.TotalTokens())
	return text
}

func (s *Server) notify(rec domain.PredictionRecord) {
	if s.notifier == nil {
		return
	}
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		err := s.notifier.NotifyVerdict(ctx, rec)
		s.metrics.ObserveNotification("verdict", err)
		if err != nil {
			s.log.Warnf("verdict notification id=%s: %v", rec.ID, err)
		}
	}()
}

func (s *Server) archive(a *analysis) {
	pdf, err := report.RenderPDF(s.summary(a.Record, a.Prediction.Probabilities, a.Similar, a.Snapshot))
	if err != nil {
		s.log.Errorf("archive render id=%s: %v", a.Record.ID, err)
		return
	}
	path, err := report.WriteFile(pdf, s.opts.ReportDir, a.Record.ID)
	if err != nil {
		s.log.Errorf("archive write id=%s: %v", a.Record.ID, err)
		return
	}
	s.log.Debugf("report archived path=%s", path)
}

func (s *Server) summary(rec domain.PredictionRecord, probs []classifier.LabelProbability, similar []classifier.SimilarIncident, snap *engine.Snapshot) report.Summary {
	sum := report.Summary{
		Brand:         s.opts.Brand,
		ID:            rec.ID,
		GeneratedAt:   rec.CreatedAt.In(s.opts.Location),
		Description:   rec.Description,
		Label:         rec.Label,
		DisplayLabel:  rec.DisplayLabel,
		Confidence:    rec.Confidence,
		Probabilities: make([]classifier.LabelProbability, 0, len(probs)),
		Algorithm:     rec.Algorithm,
		VideoURL:      rec.VideoURL,
		MediaName:     rec.MediaName,
		KeyFrame:      rec.KeyFrame,
		Similar:       similar,
		Rationale:     rec.Rationale,
	}
	for _, p := range probs {
		sum.Probabilities = append(sum.Probabilities, classifier.LabelProbability{Label: s.display(p.Label), Probability: p.Probability})
	}
	if snap != nil {
		sum.Accuracy = snap.Report.Accuracy
		sum.TrainSize = snap.Report.TrainSize
		sum.TestSize = snap.Report.TestSize
	}
	return sum
}
