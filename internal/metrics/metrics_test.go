package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"vargento/internal/classifier"
)

func TestObservePredictionAndTraining(t *testing.T) {
	m := New()
	m.ObservePrediction("Penal", 0.72)
	m.ObservePrediction("Penal", 0.91)
	m.ObservePredictionError("empty_input")
	m.ObserveCorrection("Penal")
	m.ObserveNotification("verdict", nil)
	m.ObserveNotification("verdict", errors.New("slack down"))

	if got := testutil.ToFloat64(m.predictions.WithLabelValues("Penal")); got != 2 {
		t.Fatalf("expected 2 Penal predictions, got %v", got)
	}
	if got := testutil.ToFloat64(m.notifications.WithLabelValues("verdict", "error")); got != 1 {
		t.Fatalf("expected 1 failed notification, got %v", got)
	}

	m.ObserveTraining(classifier.TrainingReport{Accuracy: 0.8, VocabularySize: 120}, 40, time.Unix(1700000000, 0), nil)
	m.ObserveTraining(classifier.TrainingReport{}, 0, time.Time{}, errors.New("bad dataset"))

	if got := testutil.ToFloat64(m.accuracy); got != 0.8 {
		t.Fatalf("failed training must not reset accuracy, got %v", got)
	}
	if got := testutil.ToFloat64(m.trainings.WithLabelValues("error")); got != 1 {
		t.Fatalf("expected 1 failed training, got %v", got)
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.ObservePrediction("Roja", 0.5)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `vargento_predictions_total{label="Roja"} 1`) {
		t.Fatalf("metrics output missing prediction counter:\n%s", body)
	}
}
