// Package metrics exposes Prometheus instruments for the classifier service.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vargento/internal/classifier"
)

const namespace = "vargento"

type Metrics struct {
	registry *prometheus.Registry

	predictions   *prometheus.CounterVec
	predictErrors *prometheus.CounterVec
	confidence    prometheus.Histogram
	corrections   *prometheus.CounterVec
	trainings     *prometheus.CounterVec
	accuracy      prometheus.Gauge
	datasetRows   prometheus.Gauge
	vocabulary    prometheus.Gauge
	lastTrained   prometheus.Gauge
	notifications *prometheus.CounterVec
}

// New builds a private registry so tests and multiple servers never collide
// on the global default registerer.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		predictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "predictions_total",
			Help: "Incident descriptions classified, by predicted label.",
		}, []string{"label"}),
		predictErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "prediction_errors_total",
			Help: "Rejected or failed classification requests, by reason.",
		}, []string{"reason"}),
		confidence: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "prediction_confidence",
			Help:    "Confidence of the winning label.",
			Buckets: []float64{0.3, 0.5, 0.7, 0.9, 1},
		}),
		corrections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "corrections_total",
			Help: "Referee overrides, by original label.",
		}, []string{"original_label"}),
		trainings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "trainings_total",
			Help: "Training attempts, by result.",
		}, []string{"result"}),
		accuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "model_accuracy",
			Help: "Held-out accuracy of the serving model.",
		}),
		datasetRows: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "dataset_rows",
			Help: "Incidents in the dataset of the serving model.",
		}),
		vocabulary: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "vocabulary_size",
			Help: "Distinct tokens known to the serving model.",
		}),
		lastTrained: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "model_trained_timestamp_seconds",
			Help: "Unix time the serving model was trained.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "notifications_total",
			Help: "Outbound Slack messages, by kind and result.",
		}, []string{"kind", "result"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.predictions, m.predictErrors, m.confidence, m.corrections,
		m.trainings, m.accuracy, m.datasetRows, m.vocabulary, m.lastTrained,
		m.notifications,
	)
	return m
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObservePrediction(label string, confidence float64) {
	m.predictions.WithLabelValues(label).Inc()
	m.confidence.Observe(confidence)
}

func (m *Metrics) ObservePredictionError(reason string) {
	m.predictErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) ObserveCorrection(originalLabel string) {
	m.corrections.WithLabelValues(originalLabel).Inc()
}

func (m *Metrics) ObserveNotification(kind string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.notifications.WithLabelValues(kind, result).Inc()
}

// ObserveTraining records a training attempt. Gauges keep describing the
// serving model when a reload fails.
func (m *Metrics) ObserveTraining(report classifier.TrainingReport, rows int, trainedAt time.Time, err error) {
	if err != nil {
		m.trainings.WithLabelValues("error").Inc()
		return
	}
	m.trainings.WithLabelValues("ok").Inc()
	m.accuracy.Set(report.Accuracy)
	m.datasetRows.Set(float64(rows))
	m.vocabulary.Set(float64(report.VocabularySize))
	m.lastTrained.Set(float64(trainedAt.Unix()))
}
