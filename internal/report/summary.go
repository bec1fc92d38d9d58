// Package report renders the downloadable incident summary and the periodic
// digest of answered queries.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"vargento/internal/classifier"
)

const maxSimilarInReport = 5

// Summary is everything shown on the one-page PDF for an answered query.
type Summary struct {
	Brand         string
	ID            string
	GeneratedAt   time.Time
	Description   string
	Label         string
	DisplayLabel  string
	Confidence    float64
	Probabilities []classifier.LabelProbability
	Algorithm     string
	Accuracy      float64
	TrainSize     int
	TestSize      int
	VideoURL      string
	MediaName     string
	KeyFrame      int
	Similar       []classifier.SimilarIncident
	Rationale     string
}

func (s Summary) title() string {
	brand := strings.TrimSpace(s.Brand)
	if brand == "" {
		brand = "VARGENTO"
	}
	return brand + " - Resumen de jugada"
}

func (s Summary) decision() string {
	if strings.TrimSpace(s.DisplayLabel) != "" {
		return s.DisplayLabel
	}
	return s.Label
}

// WriteFile stores a rendered PDF as <outputDir>/<id>.pdf.
func WriteFile(pdf []byte, outputDir, id string) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	if strings.TrimSpace(id) == "" {
		return "", fmt.Errorf("report id is empty")
	}
	path := filepath.Join(outputDir, sanitizeFilename(id)+".pdf")
	return path, os.WriteFile(path, pdf, 0644)
}

// Filename is the download name offered to browsers.
func Filename(brand string, id string, at time.Time) string {
	if brand == "" {
		brand = "vargento"
	}
	short := id
	if len(short) > 8 {
		short = short[:8]
	}
	return sanitizeFilename(fmt.Sprintf("%s_%s_%s.pdf", strings.ToLower(brand), at.Format("20060102"), short))
}

func sanitizeFilename(s string) string {
	replacer := strings.NewReplacer("/", "_", "\\", "_", ":", "_", "*", "_", "?", "_", "\"", "_", "<", "_", ">", "_", "|", "_", " ", "_")
	return replacer.Replace(s)
}

func truncateRunes(s string, max int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= max {
		return string(r)
	}
	return strings.TrimSpace(string(r[:max-1])) + "…"
}
