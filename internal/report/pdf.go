package report

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/go-pdf/fpdf"

	"vargento/internal/classifier"
)

const (
	pageMargin      = 15.0
	maxDescription  = 800
	maxRationale    = 600
	maxSimilarChars = 90

	// maxProbabilitiesInReport includes the folded "Otras" row.
	maxProbabilitiesInReport = 5
)

// RenderPDF lays out the summary on a single A4 page.
func RenderPDF(s Summary) ([]byte, error) {
	pdf, err := layoutPDF(s)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

// probabilityRows keeps the leading labels and folds the tail into one row.
func probabilityRows(probs []classifier.LabelProbability) []classifier.LabelProbability {
	if len(probs) <= maxProbabilitiesInReport {
		return probs
	}
	keep := maxProbabilitiesInReport - 1
	rows := append([]classifier.LabelProbability(nil), probs[:keep]...)
	var rest float64
	for _, p := range probs[keep:] {
		rest += p.Probability
	}
	return append(rows, classifier.LabelProbability{Label: fmt.Sprintf("Otras (%d)", len(probs)-keep), Probability: rest})
}

func layoutPDF(s Summary) (*fpdf.Fpdf, error) {
	if strings.TrimSpace(s.Label) == "" {
		return nil, errors.New("render pdf: summary has no decision label")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(s.title(), true)
	pdf.SetCreator(s.title(), true)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(true, pageMargin)
	pdf.AddPage()
	// Core fonts are cp1252; translate so accents and ñ survive.
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 2*pageMargin

	pdf.SetFont("Helvetica", "B", 18)
	pdf.SetTextColor(20, 40, 90)
	pdf.CellFormat(contentW, 10, tr(s.title()), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	meta := fmt.Sprintf("Generado %s", s.GeneratedAt.Format("02/01/2006 15:04 MST"))
	if s.ID != "" {
		meta += "  |  Ref. " + s.ID
	}
	pdf.CellFormat(contentW, 5, tr(meta), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	section := func(title string) {
		pdf.SetFont("Helvetica", "B", 12)
		pdf.SetTextColor(20, 40, 90)
		pdf.CellFormat(contentW, 7, tr(title), "B", 1, "L", false, 0, "")
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "", 10)
		pdf.SetTextColor(30, 30, 30)
	}

	section("Jugada")
	pdf.MultiCell(contentW, 5, tr(truncateRunes(s.Description, maxDescription)), "", "L", false)
	if s.VideoURL != "" || s.MediaName != "" || s.KeyFrame > 0 {
		pdf.Ln(1)
		pdf.SetFont("Helvetica", "", 9)
		if s.VideoURL != "" {
			pdf.SetTextColor(30, 80, 180)
			pdf.WriteLinkString(5, tr("Video: "+s.VideoURL), s.VideoURL)
			pdf.Ln(5)
			pdf.SetTextColor(30, 30, 30)
		}
		if s.MediaName != "" {
			pdf.CellFormat(contentW, 5, tr("Archivo adjunto: "+s.MediaName), "", 1, "L", false, 0, "")
		}
		if s.KeyFrame > 0 {
			pdf.CellFormat(contentW, 5, fmt.Sprintf("Frame clave: %d", s.KeyFrame), "", 1, "L", false, 0, "")
		}
	}
	pdf.Ln(3)

	section("Decisión sugerida")
	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW*0.7, 9, tr(s.decision()), "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW*0.3, 9, fmt.Sprintf("%.1f%%", s.Confidence*100), "", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(110, 110, 110)
	pdf.CellFormat(contentW, 5, tr(fmt.Sprintf("Modelo %s  |  precisión en validación %.1f%%  |  %d entrenamiento / %d validación",
		s.Algorithm, s.Accuracy*100, s.TrainSize, s.TestSize)), "", 1, "L", false, 0, "")
	pdf.SetTextColor(30, 30, 30)
	pdf.Ln(2)

	if len(s.Probabilities) > 0 {
		labelW, barW := contentW*0.35, contentW*0.5
		pdf.SetFont("Helvetica", "", 10)
		for _, p := range probabilityRows(s.Probabilities) {
			y := pdf.GetY()
			pdf.CellFormat(labelW, 6, tr(truncateRunes(p.Label, 40)), "", 0, "L", false, 0, "")
			x := pdf.GetX()
			pdf.SetFillColor(225, 230, 240)
			pdf.Rect(x, y+1, barW, 4, "F")
			pdf.SetFillColor(20, 90, 200)
			if w := barW * p.Probability; w > 0 {
				pdf.Rect(x, y+1, w, 4, "F")
			}
			pdf.SetX(x + barW)
			pdf.CellFormat(contentW-labelW-barW, 6, fmt.Sprintf("%.1f%%", p.Probability*100), "", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	if len(s.Similar) > 0 {
		section("Jugadas históricas similares")
		pdf.SetFont("Helvetica", "B", 9)
		pdf.SetFillColor(235, 238, 245)
		descW, decW, scoreW := contentW*0.62, contentW*0.25, contentW*0.13
		pdf.CellFormat(descW, 6, tr("Descripción"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(decW, 6, tr("Decisión"), "1", 0, "L", true, 0, "")
		pdf.CellFormat(scoreW, 6, "Similitud", "1", 1, "R", true, 0, "")
		pdf.SetFont("Helvetica", "", 9)
		for i, sim := range s.Similar {
			if i == maxSimilarInReport {
				break
			}
			pdf.CellFormat(descW, 6, tr(truncateRunes(sim.Description, maxSimilarChars)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(decW, 6, tr(truncateRunes(sim.Decision, 30)), "1", 0, "L", false, 0, "")
			pdf.CellFormat(scoreW, 6, fmt.Sprintf("%.2f", sim.Score), "1", 1, "R", false, 0, "")
		}
		pdf.Ln(3)
	}

	if strings.TrimSpace(s.Rationale) != "" {
		section("Fundamento")
		pdf.MultiCell(contentW, 5, tr(truncateRunes(s.Rationale, maxRationale)), "", "L", false)
		pdf.Ln(2)
	}

	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(130, 130, 130)
	pdf.MultiCell(contentW, 4, tr("Sugerencia automática basada en jugadas históricas. La decisión final corresponde al equipo arbitral."), "", "L", false)
	return pdf, pdf.Error()
}
