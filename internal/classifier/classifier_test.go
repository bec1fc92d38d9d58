package classifier

import (
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"vargento/internal/domain"
)

func refereeDataset() []domain.IncidentRecord {
	return []domain.IncidentRecord{
		{Description: "mano clara dentro del área", Decision: "Penal"},
		{Description: "mano clara dentro del área", Decision: "Penal"},
		{Description: "remate desviado", Decision: "No gol"},
		{Description: "remate desviado", Decision: "No gol"},
		{Description: "entrada fuerte con plancha", Decision: "Roja"},
		{Description: "entrada fuerte con plancha", Decision: "Roja"},
	}
}

func keywordDataset() []domain.IncidentRecord {
	return []domain.IncidentRecord{
		{Description: "mano del defensor en el área chica", Decision: "Penal"},
		{Description: "mano dentro del área tras centro", Decision: "Penal"},
		{Description: "empujón dentro del área al delantero", Decision: "Penal"},
		{Description: "zancadilla en el área grande", Decision: "Penal"},
		{Description: "remate desviado por encima del travesaño", Decision: "No gol"},
		{Description: "la pelota no cruzó la línea de gol", Decision: "No gol"},
		{Description: "remate al palo sin cruzar la línea", Decision: "No gol"},
		{Description: "fuera de juego previo al remate", Decision: "No gol"},
		{Description: "entrada con plancha a la rodilla", Decision: "Roja"},
		{Description: "agresión con codo sin pelota", Decision: "Roja"},
		{Description: "plancha temeraria sobre el tobillo", Decision: "Roja"},
		{Description: "golpe con el codo en la cara", Decision: "Roja"},
	}
}

func TestTrainRefereeScenario(t *testing.T) {
	model, report, err := Train(refereeDataset(), Options{})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if report.Accuracy < 0 || report.Accuracy > 1 {
		t.Fatalf("accuracy out of range: %f", report.Accuracy)
	}
	if report.TrainSize+report.TestSize != 6 {
		t.Fatalf("unexpected split sizes train=%d test=%d", report.TrainSize, report.TestSize)
	}
	if diff := cmp.Diff([]string{"No gol", "Penal", "Roja"}, model.Labels()); diff != "" {
		t.Fatalf("labels mismatch (-want +got):\n%s", diff)
	}

	pred, err := model.Predict("mano del defensor en el área")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Label != "Penal" {
		t.Fatalf("expected Penal, got %q (%+v)", pred.Label, pred.Probabilities)
	}
	if pred.Confidence <= 1.0/3.0 {
		t.Fatalf("expected confidence above chance, got %f", pred.Confidence)
	}
}

func TestTrainInsufficientData(t *testing.T) {
	tests := []struct {
		name    string
		records []domain.IncidentRecord
		reason  string
	}{
		{name: "empty", records: nil, reason: "empty"},
		{
			name: "single label",
			records: []domain.IncidentRecord{
				{Description: "mano en el área", Decision: "Penal"},
				{Description: "mano clara", Decision: "Penal"},
				{Description: "mano con el brazo abierto", Decision: "Penal"},
			},
			reason: "distinct decision label",
		},
		{
			name: "label with one example",
			records: []domain.IncidentRecord{
				{Description: "mano en el área", Decision: "Penal"},
				{Description: "mano clara", Decision: "Penal"},
				{Description: "plancha", Decision: "Roja"},
			},
			reason: `"Roja"`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model, _, err := Train(tt.records, Options{})
			if model != nil {
				t.Fatal("expected no model on insufficient data")
			}
			var insufficient *InsufficientDataError
			if !errors.As(err, &insufficient) {
				t.Fatalf("expected InsufficientDataError, got %v", err)
			}
			if !strings.Contains(err.Error(), tt.reason) {
				t.Fatalf("error %q does not mention %q", err.Error(), tt.reason)
			}
		})
	}
}

func TestPredictEmptyInput(t *testing.T) {
	model, _, err := Train(refereeDataset(), Options{})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	for _, text := range []string{"", "   ", "\n\t"} {
		if _, err := model.Predict(text); !errors.Is(err, ErrEmptyInput) {
			t.Fatalf("Predict(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestPredictUnseenWordsOnly(t *testing.T) {
	records := []domain.IncidentRecord{
		{Description: "gol", Decision: "Gol"},
		{Description: "gol", Decision: "Gol"},
		{Description: "penal", Decision: "Penal"},
		{Description: "penal", Decision: "Penal"},
	}
	for _, algo := range []Algorithm{NaiveBayes, GradientBoosting} {
		model, _, err := Train(records, Options{Algorithm: algo})
		if err != nil {
			t.Fatalf("%s: Train failed: %v", algo, err)
		}
		if model.Vocabulary().Size() != 2 {
			t.Fatalf("%s: expected vocabulary of 2, got %v", algo, model.Vocabulary().Terms())
		}
		pred, err := model.Predict("xyz abc")
		if err != nil {
			t.Fatalf("%s: Predict failed: %v", algo, err)
		}
		if !model.HasLabel(pred.Label) {
			t.Fatalf("%s: predicted label %q outside label set", algo, pred.Label)
		}
		sum := 0.0
		for _, p := range pred.Probabilities {
			sum += p.Probability
		}
		if math.Abs(sum-1) > 1e-9 {
			t.Fatalf("%s: probabilities sum to %f", algo, sum)
		}
	}
}

func TestTrainIsIdempotent(t *testing.T) {
	queries := []string{
		"mano en el área",
		"remate al palo",
		"plancha con el codo",
		"jugada sin palabras conocidas xyz",
	}
	for _, algo := range []Algorithm{NaiveBayes, GradientBoosting} {
		m1, r1, err := Train(keywordDataset(), Options{Algorithm: algo})
		if err != nil {
			t.Fatalf("%s: first Train failed: %v", algo, err)
		}
		m2, r2, err := Train(keywordDataset(), Options{Algorithm: algo})
		if err != nil {
			t.Fatalf("%s: second Train failed: %v", algo, err)
		}
		if diff := cmp.Diff(r1, r2); diff != "" {
			t.Fatalf("%s: training reports differ (-first +second):\n%s", algo, diff)
		}
		for _, q := range queries {
			p1, err := m1.Predict(q)
			if err != nil {
				t.Fatalf("%s: Predict failed: %v", algo, err)
			}
			p2, _ := m2.Predict(q)
			again, _ := m1.Predict(q)
			if diff := cmp.Diff(p1, p2); diff != "" {
				t.Fatalf("%s: predictions differ for %q:\n%s", algo, q, diff)
			}
			if diff := cmp.Diff(p1, again); diff != "" {
				t.Fatalf("%s: repeated prediction differs for %q:\n%s", algo, q, diff)
			}
		}
	}
}

func TestGradientBoostingLearnsKeywords(t *testing.T) {
	model, report, err := Train(keywordDataset(), Options{Algorithm: GradientBoosting})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if report.Algorithm != GradientBoosting {
		t.Fatalf("unexpected algorithm %q", report.Algorithm)
	}
	if !report.Stratified {
		t.Fatal("expected stratified split for 3 labels x 4 examples")
	}
	if report.TestSize != 3 || report.TrainSize != 9 {
		t.Fatalf("unexpected split train=%d test=%d", report.TrainSize, report.TestSize)
	}
	pred, err := model.Predict("plancha")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if pred.Label != "Roja" {
		t.Fatalf("expected Roja for plancha, got %q (%+v)", pred.Label, pred.Probabilities)
	}
	if pred.Confidence <= 1.0/3.0 {
		t.Fatalf("expected confidence above chance, got %f", pred.Confidence)
	}
}

func TestPredictionProbabilitiesSorted(t *testing.T) {
	model, _, err := Train(keywordDataset(), Options{})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	pred, err := model.Predict("remate desviado")
	if err != nil {
		t.Fatalf("Predict failed: %v", err)
	}
	if len(pred.Probabilities) != 3 {
		t.Fatalf("expected 3 probabilities, got %d", len(pred.Probabilities))
	}
	if pred.Probabilities[0].Label != pred.Label || pred.Probabilities[0].Probability != pred.Confidence {
		t.Fatalf("first probability %+v does not match prediction %q/%f", pred.Probabilities[0], pred.Label, pred.Confidence)
	}
	for i := 1; i < len(pred.Probabilities); i++ {
		if pred.Probabilities[i].Probability > pred.Probabilities[i-1].Probability {
			t.Fatalf("probabilities not sorted: %+v", pred.Probabilities)
		}
	}
}

func TestParseAlgorithm(t *testing.T) {
	tests := []struct {
		in      string
		want    Algorithm
		wantErr bool
	}{
		{"", NaiveBayes, false},
		{"Naive_Bayes", NaiveBayes, false},
		{"gbt", GradientBoosting, false},
		{"gradient_boosting", GradientBoosting, false},
		{"svm", "", true},
	}
	for _, tt := range tests {
		got, err := ParseAlgorithm(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("ParseAlgorithm(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Fatalf("ParseAlgorithm(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPredictIsBitForBitRepeatable(t *testing.T) {
	query := "mano del defensor dentro del área tras centro con plancha y codo sobre la línea de gol"
	for _, algo := range []Algorithm{NaiveBayes, GradientBoosting} {
		model, _, err := Train(keywordDataset(), Options{Algorithm: algo})
		if err != nil {
			t.Fatalf("%s: Train failed: %v", algo, err)
		}
		first, err := model.Predict(query)
		if err != nil {
			t.Fatalf("%s: Predict failed: %v", algo, err)
		}
		for i := 0; i < 500; i++ {
			again, _ := model.Predict(query)
			if diff := cmp.Diff(first, again); diff != "" {
				t.Fatalf("%s: call %d differs (-first +again):\n%s", algo, i, diff)
			}
		}
	}
}

func TestVocabularyComesFromTrainingSplitOnly(t *testing.T) {
	records := keywordDataset()
	decisions := make([]string, len(records))
	for i, r := range records {
		decisions[i] = r.Decision
	}
	part := splitIndices(decisions, DefaultTestRatio, DefaultSeed)

	trainTokens := make(map[string]bool)
	for _, i := range part.train {
		for _, tok := range tokenize(records[i].Description) {
			trainTokens[tok] = true
		}
	}
	var heldOutOnly []string
	for _, i := range part.test {
		for _, tok := range tokenize(records[i].Description) {
			if !trainTokens[tok] {
				heldOutOnly = append(heldOutOnly, tok)
			}
		}
	}
	if len(heldOutOnly) == 0 {
		t.Fatal("expected the held-out rows to contain words unseen in training")
	}

	model, _, err := Train(records, Options{})
	if err != nil {
		t.Fatalf("Train failed: %v", err)
	}
	if model.Vocabulary().Size() != len(trainTokens) {
		t.Fatalf("expected %d training terms, got %d", len(trainTokens), model.Vocabulary().Size())
	}
	terms := model.Vocabulary().Terms()
	for _, tok := range heldOutOnly {
		if slices.Contains(terms, tok) {
			t.Fatalf("held-out-only word %q leaked into the vocabulary", tok)
		}
	}
}
