package classifier

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"vargento/internal/domain"
)

type Algorithm string

const (
	NaiveBayes       Algorithm = "naive_bayes"
	GradientBoosting Algorithm = "gradient_boosting"
)

const (
	DefaultTestRatio = 0.2
	DefaultSeed      = 42
	DefaultAlpha     = 1.0
)

// Options controls training. Zero values fall back to the defaults above.
type Options struct {
	Algorithm Algorithm
	TestRatio float64
	Seed      uint64
	// Alpha is the Naive Bayes additive smoothing.
	Alpha    float64
	Boosting BoostingParams
}

func (o *Options) applyDefaults() {
	if o.Algorithm == "" {
		o.Algorithm = NaiveBayes
	}
	if o.TestRatio <= 0 || o.TestRatio >= 1 {
		o.TestRatio = DefaultTestRatio
	}
	if o.Seed == 0 {
		o.Seed = DefaultSeed
	}
	if o.Alpha <= 0 {
		o.Alpha = DefaultAlpha
	}
	o.Boosting.applyDefaults()
}

func ParseAlgorithm(s string) (Algorithm, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "naive_bayes", "nb", "bayes":
		return NaiveBayes, nil
	case "gradient_boosting", "boosting", "gbt", "xgboost":
		return GradientBoosting, nil
	default:
		return "", fmt.Errorf("unknown algorithm %q (want naive_bayes or gradient_boosting)", s)
	}
}

type estimator interface {
	probabilities(vec sparseVec) []float64
}

type LabelProbability struct {
	Label       string  `json:"label"`
	Probability float64 `json:"probability"`
}

// Prediction is the answer for one query. Confidence is the probability of Label.
type Prediction struct {
	Label         string
	Confidence    float64
	Probabilities []LabelProbability
}

type TrainingReport struct {
	Algorithm      Algorithm
	Accuracy       float64
	TrainSize      int
	TestSize       int
	Stratified     bool
	VocabularySize int
	LabelCounts    map[string]int
}

// Model is a trained classifier. It is immutable and safe for concurrent use.
type Model struct {
	algorithm Algorithm
	vocab     *Vocabulary
	labels    []string
	est       estimator
}

func (m *Model) Algorithm() Algorithm {
	return m.algorithm
}

func (m *Model) Vocabulary() *Vocabulary {
	return m.vocab
}

// Labels returns the label set in sorted order.
func (m *Model) Labels() []string {
	return slices.Clone(m.labels)
}

func (m *Model) HasLabel(label string) bool {
	_, found := slices.BinarySearch(m.labels, label)
	return found
}

// Train builds the vocabulary, splits records into training and held-out
// partitions, fits the configured algorithm and measures held-out accuracy.
func Train(records []domain.IncidentRecord, opts Options) (*Model, TrainingReport, error) {
	opts.applyDefaults()
	if opts.Algorithm != NaiveBayes && opts.Algorithm != GradientBoosting {
		return nil, TrainingReport{}, fmt.Errorf("unknown algorithm %q", opts.Algorithm)
	}

	counts, err := checkTrainable(records)
	if err != nil {
		return nil, TrainingReport{}, err
	}

	labels := make([]string, 0, len(counts))
	for label := range counts {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	labelIndex := make(map[string]int, len(labels))
	for i, label := range labels {
		labelIndex[label] = i
	}

	descriptions := make([]string, len(records))
	decisions := make([]string, len(records))
	for i, r := range records {
		descriptions[i] = r.Description
		decisions[i] = r.Decision
	}

	part := splitIndices(decisions, opts.TestRatio, opts.Seed)

	// The vocabulary only knows words seen in training; held-out rows are
	// vectorized through it like any later query.
	trainText := make([]string, len(part.train))
	for j, i := range part.train {
		trainText[j] = descriptions[i]
	}
	vocab := BuildVocabulary(trainText)

	trainX := make([]sparseVec, len(part.train))
	trainY := make([]int, len(part.train))
	for j, i := range part.train {
		trainX[j] = vocab.Vectorize(descriptions[i])
		trainY[j] = labelIndex[decisions[i]]
	}

	var est estimator
	switch opts.Algorithm {
	case GradientBoosting:
		est = fitGradientBoosting(trainX, trainY, len(labels), opts.Boosting)
	default:
		est = fitNaiveBayes(trainX, trainY, len(labels), vocab.Size(), opts.Alpha)
	}

	model := &Model{
		algorithm: opts.Algorithm,
		vocab:     vocab,
		labels:    labels,
		est:       est,
	}

	correct := 0
	for _, i := range part.test {
		if best, _ := model.classify(vocab.Vectorize(descriptions[i])); best == labelIndex[decisions[i]] {
			correct++
		}
	}

	report := TrainingReport{
		Algorithm:      opts.Algorithm,
		Accuracy:       float64(correct) / float64(len(part.test)),
		TrainSize:      len(part.train),
		TestSize:       len(part.test),
		Stratified:     part.stratified,
		VocabularySize: vocab.Size(),
		LabelCounts:    counts,
	}
	return model, report, nil
}

func checkTrainable(records []domain.IncidentRecord) (map[string]int, error) {
	if len(records) == 0 {
		return nil, &InsufficientDataError{Reason: "dataset is empty"}
	}
	counts := make(map[string]int)
	for _, r := range records {
		counts[r.Decision]++
	}
	if len(counts) < 2 {
		return nil, &InsufficientDataError{
			Reason:      fmt.Sprintf("found %d distinct decision label(s), need at least 2", len(counts)),
			LabelCounts: counts,
		}
	}
	var thin []string
	for label, c := range counts {
		if c < 2 {
			thin = append(thin, label)
		}
	}
	if len(thin) > 0 {
		slices.Sort(thin)
		return nil, &InsufficientDataError{
			Reason:      fmt.Sprintf("label(s) %s have fewer than 2 examples", strings.Join(quoteAll(thin), ", ")),
			LabelCounts: counts,
		}
	}
	return counts, nil
}

func quoteAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = fmt.Sprintf("%q", s)
	}
	return out
}

// Predict classifies text. Words outside the vocabulary are ignored; text made
// only of unknown words still gets the model's prior-driven answer.
func (m *Model) Predict(text string) (Prediction, error) {
	if strings.TrimSpace(text) == "" {
		return Prediction{}, ErrEmptyInput
	}
	best, probs := m.classify(m.vocab.Vectorize(text))

	out := Prediction{
		Label:         m.labels[best],
		Confidence:    probs[best],
		Probabilities: make([]LabelProbability, len(probs)),
	}
	for i, p := range probs {
		out.Probabilities[i] = LabelProbability{Label: m.labels[i], Probability: p}
	}
	sort.SliceStable(out.Probabilities, func(a, b int) bool {
		return out.Probabilities[a].Probability > out.Probabilities[b].Probability
	})
	return out, nil
}

func (m *Model) classify(vec sparseVec) (int, []float64) {
	probs := m.est.probabilities(vec)
	best := 0
	for i, p := range probs {
		if p > probs[best] {
			best = i
		}
	}
	return best, probs
}
