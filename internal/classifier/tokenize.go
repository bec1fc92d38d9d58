package classifier

import (
	"slices"
	"strings"
	"unicode"
)

// Single-rune tokens ("a", "y", "o") carry no signal in short incident text.
const minTokenRunes = 2

// sparseVec holds the non-zero features of a row ordered by index, so every
// sum over it runs in the same order and results are bit-for-bit repeatable.
type sparseVec []feature

type feature struct {
	idx int
	v   float64
}

func newSparseVec(counts map[int]float64) sparseVec {
	vec := make(sparseVec, 0, len(counts))
	for i, v := range counts {
		vec = append(vec, feature{idx: i, v: v})
	}
	slices.SortFunc(vec, func(a, b feature) int { return a.idx - b.idx })
	return vec
}

// get returns the value of feature i, zero when absent.
func (s sparseVec) get(i int) float64 {
	if j, ok := slices.BinarySearchFunc(s, i, func(f feature, t int) int { return f.idx - t }); ok {
		return s[j].v
	}
	return 0
}

func tokenize(s string) []string {
	s = strings.ToLower(s)
	var tokens []string
	var cur strings.Builder
	runes := 0
	flush := func() {
		if runes >= minTokenRunes {
			tokens = append(tokens, cur.String())
		}
		cur.Reset()
		runes = 0
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			cur.WriteRune(r)
			runes++
		} else if cur.Len() > 0 {
			flush()
		}
	}
	if cur.Len() > 0 {
		flush()
	}
	return tokens
}

// Vocabulary maps lowercase word tokens to feature indices. It is frozen once
// built: vectorizing text never adds terms.
type Vocabulary struct {
	index map[string]int
	terms []string
}

// BuildVocabulary indexes every token of texts in sorted order, so the same
// texts always produce the same feature layout.
func BuildVocabulary(texts []string) *Vocabulary {
	seen := make(map[string]bool)
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			seen[tok] = true
		}
	}
	terms := make([]string, 0, len(seen))
	for tok := range seen {
		terms = append(terms, tok)
	}
	slices.Sort(terms)

	index := make(map[string]int, len(terms))
	for i, tok := range terms {
		index[tok] = i
	}
	return &Vocabulary{index: index, terms: terms}
}

func (v *Vocabulary) Size() int {
	return len(v.terms)
}

func (v *Vocabulary) Terms() []string {
	return slices.Clone(v.terms)
}

// Vectorize returns word counts of text under the vocabulary. Unknown words
// are dropped, so the result may be empty.
func (v *Vocabulary) Vectorize(text string) sparseVec {
	counts := make(map[int]float64)
	for _, tok := range tokenize(text) {
		if i, ok := v.index[tok]; ok {
			counts[i]++
		}
	}
	return newSparseVec(counts)
}
