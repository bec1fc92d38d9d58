package classifier

import (
	"math"
	"sort"
	"strings"

	"vargento/internal/domain"
)

type SimilarIncident struct {
	Description string  `json:"description"`
	Decision    string  `json:"decision"`
	Score       float64 `json:"score"`
}

// SimilarityIndex ranks historical incidents by TF-IDF cosine similarity.
// Duplicate rows (same description and decision) are indexed once.
type SimilarityIndex struct {
	vocab   map[string]int
	idf     []float64
	docs    []sparseVec
	records []domain.IncidentRecord
}

func NewSimilarityIndex(records []domain.IncidentRecord) *SimilarityIndex {
	seen := make(map[string]bool)
	var unique []domain.IncidentRecord
	for _, r := range records {
		key := strings.ToLower(strings.TrimSpace(r.Description)) + "\x00" + r.Decision
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}
	if len(unique) == 0 {
		return &SimilarityIndex{vocab: make(map[string]int)}
	}

	vocab := make(map[string]int)
	for _, r := range unique {
		for _, tok := range tokenize(r.Description) {
			if _, ok := vocab[tok]; !ok {
				vocab[tok] = len(vocab)
			}
		}
	}

	df := make([]int, len(vocab))
	docs := make([]sparseVec, len(unique))
	n := float64(len(unique))
	for i, r := range unique {
		tf := make(map[int]float64)
		for _, tok := range tokenize(r.Description) {
			tf[vocab[tok]]++
		}
		for idx := range tf {
			df[idx]++
		}
		docs[i] = newSparseVec(tf)
	}

	idf := make([]float64, len(vocab))
	for i, d := range df {
		if d > 0 {
			idf[i] = math.Log(n/float64(d)) + 1.0
		}
	}
	for _, vec := range docs {
		for j := range vec {
			vec[j].v *= idf[vec[j].idx]
		}
	}

	return &SimilarityIndex{vocab: vocab, idf: idf, docs: docs, records: unique}
}

func (idx *SimilarityIndex) Len() int {
	return len(idx.records)
}

// TopK returns up to k incidents with positive similarity to query, best first.
func (idx *SimilarityIndex) TopK(query string, k int) []SimilarIncident {
	if len(idx.records) == 0 || k <= 0 {
		return nil
	}
	qvec := idx.queryVec(query)
	if len(qvec) == 0 {
		return nil
	}

	type scored struct {
		index int
		score float64
	}
	var results []scored
	for i, dvec := range idx.docs {
		if sim := cosineSim(qvec, dvec); sim > 0 {
			results = append(results, scored{i, sim})
		}
	}
	sort.SliceStable(results, func(a, b int) bool {
		return results[a].score > results[b].score
	})
	if len(results) > k {
		results = results[:k]
	}
	out := make([]SimilarIncident, len(results))
	for i, r := range results {
		rec := idx.records[r.index]
		out[i] = SimilarIncident{Description: rec.Description, Decision: rec.Decision, Score: r.score}
	}
	return out
}

func (idx *SimilarityIndex) queryVec(query string) sparseVec {
	tf := make(map[int]float64)
	for _, tok := range tokenize(query) {
		if i, ok := idx.vocab[tok]; ok {
			tf[i]++
		}
	}
	vec := newSparseVec(tf)
	for j := range vec {
		vec[j].v *= idx.idf[vec[j].idx]
	}
	return vec
}

func cosineSim(a, b sparseVec) float64 {
	var dot, normA, normB float64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i].idx < b[j].idx:
			i++
		case a[i].idx > b[j].idx:
			j++
		default:
			dot += a[i].v * b[j].v
			i++
			j++
		}
	}
	for _, f := range a {
		normA += f.v * f.v
	}
	for _, f := range b {
		normB += f.v * f.v
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
