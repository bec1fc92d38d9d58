package classifier

import (
	"testing"

	"vargento/internal/domain"
)

func TestSimilarityIndexTopK(t *testing.T) {
	idx := NewSimilarityIndex(append(refereeDataset(), domain.IncidentRecord{
		Description: "mano fuera del área", Decision: "Tiro libre",
	}))
	if idx.Len() != 4 {
		t.Fatalf("expected duplicate rows to be indexed once, got %d", idx.Len())
	}

	results := idx.TopK("mano clara en el área", 2)
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Decision != "Penal" {
		t.Fatalf("expected Penal incident first, got %+v", results[0])
	}
	if results[0].Score < results[1].Score {
		t.Fatalf("results not ordered by score: %+v", results)
	}
}

func TestSimilarityIndexNoOverlap(t *testing.T) {
	idx := NewSimilarityIndex(refereeDataset())
	if got := idx.TopK("xyz abc", 3); len(got) != 0 {
		t.Fatalf("expected no results, got %+v", got)
	}
	if got := NewSimilarityIndex(nil).TopK("mano", 3); len(got) != 0 {
		t.Fatalf("expected no results from empty index, got %+v", got)
	}
}
