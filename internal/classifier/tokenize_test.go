package classifier

import (
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestTokenize(t *testing.T) {
	tests := []struct {
		input string
		want  []string
	}{
		{"Mano clara, dentro del ÁREA!", []string{"mano", "clara", "dentro", "del", "área"}},
		{"Penal y roja a los 90'", []string{"penal", "roja", "los", "90"}},
		{"VAR-check 2x", []string{"var", "check", "2x"}},
		{"", nil},
		{"a y o", nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, tokenize(tt.input)); diff != "" {
			t.Errorf("tokenize(%q) mismatch (-want +got):\n%s", tt.input, diff)
		}
	}
}

func TestVocabularyIsSortedAndFrozen(t *testing.T) {
	vocab := BuildVocabulary([]string{"remate desviado", "Mano clara", "mano en el área"})
	want := []string{"clara", "desviado", "el", "en", "mano", "remate", "área"}
	if diff := cmp.Diff(want, vocab.Terms()); diff != "" {
		t.Fatalf("terms mismatch (-want +got):\n%s", diff)
	}

	vec := vocab.Vectorize("MANO mano offside")
	if vocab.Size() != len(want) {
		t.Fatalf("vectorize grew the vocabulary to %d", vocab.Size())
	}
	mano := slices.Index(vocab.Terms(), "mano")
	if mano < 0 {
		t.Fatal("expected mano in vocabulary")
	}
	if got := vec.get(mano); got != 2 {
		t.Fatalf("expected count 2 for mano, got %v", got)
	}
	if len(vec) != 1 {
		t.Fatalf("expected unknown words to be ignored, got %v", vec)
	}
}

func TestVectorizeIsOrderedByFeature(t *testing.T) {
	vocab := BuildVocabulary([]string{"remate desviado", "mano en el área", "plancha con codo"})
	vec := vocab.Vectorize("área codo remate mano área el")
	for i := 1; i < len(vec); i++ {
		if vec[i-1].idx >= vec[i].idx {
			t.Fatalf("features out of order: %v", vec)
		}
	}
	if got := vec.get(slices.Index(vocab.Terms(), "área")); got != 2 {
		t.Fatalf("expected count 2 for área, got %v", got)
	}
	if got := vec.get(-1); got != 0 {
		t.Fatalf("expected zero for a missing feature, got %v", got)
	}
}
