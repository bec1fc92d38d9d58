package classifier

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// ErrEmptyInput is returned by Predict for blank text. Callers re-prompt the user.
var ErrEmptyInput = errors.New("empty incident description: describe the play before analyzing")

// InsufficientDataError reports a dataset that cannot support a train/held-out
// split: no rows, fewer than two labels, or a label with fewer than two examples.
type InsufficientDataError struct {
	Reason      string
	LabelCounts map[string]int
}

func (e *InsufficientDataError) Error() string {
	if len(e.LabelCounts) == 0 {
		return "insufficient training data: " + e.Reason
	}
	labels := make([]string, 0, len(e.LabelCounts))
	for label := range e.LabelCounts {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	parts := make([]string, 0, len(labels))
	for _, label := range labels {
		parts = append(parts, fmt.Sprintf("%s=%d", label, e.LabelCounts[label]))
	}
	return fmt.Sprintf("insufficient training data: %s (labels: %s)", e.Reason, strings.Join(parts, ", "))
}
