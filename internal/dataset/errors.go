package dataset

import (
	"fmt"
	"strings"
)

// DataLoadError reports a dataset that could not be turned into incident
// records. Found holds the header columns that were present, if any.
type DataLoadError struct {
	Path   string
	Reason string
	Found  []string
	Err    error
}

func (e *DataLoadError) Error() string {
	msg := fmt.Sprintf("load dataset %s: %s", e.Path, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if len(e.Found) > 0 {
		msg += fmt.Sprintf(" (columns found: %s)", strings.Join(e.Found, ", "))
	}
	return msg
}

func (e *DataLoadError) Unwrap() error { return e.Err }
