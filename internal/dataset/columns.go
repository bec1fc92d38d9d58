package dataset

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	DefaultDescriptionColumns = []string{"descripcion", "descripción", "description", "texto", "jugada", "evento"}
	DefaultDecisionColumn     = "decision"
)

// Columns names the header cells holding the incident text and the decision.
// Description is a priority list; the first candidate present wins.
type Columns struct {
	Description []string
	Decision    string
}

func (c Columns) withDefaults() Columns {
	if len(c.Description) == 0 {
		c.Description = DefaultDescriptionColumns
	}
	if strings.TrimSpace(c.Decision) == "" {
		c.Decision = DefaultDecisionColumn
	}
	return c
}

// foldHeader lowercases, trims and strips accents so "Decisión " matches "decision".
func foldHeader(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.TrimSpace(s))
	if err != nil {
		folded = strings.TrimSpace(s)
	}
	return strings.ToLower(folded)
}

// resolve returns the header positions of the description and decision
// columns, or -1 when a column is absent.
func (c Columns) resolve(header []string) (desc, decision int) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		key := foldHeader(h)
		if _, dup := pos[key]; !dup {
			pos[key] = i
		}
	}
	desc, decision = -1, -1
	for _, cand := range c.Description {
		if i, ok := pos[foldHeader(cand)]; ok {
			desc = i
			break
		}
	}
	if i, ok := pos[foldHeader(c.Decision)]; ok {
		decision = i
	}
	return desc, decision
}
