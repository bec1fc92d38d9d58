// Package labels maps decision labels to the text shown to referees.
// Display names are presentation only; predictions always carry the raw label.
package labels

import (
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

type File struct {
	Labels []Entry `yaml:"labels"`
}

type Entry struct {
	Label       string `yaml:"label"`
	Display     string `yaml:"display"`
	Description string `yaml:"description"`
}

type Catalog struct {
	entries map[string]Entry
}

// Load reads a labels file. An empty path yields a catalog that shows raw labels.
func Load(path string) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]Entry)}
	if strings.TrimSpace(path) == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read labels: %w", err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse labels yaml: %w", err)
	}
	for _, e := range f.Labels {
		key := normalize(e.Label)
		if key == "" {
			continue
		}
		c.entries[key] = e
	}
	return c, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// Display returns the configured display name, or the label itself.
func (c *Catalog) Display(label string) string {
	if c != nil {
		if e, ok := c.entries[normalize(label)]; ok && strings.TrimSpace(e.Display) != "" {
			return e.Display
		}
	}
	return label
}

func (c *Catalog) Description(label string) string {
	if c == nil {
		return ""
	}
	return c.entries[normalize(label)].Description
}

// Unknown lists configured labels that the trained model does not know.
// Useful to flag a labels file that drifted from the dataset.
func (c *Catalog) Unknown(known []string) []string {
	if c == nil {
		return nil
	}
	seen := make(map[string]bool, len(known))
	for _, k := range known {
		seen[normalize(k)] = true
	}
	var out []string
	for key, e := range c.entries {
		if !seen[key] {
			out = append(out, e.Label)
		}
	}
	slices.Sort(out)
	return out
}
