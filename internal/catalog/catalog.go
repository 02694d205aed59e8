// Package catalog provides the read-only symptom reference data for CardioGenie.
//
// Each known symptom carries an ordered list of follow-up questions tagged by
// category (detail, vital-sign, red-flag) plus the trigger keywords that
// promote red-flag questions. The default dataset is embedded; an external
// dataset file can be supplied via options.
package catalog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"

	_ "embed"

	"github.com/Aniketchurihar/CardioGenie/internal/models"
)

//go:embed dataset.json
var embeddedDataset []byte

// Question is one candidate follow-up question in catalog-declared order.
type Question struct {
	ID       string                  `json:"id"`
	Text     string                  `json:"text"`
	Category models.QuestionCategory `json:"category"`
}

// Entry is the catalog record for one symptom. An entry with an empty
// question list is a valid match; callers must treat it differently from a
// lookup miss.
type Entry struct {
	Symptom         string     `json:"symptom"`
	Synonyms        []string   `json:"synonyms"`
	RedFlagTriggers []string   `json:"red_flag_triggers"`
	Questions       []Question `json:"questions"`
}

// QuestionsInCategory returns the entry's questions of one category,
// preserving declared order.
func (e *Entry) QuestionsInCategory(cat models.QuestionCategory) []Question {
	var out []Question
	for _, q := range e.Questions {
		if q.Category == cat {
			out = append(out, q)
		}
	}
	return out
}

// dataset is the on-disk shape of the catalog file.
type dataset struct {
	Symptoms []Entry    `json:"symptoms"`
	Generic  []Question `json:"generic"`
}

// Opts holds configuration options for the catalog.
type Opts struct {
	DatasetPath string // external dataset file, overrides the embedded one
	Dataset     []byte // raw dataset bytes, used by tests
}

// Option defines a configuration option for the catalog.
type Option func(*Opts)

// WithDatasetPath loads the catalog from an external JSON file instead of
// the embedded dataset.
func WithDatasetPath(path string) Option {
	return func(o *Opts) {
		o.DatasetPath = path
	}
}

// WithDataset loads the catalog from raw JSON bytes.
func WithDataset(data []byte) Option {
	return func(o *Opts) {
		o.Dataset = data
	}
}

// Catalog is an immutable symptom lookup table.
type Catalog struct {
	entries []Entry
	index   map[string]int // normalized term -> entries index
	terms   []string       // index keys, longest first for substring matching
	generic []Question
}

// New builds a catalog from the embedded dataset or a configured source.
func New(opts ...Option) (*Catalog, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}

	raw := embeddedDataset
	switch {
	case cfg.Dataset != nil:
		raw = cfg.Dataset
	case cfg.DatasetPath != "":
		data, err := os.ReadFile(cfg.DatasetPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read catalog dataset %s: %w", cfg.DatasetPath, err)
		}
		raw = data
	}

	var ds dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to parse catalog dataset: %w", err)
	}

	c := &Catalog{
		entries: ds.Symptoms,
		index:   make(map[string]int),
		generic: ds.Generic,
	}
	for i, entry := range c.entries {
		c.addTerm(entry.Symptom, i)
		for _, syn := range entry.Synonyms {
			c.addTerm(syn, i)
		}
	}
	// Longest terms first so "shortness of breath" wins over "breath".
	sort.Slice(c.terms, func(i, j int) bool { return len(c.terms[i]) > len(c.terms[j]) })

	slog.Debug("Catalog loaded", "symptoms", len(c.entries), "terms", len(c.terms), "generic_questions", len(c.generic))
	return c, nil
}

func (c *Catalog) addTerm(term string, idx int) {
	norm := Normalize(term)
	if norm == "" {
		return
	}
	if _, exists := c.index[norm]; !exists {
		c.index[norm] = idx
		c.terms = append(c.terms, norm)
	}
}

// Normalize lowercases and collapses whitespace for term matching.
func Normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(strings.TrimSpace(s))), " ")
}

// Lookup resolves free patient text to a catalog entry. The boolean result
// distinguishes "no match" from a matched entry whose question list happens
// to be empty.
func (c *Catalog) Lookup(text string) (*Entry, bool) {
	norm := Normalize(text)
	if norm == "" {
		return nil, false
	}
	if idx, ok := c.index[norm]; ok {
		return &c.entries[idx], true
	}
	for _, term := range c.terms {
		if strings.Contains(norm, term) {
			entry := &c.entries[c.index[term]]
			slog.Debug("Catalog.Lookup matched by substring", "text", text, "term", term, "symptom", entry.Symptom)
			return entry, true
		}
	}
	slog.Debug("Catalog.Lookup no match", "text", text)
	return nil, false
}

// Generic returns the fallback follow-up set used for unmatched symptoms.
func (c *Catalog) Generic() []Question {
	return c.generic
}

// Terms lists every matchable term, canonical names and synonyms alike,
// already normalized. Callers that keyword-match patient text start here.
func (c *Catalog) Terms() []string {
	out := make([]string, len(c.terms))
	copy(out, c.terms)
	return out
}

// Symptoms lists the canonical symptom names in dataset order.
func (c *Catalog) Symptoms() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Symptom
	}
	return names
}

// Len reports the number of catalog entries.
func (c *Catalog) Len() int {
	return len(c.entries)
}
