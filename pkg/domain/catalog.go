package domain

import (
	"fmt"
	"strings"
)

// Question is a single survey question. Index is its 0-based position in the catalog.
type Question struct {
	Index int    `json:"index"`
	Text  string `json:"text"`
}

// Catalog is the ordered, immutable sequence of survey questions.
// Answer position i always corresponds to question i, so the order is never changed.
type Catalog struct {
	questions []Question
}

// NewCatalog builds a catalog from question texts, preserving their order.
func NewCatalog(texts []string) (*Catalog, error) {
	if len(texts) == 0 {
		return nil, ErrCatalogEmpty
	}

	questions := make([]Question, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, fmt.Errorf("question %d: %w", i, ErrBlankQuestion)
		}
		questions[i] = Question{Index: i, Text: text}
	}
	return &Catalog{questions: questions}, nil
}

// Len returns the number of questions.
func (c *Catalog) Len() int {
	return len(c.questions)
}

// At returns the question at index i. It panics if i is out of range.
func (c *Catalog) At(i int) Question {
	return c.questions[i]
}

// Questions returns a copy of the questions in catalog order.
func (c *Catalog) Questions() []Question {
	out := make([]Question, len(c.questions))
	copy(out, c.questions)
	return out
}

// Texts returns the question texts in catalog order.
func (c *Catalog) Texts() []string {
	out := make([]string, len(c.questions))
	for i, q := range c.questions {
		out[i] = q.Text
	}
	return out
}
