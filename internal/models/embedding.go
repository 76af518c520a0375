package models

import "unicode/utf8"

// TextUnit is one normalized piece of a source document, e.g. a PDF page.
type TextUnit struct {
	Content     string
	Source      string
	ContentType string
	PageNumber  int
	Title       string
}

// Passage represents a chunk with metadata, the unit of retrieval
type Passage struct {
	ID          string
	Content     string
	Source      string
	ContentType string
	PageNumber  int
	ChunkID     int
	Embedding   []float32
}

// Len returns the passage length in characters.
func (p Passage) Len() int {
	return utf8.RuneCountInString(p.Content)
}

// ScoredPassage is a search hit. Score is the cosine similarity.
type ScoredPassage struct {
	Passage
	Score float32
}

// Answer is the outcome of one chat turn.
type Answer struct {
	Question   string
	Standalone string
	Content    string
	Sources    []ScoredPassage
	Fallback   bool
}
