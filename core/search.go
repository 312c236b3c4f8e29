package core

import "context"

// SearchResult is one ranked document returned by a retrieval search.
type SearchResult struct {
	DocumentID string  `json:"document_id"`
	Filename   string  `json:"filename,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score"`
}

// Retriever searches a named corpus.
type Retriever interface {
	// Search returns at most topK results ordered by descending score. An
	// unknown corpus fails with ErrNotFound; an empty corpus yields no results.
	Search(ctx context.Context, corpusID, query string, topK int) ([]SearchResult, error)
}
