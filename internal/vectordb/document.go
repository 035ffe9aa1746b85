package vectordb

import "time"

// Document is one chunk of the knowledge base.
type Document struct {
	ID       string
	Content  string
	Metadata DocumentMetadata
}

// DocumentMetadata holds structured information about a chunk.
type DocumentMetadata struct {
	Source      string // path relative to the ingested root
	Section     string // nearest heading, if any
	ChunkIndex  int
	ContentHash string
	LastUpdated time.Time
}

// SearchResult pairs a document with its similarity score.
type SearchResult struct {
	Document   Document
	Similarity float32
}

// SearchFilter allows narrowing search results by metadata fields.
type SearchFilter struct {
	Source *string
}

// clampSimilarity maps a cosine similarity onto [0,1]; anti-correlated
// vectors count as unrelated.
func clampSimilarity(s float32) float32 {
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
