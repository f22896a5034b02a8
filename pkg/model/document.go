package model

import (
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/oklog/ulid/v2"
)

type DocumentID string

// NewDocumentID generates a new time-ordered DocumentID
func NewDocumentID() DocumentID {
	return DocumentID(ulid.Make().String())
}

// Document is a unit of semantic memory. Documents are immutable in v1; a
// content change creates a new document rather than updating in place.
type Document struct {
	ID        DocumentID
	Content   string
	Embedding []float32
	Metadata  Metadata
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate checks the document against the process-wide embedding dimension.
// A dimension mismatch is rejected at write time, never truncated or padded.
func (d *Document) Validate(dimension int) error {
	if strings.TrimSpace(d.Content) == "" {
		return ErrEmptyContent
	}
	if len(d.Embedding) > 0 && len(d.Embedding) != dimension {
		return goerr.Wrap(ErrDimensionMismatch, "embedding rejected",
			goerr.V("got", len(d.Embedding)),
			goerr.V("want", dimension))
	}
	return d.Metadata.Validate()
}

// ScoredDocument pairs a document with its cosine distance from a query
// embedding. Smaller distance means more similar.
type ScoredDocument struct {
	Document *Document
	Distance float64
}
