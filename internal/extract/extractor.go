// Package extract turns a free-text listing name into structured
// attributes. The boundary contract: extraction never returns an error
// and never panics past this package; a failed extraction yields a
// Result with None set, and callers persist whatever partial fields
// exist.
package extract

import (
	"context"

	"figtracker/internal/model"
)

// Input carries the listing context an extractor may use.
type Input struct {
	Name         string
	Site         string
	Category     string
	Manufacturer string
	URL          string
}

// Result is the outcome of one extraction. None replaces error-based
// control flow: when set, Attributes and Confidence are meaningless.
type Result struct {
	Attributes model.Attributes

	// Method records which strategy produced the attributes
	// (e.g. "rules", "llm").
	Method string

	// Confidence is the extractor's self-assessed accuracy, 0..1.
	Confidence float64

	// Barcode is an external product code discovered during
	// extraction (detail-page fetch), if any.
	Barcode string

	// None marks a failed or empty extraction.
	None bool
}

// Extractor is implemented by attribute-extraction strategies. The
// richer LLM-backed extractor lives outside this repository and is
// consumed only through this interface.
type Extractor interface {
	Extract(ctx context.Context, in Input) Result
}
