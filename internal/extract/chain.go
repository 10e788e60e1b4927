package extract

import "context"

// Chain runs a primary extractor and consults a fallback when the
// primary comes up empty or below the confidence threshold. The
// higher-confidence result wins; a barcode found by either survives.
type Chain struct {
	primary   Extractor
	fallback  Extractor
	threshold float64
}

// NewChain builds a chain. A nil fallback leaves the primary alone,
// which is the default wiring when no external extractor is installed.
func NewChain(primary, fallback Extractor, threshold float64) *Chain {
	return &Chain{primary: primary, fallback: fallback, threshold: threshold}
}

func (c *Chain) Extract(ctx context.Context, in Input) Result {
	res := c.primary.Extract(ctx, in)
	if c.fallback == nil {
		return res
	}
	if !res.None && res.Confidence >= c.threshold {
		return res
	}

	fb := c.fallback.Extract(ctx, in)
	if fb.None {
		return res
	}
	if fb.Barcode == "" {
		fb.Barcode = res.Barcode
	}
	if res.None || fb.Confidence > res.Confidence {
		return fb
	}
	return res
}

// fallbackFactory builds the external fallback extractor, when one is
// linked in. Mirrors the storefront registry in the scrape package.
var fallbackFactory func() Extractor

// RegisterFallback installs the constructor for the external fallback
// extractor. Call from an init function.
func RegisterFallback(f func() Extractor) {
	fallbackFactory = f
}

// Fallback returns a new fallback extractor, or nil when none is
// registered.
func Fallback() Extractor {
	if fallbackFactory == nil {
		return nil
	}
	return fallbackFactory()
}
