package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"figtracker/internal/model"
)

// stubExtractor returns a fixed result and counts calls.
type stubExtractor struct {
	res   Result
	calls int
}

func (s *stubExtractor) Extract(context.Context, Input) Result {
	s.calls++
	return s.res
}

func TestChainSkipsFallbackAboveThreshold(t *testing.T) {
	primary := &stubExtractor{res: Result{
		Attributes: model.Attributes{Series: "원신"},
		Method:     "rules",
		Confidence: 0.8,
	}}
	fallback := &stubExtractor{res: Result{Method: "llm", Confidence: 0.9}}

	res := NewChain(primary, fallback, 0.6).Extract(context.Background(), Input{Name: "n"})

	assert.Equal(t, "rules", res.Method)
	assert.Equal(t, 0, fallback.calls)
}

func TestChainConsultsFallbackBelowThreshold(t *testing.T) {
	primary := &stubExtractor{res: Result{
		Method:     "rules",
		Confidence: 0.4,
		Barcode:    "4901234567890",
	}}
	fallback := &stubExtractor{res: Result{
		Attributes: model.Attributes{Series: "원신", Character: "푸리나"},
		Method:     "llm",
		Confidence: 0.9,
	}}

	res := NewChain(primary, fallback, 0.6).Extract(context.Background(), Input{Name: "n"})

	assert.Equal(t, "llm", res.Method)
	assert.Equal(t, "푸리나", res.Attributes.Character)
	// A barcode found by the primary survives the swap.
	assert.Equal(t, "4901234567890", res.Barcode)
}

func TestChainConsultsFallbackOnNone(t *testing.T) {
	primary := &stubExtractor{res: Result{None: true}}
	fallback := &stubExtractor{res: Result{Method: "llm", Confidence: 0.7}}

	res := NewChain(primary, fallback, 0.6).Extract(context.Background(), Input{Name: "n"})

	assert.False(t, res.None)
	assert.Equal(t, "llm", res.Method)
}

func TestChainKeepsPrimaryWhenFallbackWorse(t *testing.T) {
	primary := &stubExtractor{res: Result{Method: "rules", Confidence: 0.5}}
	fallback := &stubExtractor{res: Result{Method: "llm", Confidence: 0.3}}

	res := NewChain(primary, fallback, 0.6).Extract(context.Background(), Input{Name: "n"})

	assert.Equal(t, 1, fallback.calls)
	assert.Equal(t, "rules", res.Method)
}

func TestChainWithoutFallbackPassesThrough(t *testing.T) {
	primary := &stubExtractor{res: Result{None: true}}

	res := NewChain(primary, Fallback(), 0.6).Extract(context.Background(), Input{Name: "n"})

	assert.True(t, res.None)
	assert.Equal(t, 1, primary.calls)
}
