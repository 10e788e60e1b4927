package extract

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractScaleAndManufacturer(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{
		Name: "[굿스마일컴퍼니] 원신 푸리나 1/7 스케일 피규어",
		Site: "store1",
	})

	assert.False(t, res.None)
	assert.Equal(t, "rules", res.Method)
	assert.Equal(t, "원신", res.Attributes.Series)
	assert.Equal(t, "굿스마일컴퍼니", res.Attributes.Manufacturer)
	assert.Equal(t, "1/7", res.Attributes.Scale)
	assert.Equal(t, "figure", res.Attributes.ProductType)
	assert.NotEmpty(t, res.Attributes.Character)
	// All four high-signal fields filled.
	assert.InDelta(t, 0.8, res.Confidence, 1e-9)
}

func TestExtractProductLineBoostsConfidence(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{
		Name: "넨도로이드 하츠네 미쿠",
	})

	assert.Equal(t, "넨도로이드", res.Attributes.ProductLine)
	assert.Equal(t, "figure", res.Attributes.ProductType)
	// One filled field (character) plus the product-line boost.
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestExtractNonScale(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{
		Name: "[반프레스토] 주술회전 고죠 사토루 논스케일 피규어",
	})

	assert.Equal(t, "non-scale", res.Attributes.Scale)
	assert.Equal(t, "반프레스토", res.Attributes.Manufacturer)
	assert.Equal(t, "주술회전", res.Attributes.Series)
}

func TestExtractSeriesAliases(t *testing.T) {
	e := NewRulesExtractor()

	for _, name := range []string{
		"블루아카이브 시로코 피규어",
		"블루 아카이브 시로코 피규어",
	} {
		res := e.Extract(context.Background(), Input{Name: name})
		assert.Equal(t, "블루 아카이브", res.Attributes.Series, "name %q", name)
	}
}

func TestExtractManufacturerFromRawField(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{
		Name:         "원피스 루피 기어5 피규어",
		Manufacturer: "메가하우스(일본)",
	})

	assert.Equal(t, "메가하우스", res.Attributes.Manufacturer)
}

func TestExtractStripsNoiseDecorations(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{
		Name: "[예약상품/2월입고] 원신 푸리나 1/7 스케일 피규어 (당일발송)",
	})

	assert.NotContains(t, res.Attributes.Character, "예약상품")
	assert.NotContains(t, res.Attributes.Character, "당일발송")
}

func TestExtractEmptyNameIsNone(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{Name: "   "})

	assert.True(t, res.None)
}

func TestExtractUnrecognizableNameLowConfidence(t *testing.T) {
	e := NewRulesExtractor()

	res := e.Extract(context.Background(), Input{Name: "mystery item box"})

	assert.False(t, res.None)
	assert.LessOrEqual(t, res.Confidence, 0.4)
}

func TestGuessProductType(t *testing.T) {
	tests := []struct {
		name string
		line string
		want string
	}{
		{"원신 푸리나 아크릴 스탠드", "", "acrylic"},
		{"치이카와 인형 M사이즈", "", "plushie"},
		{"하이큐 키링 세트", "", "keychain"},
		{"주술회전 고죠 사토루 피규어", "", "figure"},
		{"figma 시로코", "figma", "figure"},
		{"정체불명 상품", "", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, guessProductType(tt.name, tt.line), "name %q", tt.name)
	}
}
