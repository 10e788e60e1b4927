package extract

import (
	"context"
	"regexp"
	"strings"

	"figtracker/internal/model"
)

// RulesExtractor derives attributes from known site naming patterns.
// It is the always-available strategy; an external fallback extractor
// can be layered behind it when its confidence is low.
type RulesExtractor struct{}

// NewRulesExtractor returns the rule-based extraction strategy.
func NewRulesExtractor() *RulesExtractor {
	return &RulesExtractor{}
}

var (
	scaleRe    = regexp.MustCompile(`(?i)1/(\d+)\s*(?:스케일)?`)
	nonScaleRe = regexp.MustCompile(`논\s*스케일|(?i)non[ -]?scale`)

	// Bracket-enclosed manufacturer or series: [굿스마일컴퍼니]
	bracketRe = regexp.MustCompile(`\[([^\]]+)\]`)
	parenRe   = regexp.MustCompile(`\(([^)]*)\)`)

	versionRe = regexp.MustCompile(
		`(?i)(디럭스|deluxe|통상판?|standard|바니|bunny|호화판|limited|한정판?|재판)\s*(ver\.?|판|version|에디션|edition)?`)
	specificVerRe = regexp.MustCompile(`\S+\s*[Vv]er\.?`)

	trailingCodeRe = regexp.MustCompile(`\b\d{4,}\s*$`)
	noDotCodeRe    = regexp.MustCompile(`No\.\s*\d+`)
	multiSpaceRe   = regexp.MustCompile(`\s+`)
)

// productLine pairs a detection pattern with its canonical name.
// Order matters: longer / more specific lines first.
type productLine struct {
	re   *regexp.Regexp
	name string
}

var productLines = []productLine{
	{regexp.MustCompile(`(?i)POP\s*UP\s*PARADE`), "POP UP PARADE"},
	{regexp.MustCompile(`(?i)HELLO!\s*GOOD\s*SMILE`), "HELLO! GOOD SMILE"},
	{regexp.MustCompile(`(?i)Huggy\s*Good\s*Smile|허기\s*굿스마일`), "Huggy Good Smile"},
	{regexp.MustCompile(`(?i)ARTFX\s*J`), "ARTFX J"},
	{regexp.MustCompile(`(?i)ARTFX`), "ARTFX"},
	{regexp.MustCompile(`(?i)넨도로이드|nendoroid`), "넨도로이드"},
	{regexp.MustCompile(`(?i)figma`), "figma"},
	{regexp.MustCompile(`(?i)S\.H\.\s*Figuarts|figuarts`), "S.H.Figuarts"},
	{regexp.MustCompile(`(?i)GRANDISTA|그랜디스타`), "GRANDISTA"},
	{regexp.MustCompile(`(?i)룩업|Look\s*Up|Lookup`), "Lookup"},
	{regexp.MustCompile(`(?i)누들\s*스토퍼|Noodle\s*Stopper`), "Noodle Stopper"},
	{regexp.MustCompile(`(?i)PalVerse`), "PalVerse"},
	{regexp.MustCompile(`(?i)프레임\s*암즈|Frame\s*Arms`), "Frame Arms"},
	{regexp.MustCompile(`(?i)G\.E\.M\.`), "G.E.M."},
	{regexp.MustCompile(`(?i)Q\s*posket`), "Q posket"},
}

// knownManufacturers maps observed spellings to canonical names.
var knownManufacturers = map[string]string{
	"반프레스토":      "반프레스토",
	"메가하우스":      "메가하우스",
	"굿스마일컴퍼니":    "굿스마일컴퍼니",
	"굿스마일":       "굿스마일컴퍼니",
	"굿스마일아츠상하이":  "굿스마일 아츠 상하이",
	"굿스마일 아츠 상하이": "굿스마일 아츠 상하이",
	"코토부키야":      "코토부키야",
	"후류":         "후류",
	"세가":         "세가",
	"부시로드":       "부시로드",
	"반다이":        "반다이",
	"타카라토미":      "타카라토미",
	"유니온 크리에이티브":  "유니온 크리에이티브",
	"맥스팩토리":      "맥스팩토리",
	"알터":         "알터",
	"프리잉":        "프리잉",
	"아쿠아마린":      "아쿠아마린",
	"플레어":        "플레어",
	"하비사쿠라":      "하비사쿠라",
}

// knownSeries maps observed spellings to canonical series names.
var knownSeries = map[string]string{
	"귀멸의 칼날":      "귀멸의 칼날",
	"원신":          "원신",
	"블루 아카이브":     "블루 아카이브",
	"블루아카이브":      "블루 아카이브",
	"하이큐":         "하이큐!!",
	"하이큐!!":       "하이큐!!",
	"스파이 패밀리":     "스파이 패밀리",
	"SPY×FAMILY":  "스파이 패밀리",
	"홀로라이브":       "홀로라이브",
	"블루록":         "블루록",
	"벽람항로":        "벽람항로",
	"나루토":         "나루토",
	"보컬로이드":       "보컬로이드",
	"젠레스 존 제로":    "젠레스 존 제로",
	"승리의 여신: 니케":  "승리의 여신: 니케",
	"승리의 여신 니케":   "승리의 여신: 니케",
	"니케":          "승리의 여신: 니케",
	"페르소나5":       "페르소나5",
	"장송의 프리렌":     "장송의 프리렌",
	"에반게리온":       "에반게리온",
	"진격의 거인":      "진격의 거인",
	"원피스":         "원피스",
	"드래곤볼":        "드래곤볼",
	"주술회전":        "주술회전",
	"체인소 맨":       "체인소 맨",
	"나의 히어로 아카데미아": "나의 히어로 아카데미아",
	"리코리스 리코일":    "리코리스 리코일",
	"명일방주":        "명일방주",
	"세일러문":        "세일러문",
	"소녀전선":        "소녀전선",
	"명조":          "명조",
}

// noisePatterns are site-specific decorations stripped before analysis.
var noisePatterns = []*regexp.Regexp{
	regexp.MustCompile(`\[예약상품/[^\]]*\]`),
	regexp.MustCompile(`\[\d+년\d+월[^\]]*입고[^\]]*\]`),
	regexp.MustCompile(`\[\d+월[^\]]*입고[^\]]*\]`),
	regexp.MustCompile(`\(당일발송\)`),
	regexp.MustCompile(`\(\d+년\s*\d+월\s*발매\)`),
	regexp.MustCompile(`\[특가세일\]`),
	regexp.MustCompile(`\[독점유통\]`),
	regexp.MustCompile(`\[총판\]`),
	regexp.MustCompile(`특전포함|특전증정`),
	regexp.MustCompile(`\(한정/특전포함\)`),
	regexp.MustCompile(`\(굿즈\)`),
	regexp.MustCompile(`\(프라모델\)`),
}

// Extract derives attributes from the listing name with regex rules.
// It always succeeds; an unrecognizable name yields a near-empty
// attribute set with low confidence rather than None, so callers keep
// whatever partial signal exists.
func (e *RulesExtractor) Extract(_ context.Context, in Input) Result {
	name := in.Name
	if strings.TrimSpace(name) == "" {
		return Result{None: true}
	}

	scale := extractScale(name)
	line := extractProductLine(name)
	mfr := extractManufacturer(name, in.Manufacturer)
	series := extractSeries(name)
	version := extractVersion(name)
	character := extractCharacter(name, series, line)

	attrs := model.Attributes{
		Series:       series,
		Character:    character,
		Manufacturer: mfr,
		Scale:        scale,
		Version:      version,
		ProductLine:  line,
		ProductType:  guessProductType(name, line),
	}

	// Confidence scales with how many of the high-signal fields came out.
	filled := 0
	for _, v := range []string{series, character, mfr, scale} {
		if v != "" {
			filled++
		}
	}
	confidence := 0.1
	switch {
	case filled >= 3:
		confidence = 0.8
	case filled == 2:
		confidence = 0.6
	case filled == 1:
		confidence = 0.4
	}
	if line != "" && confidence < 0.9 {
		confidence += 0.1
	}

	return Result{
		Attributes: attrs,
		Method:     "rules",
		Confidence: confidence,
		None:       attrs.Empty(),
	}
}

func stripNoise(name string) string {
	cleaned := name
	for _, re := range noisePatterns {
		cleaned = re.ReplaceAllString(cleaned, " ")
	}
	return strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))
}

func extractScale(name string) string {
	if m := scaleRe.FindStringSubmatch(name); m != nil {
		return "1/" + m[1]
	}
	if nonScaleRe.MatchString(name) {
		return "non-scale"
	}
	return ""
}

func extractProductLine(name string) string {
	for _, pl := range productLines {
		if pl.re.MatchString(name) {
			return pl.name
		}
	}
	return ""
}

func extractManufacturer(name, existing string) string {
	for _, bracket := range bracketRe.FindAllStringSubmatch(name, -1) {
		if canonical, ok := knownManufacturers[strings.TrimSpace(bracket[1])]; ok {
			return canonical
		}
	}
	for key, canonical := range knownManufacturers {
		if strings.Contains(name, key) {
			return canonical
		}
	}
	if existing != "" {
		for key, canonical := range knownManufacturers {
			if strings.Contains(existing, key) {
				return canonical
			}
		}
		return existing
	}
	return ""
}

func extractSeries(name string) string {
	for _, bracket := range bracketRe.FindAllStringSubmatch(name, -1) {
		if canonical, ok := knownSeries[strings.TrimSpace(bracket[1])]; ok {
			return canonical
		}
	}
	for key, canonical := range knownSeries {
		if strings.Contains(name, key) {
			return canonical
		}
	}
	return ""
}

func extractVersion(name string) string {
	if m := specificVerRe.FindString(name); len(strings.TrimSpace(m)) > 3 {
		return strings.TrimSpace(m)
	}
	if m := versionRe.FindString(name); m != "" {
		return strings.TrimSpace(m)
	}
	return ""
}

// extractCharacter strips every recognized component from the name and
// takes what survives as the character name.
func extractCharacter(name, series, line string) string {
	cleaned := stripNoise(name)

	cleaned = bracketRe.ReplaceAllString(cleaned, " ")
	cleaned = parenRe.ReplaceAllString(cleaned, " ")

	if line != "" {
		for _, pl := range productLines {
			cleaned = pl.re.ReplaceAllString(cleaned, " ")
		}
	}

	cleaned = scaleRe.ReplaceAllString(cleaned, " ")
	cleaned = nonScaleRe.ReplaceAllString(cleaned, " ")
	cleaned = versionRe.ReplaceAllString(cleaned, " ")
	cleaned = specificVerRe.ReplaceAllString(cleaned, " ")

	for key := range knownManufacturers {
		cleaned = strings.ReplaceAll(cleaned, key, " ")
	}
	if series != "" {
		for key, canonical := range knownSeries {
			if canonical == series {
				cleaned = strings.ReplaceAll(cleaned, key, " ")
			}
		}
	}

	for _, word := range []string{"스케일", "피규어", "figure", "No.", "사이즈", "Vol.", "단품"} {
		cleaned = strings.ReplaceAll(cleaned, word, " ")
	}

	cleaned = trailingCodeRe.ReplaceAllString(cleaned, "")
	cleaned = noDotCodeRe.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(multiSpaceRe.ReplaceAllString(cleaned, " "))

	if len([]rune(cleaned)) > 2 {
		return cleaned
	}
	return ""
}

// guessProductType classifies the broad product kind. Figure lines and
// scale markers dominate the corpus; everything else stays unlabeled so
// the match tiers skip it rather than mis-group it.
func guessProductType(name, line string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.Contains(lower, "키링") || strings.Contains(lower, "keychain"):
		return "keychain"
	case strings.Contains(lower, "아크릴") || strings.Contains(lower, "acrylic"):
		return "acrylic"
	case strings.Contains(lower, "인형") || strings.Contains(lower, "plush"):
		return "plushie"
	case line != "" || scaleRe.MatchString(name) || nonScaleRe.MatchString(name) ||
		strings.Contains(lower, "피규어") || strings.Contains(lower, "figure"):
		return "figure"
	}
	return ""
}
