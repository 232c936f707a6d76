// Package match scores retailer candidates against a free-text query and
// ranks them deterministically.
package match

import (
	"regexp"
	"sort"
	"strings"

	"github.com/agext/levenshtein"
	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/grocerpal/salewatch/internal/config"
	"github.com/grocerpal/salewatch/internal/model"
)

// Confidence labels for a match score.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// Score breaks down how a candidate scored against the query.
type Score struct {
	Total          float64
	NameSimilarity float64
	ExactBonus     float64
	BrandBonus     float64
	SizeBonus      float64
	KeywordBonus   float64
	Confidence     string
}

// Matcher scores and ranks candidates. Zero-value weights fall back to
// the standard defaults, so config can specify only what it overrides.
type Matcher struct {
	minSimilarity    float64
	exactBonus       float64
	brandBonus       float64
	sizeBonus        float64
	keywordBonus     float64
	highConfidence   float64
	mediumConfidence float64
}

// New creates a Matcher from config.
func New(cfg config.MatchConfig) *Matcher {
	m := &Matcher{
		minSimilarity:    cfg.MinSimilarity,
		exactBonus:       cfg.ExactMatchBonus,
		brandBonus:       cfg.BrandMatchBonus,
		sizeBonus:        cfg.SizeMatchBonus,
		keywordBonus:     cfg.KeywordBonus,
		highConfidence:   cfg.HighConfidence,
		mediumConfidence: cfg.MediumConfidence,
	}
	if m.minSimilarity <= 0 {
		m.minSimilarity = 0.3
	}
	if m.exactBonus <= 0 {
		m.exactBonus = 0.2
	}
	if m.brandBonus <= 0 {
		m.brandBonus = 0.15
	}
	if m.sizeBonus <= 0 {
		m.sizeBonus = 0.1
	}
	if m.keywordBonus <= 0 {
		m.keywordBonus = 0.05
	}
	if m.highConfidence <= 0 {
		m.highConfidence = 0.8
	}
	if m.mediumConfidence <= 0 {
		m.mediumConfidence = 0.6
	}
	return m
}

var (
	caser = cases.Fold()

	retailerPrefixes = []string{
		"woolworths ", "coles ", "iga ", "aldi ", "macro ", "homebrand ",
		"select ", "brand ", "organic ", "free range ", "natural ",
	}

	commonBrands = map[string]struct{}{
		"woolworths": {}, "coles": {}, "iga": {}, "aldi": {}, "macro": {},
		"homebrand": {}, "cadbury": {}, "nestle": {}, "kellogg": {},
		"uncle tobys": {}, "sanitarium": {}, "bega": {}, "devondale": {},
		"paul's": {}, "dairy farmers": {}, "norco": {}, "steggles": {},
		"lilydale": {}, "ingham's": {}, "tegel": {}, "primo": {},
		"masterfoods": {}, "maggi": {}, "continental": {}, "praise": {},
		"fountain": {},
	}

	sizeKeywords = []string{
		"ml", "l", "litre", "liter", "g", "kg", "gram", "kilogram",
		"pack", "each", "dozen", "bunch", "bag", "box", "bottle",
		"can", "jar", "tube", "punnet", "tray", "roll", "sheet",
	}

	stopWords = map[string]struct{}{
		"the": {}, "and": {}, "or": {}, "but": {}, "in": {}, "on": {},
		"at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
		"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "were": {},
		"be": {}, "been": {}, "being": {}, "have": {}, "has": {},
		"had": {}, "do": {}, "does": {}, "did": {}, "will": {},
		"would": {}, "could": {}, "should": {}, "may": {}, "might": {},
		"must": {}, "can": {}, "this": {}, "that": {}, "these": {},
		"those": {}, "a": {}, "an": {},
	}

	litreRe     = regexp.MustCompile(`\b(\d+)\s*litres?\b|\b(\d+)\s*liters?\b`)
	mlRe        = regexp.MustCompile(`\b(\d+)\s*ml\b`)
	gramRe      = regexp.MustCompile(`\b(\d+)\s*grams?\b`)
	kgRe        = regexp.MustCompile(`\b(\d+)\s*(?:kgs?|kilograms?)\b`)
	wordRe      = regexp.MustCompile(`\b\w+\b`)
	spaceRe     = regexp.MustCompile(`\s+`)
	sizeTokenRe = regexp.MustCompile(`\d+(?:\.\d+)?(?:ml|l|g|kg)`)
	stockcodeRe = regexp.MustCompile(`\s*\[[A-Z]+:\w+\]\s*$`)
)

// Normalize lowercases a product name, strips the internal stockcode
// suffix and a leading retailer prefix, and canonicalizes size units so
// "2 litres" and "2L" compare equal.
func Normalize(name string) string {
	if name == "" {
		return ""
	}
	n := stockcodeRe.ReplaceAllString(name, "")
	n = strings.TrimSpace(caser.String(n))

	for _, prefix := range retailerPrefixes {
		if strings.HasPrefix(n, prefix) {
			n = n[len(prefix):]
			break
		}
	}

	n = litreRe.ReplaceAllString(n, "${1}${2}l")
	n = mlRe.ReplaceAllString(n, "${1}ml")
	n = gramRe.ReplaceAllString(n, "${1}g")
	n = kgRe.ReplaceAllString(n, "${1}kg")

	return strings.TrimSpace(spaceRe.ReplaceAllString(n, " "))
}

// Keywords extracts the meaningful words of a normalized name.
func Keywords(text string) []string {
	if text == "" {
		return nil
	}
	var out []string
	for _, w := range wordRe.FindAllString(Normalize(text), -1) {
		if len(w) < 2 {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		out = append(out, w)
	}
	return out
}

func keywordSet(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, w := range Keywords(text) {
		set[w] = struct{}{}
	}
	return set
}

// Score computes the full match score of a candidate name for a query.
func (m *Matcher) Score(query, name string) Score {
	if query == "" || name == "" {
		return Score{Confidence: ConfidenceLow}
	}

	normQuery := Normalize(query)
	normName := Normalize(name)
	if normQuery == "" || normName == "" {
		return Score{Confidence: ConfidenceLow}
	}

	similarity := levenshtein.Similarity(normQuery, normName, levenshtein.NewParams())

	queryWords := keywordSet(query)
	nameWords := keywordSet(name)
	jaccard := jaccard(queryWords, nameWords)

	base := similarity*0.6 + jaccard*0.4

	s := Score{
		NameSimilarity: base,
		ExactBonus:     m.exactMatchBonus(queryWords, nameWords),
		BrandBonus:     m.brandMatchBonus(query, name),
		SizeBonus:      m.sizeMatchBonus(normQuery, normName),
		KeywordBonus:   m.keywordCountBonus(queryWords, nameWords),
	}
	s.Total = base + s.ExactBonus + s.BrandBonus + s.SizeBonus + s.KeywordBonus
	if s.Total > 1.0 {
		s.Total = 1.0
	}

	switch {
	case s.Total >= m.highConfidence:
		s.Confidence = ConfidenceHigh
	case s.Total >= m.mediumConfidence:
		s.Confidence = ConfidenceMedium
	default:
		s.Confidence = ConfidenceLow
	}
	return s
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for w := range a {
		if _, ok := b[w]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}

func (m *Matcher) exactMatchBonus(queryWords, nameWords map[string]struct{}) float64 {
	if len(queryWords) == 0 {
		return 0
	}
	matches := 0
	for w := range queryWords {
		if _, ok := nameWords[w]; ok {
			matches++
		}
	}
	return float64(matches) / float64(len(queryWords)) * m.exactBonus
}

func (m *Matcher) brandMatchBonus(query, name string) float64 {
	queryLower := strings.ToLower(query)
	nameLower := strings.ToLower(name)
	for brand := range commonBrands {
		if strings.Contains(queryLower, brand) && strings.Contains(nameLower, brand) {
			return m.brandBonus
		}
	}
	return 0
}

func (m *Matcher) sizeMatchBonus(normQuery, normName string) float64 {
	bonus := 0.0
	for _, kw := range sizeKeywords {
		if strings.Contains(normQuery, kw) && strings.Contains(normName, kw) {
			bonus += m.sizeBonus * 0.5
		}
	}

	nameSizes := sizeTokenRe.FindAllString(normName, -1)
	for _, qs := range sizeTokenRe.FindAllString(normQuery, -1) {
		for _, ns := range nameSizes {
			if qs == ns {
				bonus += m.sizeBonus
				break
			}
		}
	}

	if bonus > m.sizeBonus {
		bonus = m.sizeBonus
	}
	return bonus
}

func (m *Matcher) keywordCountBonus(queryWords, nameWords map[string]struct{}) float64 {
	matches := 0
	for w := range queryWords {
		if _, ok := nameWords[w]; ok {
			matches++
		}
	}
	bonus := float64(matches) * m.keywordBonus
	if limit := m.keywordBonus * 3; bonus > limit {
		bonus = limit
	}
	return bonus
}

// Rank scores every candidate, discards those below the similarity
// threshold and returns the rest in a total deterministic order: score
// descending, then on-sale first, then price ascending, then original
// input position. Equal inputs always produce the same ranking.
func (m *Matcher) Rank(query string, candidates []model.Candidate) []model.RankedAlternative {
	type scored struct {
		model.RankedAlternative
		pos int
	}

	var kept []scored
	for i, c := range candidates {
		if c.Name == "" {
			continue
		}
		s := m.Score(query, c.Name)
		if s.Total < m.minSimilarity {
			continue
		}
		kept = append(kept, scored{
			RankedAlternative: model.RankedAlternative{
				Candidate:  c,
				MatchScore: s.Total,
			},
			pos: i,
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		a, b := kept[i], kept[j]
		if a.MatchScore != b.MatchScore {
			return a.MatchScore > b.MatchScore
		}
		if a.OnSale != b.OnSale {
			return a.OnSale
		}
		ap, bp := a.Price, b.Price
		switch {
		case ap != nil && bp != nil && *ap != *bp:
			return *ap < *bp
		case ap != nil && bp == nil:
			return true
		case ap == nil && bp != nil:
			return false
		}
		return a.pos < b.pos
	})

	out := make([]model.RankedAlternative, len(kept))
	for i, s := range kept {
		s.Rank = i + 1
		out[i] = s.RankedAlternative
	}

	zap.L().Debug("ranked candidates",
		zap.String("query", query),
		zap.Int("candidates", len(candidates)),
		zap.Int("kept", len(out)))
	return out
}

// Best returns the top-ranked candidate and its score, or false when no
// candidate clears the similarity threshold.
func (m *Matcher) Best(query string, candidates []model.Candidate) (model.RankedAlternative, bool) {
	ranked := m.Rank(query, candidates)
	if len(ranked) == 0 {
		return model.RankedAlternative{}, false
	}
	return ranked[0], true
}
