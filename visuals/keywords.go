package visuals

import (
	"strings"

	"github.com/samber/lo"

	"video-essay-pipeline/types"
)

var categoryKeywords = map[types.Category][]string{
	types.CategoryFinance:   {"money", "calculator", "budget", "savings", "financial planning", "investment", "banking"},
	types.CategoryInvesting: {"stock market", "trading", "portfolio", "charts", "financial growth", "business", "success"},
	types.CategoryCrypto:    {"bitcoin", "blockchain", "digital currency", "technology", "computer", "finance"},
	types.CategoryAI:        {"artificial intelligence", "computer", "technology", "data", "innovation", "future", "robotics"},
	types.CategoryStartups:  {"business", "entrepreneur", "office", "team", "innovation", "growth", "success"},
	types.CategoryBusiness:  {"office", "meeting", "professional", "team", "corporate", "success", "growth"},
}

var styleModifiers = map[string][]string{
	"corporate":  {"professional", "clean", "office"},
	"modern":     {"sleek", "contemporary", "digital"},
	"minimalist": {"simple", "clean", "minimal"},
	"cinematic":  {"dramatic", "high quality", "cinematic"},
}

// SearchTerms returns the ordered stock-media queries for a category and
// visual style. Unknown categories use the business table; unknown styles
// add nothing.
func SearchTerms(category, visualStyle string) []string {
	base, ok := categoryKeywords[types.NormalizeCategory(category)]
	if !ok {
		base = categoryKeywords[types.CategoryBusiness]
	}
	mods := styleModifiers[strings.ToLower(strings.TrimSpace(visualStyle))]

	terms := make([]string, 0, len(base)+len(mods))
	terms = append(terms, base...)
	terms = append(terms, mods...)
	return lo.Uniq(terms)
}
