package upload

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

const maxTags = 30

// Metadata is what the channel sees for one upload.
type Metadata struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
	CategoryID  string   `json:"category_id"`
	Visibility  string   `json:"visibility"`
}

var categoryTags = map[types.Category][]string{
	types.CategoryFinance:   {"personal finance", "money", "budgeting"},
	types.CategoryInvesting: {"investing", "stock market", "portfolio"},
	types.CategoryCrypto:    {"crypto", "bitcoin", "blockchain"},
	types.CategoryAI:        {"artificial intelligence", "ai", "technology"},
	types.CategoryStartups:  {"startups", "entrepreneurship", "founders"},
	types.CategoryBusiness:  {"business", "strategy", "leadership"},
}

// BuildMetadata derives upload metadata from the request and its script.
// Chapters use the script's per-section timing.
func BuildMetadata(cfg config.UploadConfig, req types.GenerationRequest, script *types.Script) Metadata {
	m := Metadata{
		Title:      truncate(req.Title, cfg.TitleMaxChars),
		CategoryID: cfg.CategoryID,
		Visibility: cfg.Visibility,
	}
	cat := types.NormalizeCategory(req.Category)

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: a %s video essay.\n", req.Title, strings.ToLower(string(cat)))
	if script != nil && len(script.Sections) > 0 {
		sb.WriteString("\nChapters:\n")
		var at float64
		for _, s := range script.Sections {
			fmt.Fprintf(&sb, "%s %s\n", timestamp(at), s.Heading)
			at += s.DurationSec
		}
	}
	sb.WriteString("\nStock footage courtesy of Pexels and Unsplash.\n")
	m.Description = sb.String()

	tags := append([]string{}, categoryTags[cat]...)
	tags = append(tags, strings.ToLower(req.Title))
	if script != nil {
		for _, s := range script.Sections {
			tags = append(tags, strings.ToLower(s.Heading))
		}
	}
	tags = lo.Uniq(lo.Filter(tags, func(t string, _ int) bool { return strings.TrimSpace(t) != "" }))
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	m.Tags = tags
	return m
}

// timestamp formats seconds as m:ss, or h:mm:ss past the hour.
func timestamp(sec float64) string {
	total := int(sec)
	h, m, s := total/3600, (total%3600)/60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func truncate(s string, n int) string {
	if n <= 3 || utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-3]) + "..."
}
