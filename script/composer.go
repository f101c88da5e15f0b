package script

import (
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

// Composer grows a narration script to a word budget derived from the
// requested duration. It is safe for concurrent use.
type Composer struct {
	reg             *Registry
	wpm             int
	introShare      float64
	conclusionShare float64
	log             *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Composer. A nil rng is replaced with a time-seeded source;
// pass rand.New(rand.NewSource(n)) for reproducible scripts.
func New(cfg config.ScriptConfig, reg *Registry, rng *rand.Rand, logger *slog.Logger) *Composer {
	if reg == nil {
		reg = NewRegistry()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = slog.Default()
	}
	wpm := cfg.WordsPerMinute
	if wpm <= 0 {
		wpm = 150
	}
	return &Composer{
		reg:             reg,
		wpm:             wpm,
		introShare:      cfg.IntroShare,
		conclusionShare: cfg.ConclusionShare,
		log:             logger.With("component", "script"),
		rng:             rng,
	}
}

type part struct {
	heading string
	seed    string
	target  int
}

// Compose builds the script. It never fails: unknown categories use the
// default template and unknown tones read as professional.
//
// Each part is truncated to its exact word target, which can cut the last
// sentence mid-way.
func (c *Composer) Compose(title, category string, durationMinutes float64, tone string) *types.Script {
	cat := types.NormalizeCategory(category)
	tmpl, known := c.reg.Lookup(cat)
	if !known {
		c.log.Info("no template for category, using default", "category", category)
	}
	tone = normalizeTone(tone)
	toneSet := tonePools[tone]

	pool := make([]string, 0, len(toneSet.fillers)+len(tmpl.Fillers))
	pool = append(pool, toneSet.fillers...)
	for _, f := range tmpl.Fillers {
		pool = append(pool, substitute(f, title, strings.ToLower(title)))
	}

	parts := c.plan(title, tmpl, toneSet.lead, durationMinutes)

	s := &types.Script{Title: title, Category: cat, Tone: tone}
	bodies := make([]string, 0, len(parts))
	for _, p := range parts {
		if p.target <= 0 {
			continue
		}
		body := c.expand(p.seed, pool, p.target)
		bodies = append(bodies, body)
		s.Sections = append(s.Sections, types.Section{
			Heading:     p.heading,
			Body:        body,
			WordCount:   p.target,
			DurationSec: float64(p.target) / float64(c.wpm) * 60,
		})
		s.WordCount += p.target
	}
	s.FullText = strings.Join(bodies, "\n\n")

	c.log.Debug("script composed", "title", title, "category", cat, "tone", tone,
		"sections", len(s.Sections), "words", s.WordCount)
	return s
}

// Budget returns the total word target for a duration.
func (c *Composer) Budget(durationMinutes float64) int {
	if durationMinutes <= 0 {
		return 0
	}
	return int(math.Round(durationMinutes * float64(c.wpm)))
}

// plan splits the budget: intro and conclusion take their configured shares
// and the rest is spread over the template sections, with rounding
// leftovers going to the earliest sections. Targets always sum to the budget.
func (c *Composer) plan(title string, tmpl Template, lead string, durationMinutes float64) []part {
	total := c.Budget(durationMinutes)
	intro := int(math.Round(float64(total) * c.introShare))
	conclusion := int(math.Round(float64(total) * c.conclusionShare))
	body := total - intro - conclusion
	if body < 0 {
		body, conclusion = 0, total-intro
	}

	n := len(tmpl.Sections)
	if n == 0 {
		intro, body, n = intro+body, 0, 1
	}
	per, rem := body/n, body%n

	parts := make([]part, 0, n+2)
	parts = append(parts, part{
		heading: "Introduction",
		seed:    substitute(tmpl.Intro, title, strings.ToLower(title)),
		target:  intro,
	})
	for i, topic := range tmpl.Sections {
		target := per
		if i < rem {
			target++
		}
		parts = append(parts, part{
			heading: topic,
			seed:    fmt.Sprintf("%s %s is where %s gets practical.", lead, strings.ToLower(topic), title),
			target:  target,
		})
	}
	parts = append(parts, part{
		heading: "Conclusion",
		seed:    substitute(tmpl.Conclusion, title, strings.ToLower(title)),
		target:  conclusion,
	})
	return parts
}

func (c *Composer) expand(seed string, pool []string, target int) string {
	words := strings.Fields(seed)

	c.mu.Lock()
	last := -1
	for len(words) < target {
		i := c.rng.Intn(len(pool))
		if i == last && len(pool) > 1 {
			i = (i + 1) % len(pool)
		}
		last = i
		words = append(words, strings.Fields(pool[i])...)
	}
	c.mu.Unlock()

	return strings.Join(words[:target], " ")
}
