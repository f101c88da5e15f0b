package script

import (
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"video-essay-pipeline/types"
)

// DefaultCategory is used for any category without its own template.
const DefaultCategory types.Category = "default"

// Template is the fixed skeleton a script is grown from
type Template struct {
	Intro      string   `yaml:"intro"`
	Sections   []string `yaml:"sections"`
	Conclusion string   `yaml:"conclusion"`
	Fillers    []string `yaml:"fillers"` // category-flavored sentences, {title} and {topic} are substituted
}

// Registry maps categories to templates. The zero value is unusable; use
// NewRegistry.
type Registry struct {
	mu        sync.RWMutex
	templates map[types.Category]Template
}

// NewRegistry returns a registry seeded with the built-in templates.
func NewRegistry() *Registry {
	r := &Registry{templates: make(map[types.Category]Template, len(builtinTemplates))}
	for k, v := range builtinTemplates {
		r.templates[k] = v
	}
	return r
}

// Register adds or replaces the template for category.
func (r *Registry) Register(category types.Category, t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[category] = t
}

// Lookup returns the template for category, falling back to the default
// template. The bool reports whether category had its own entry.
func (r *Registry) Lookup(category types.Category) (Template, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if t, ok := r.templates[category]; ok && len(t.Sections) > 0 {
		return t, true
	}
	return r.templates[DefaultCategory], false
}

// LoadFile merges templates from a YAML file keyed by category. Entries
// override built-ins of the same name.
func (r *Registry) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read templates: %w", err)
	}
	var raw map[string]Template
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("parse templates: %w", err)
	}
	for name, t := range raw {
		if len(t.Sections) == 0 {
			return fmt.Errorf("template %q has no sections", name)
		}
		r.Register(types.NormalizeCategory(name), t)
	}
	return nil
}

var builtinTemplates = map[types.Category]Template{
	types.CategoryFinance: {
		Intro: "What if I told you that most people are making one crucial financial mistake with {title}?",
		Sections: []string{
			"Understanding the fundamentals",
			"Common mistakes to avoid",
			"Proven strategies that work",
			"Step-by-step implementation",
			"Real-world examples",
			"Action steps you can take today",
		},
		Conclusion: "That wraps up our guide to {title}. The key to success is taking action on what you learned today.",
		Fillers: []string{
			"A written budget turns vague intentions about {topic} into numbers you can actually track.",
			"An emergency fund covering three to six months of expenses gives every other decision room to breathe.",
			"Small recurring costs compound in the wrong direction just as reliably as savings compound in the right one.",
			"Automating transfers on payday removes willpower from the equation entirely.",
			"High interest debt is usually the first place where extra cash earns a guaranteed return.",
			"Tracking net worth once a month is enough to see whether {topic} is working for you.",
		},
	},
	types.CategoryInvesting: {
		Intro: "The investing approach behind {title} is one that many insiders rarely explain in plain language.",
		Sections: []string{
			"Market analysis and trends",
			"Risk assessment strategies",
			"Portfolio diversification techniques",
			"Timing and execution",
			"Long-term wealth building",
			"Your next steps",
		},
		Conclusion: "Investing rewards patience more than brilliance, and {title} is a framework you can return to for years.",
		Fillers: []string{
			"Low fees matter because every percentage point paid to a manager is a point that never compounds for you.",
			"Diversification spreads risk across companies, sectors and regions so no single failure defines your outcome.",
			"Time in the market has historically beaten attempts to time the market for the vast majority of investors.",
			"Rebalancing once a year keeps {topic} aligned with the risk you originally signed up for.",
			"Volatility is the price of admission for higher long-term returns, not a signal that something is broken.",
			"Dollar cost averaging smooths out entry prices and keeps emotions out of the buying decision.",
		},
	},
	types.CategoryCrypto: {
		Intro: "Cryptocurrency just hit another milestone, and {title} explains why it matters.",
		Sections: []string{
			"Current crypto landscape",
			"Technology breakdown",
			"Investment opportunities",
			"Risk management",
			"Future predictions",
			"Getting started safely",
		},
		Conclusion: "Crypto moves fast, but the fundamentals behind {title} change slowly. Stay curious and stay careful.",
		Fillers: []string{
			"A blockchain is a shared ledger where every participant can verify the same history of transactions.",
			"Self custody means holding your own keys, which brings full control and full responsibility.",
			"Price swings of twenty percent in a week are common, so position sizing matters more than usual with {topic}.",
			"Regulation is still evolving in most countries, and that uncertainty is itself a form of risk.",
			"Stablecoins try to pair blockchain settlement with the predictability of traditional currency.",
			"Scams thrive on urgency, so any offer that demands an immediate decision deserves extra suspicion.",
		},
	},
	types.CategoryAI: {
		Intro: "AI technology is changing industries faster than anyone predicted, and {title} is right at the center of it.",
		Sections: []string{
			"Current AI developments",
			"Industry impact analysis",
			"Business opportunities",
			"Implementation strategies",
			"Future implications",
			"Competitive advantages",
		},
		Conclusion: "The organizations that understand {title} today will set the pace for everyone else tomorrow.",
		Fillers: []string{
			"Modern models learn patterns from enormous datasets rather than following hand-written rules.",
			"The biggest gains usually come from automating narrow repetitive tasks before attempting anything ambitious.",
			"Data quality decides the ceiling of any AI project long before model choice does.",
			"Human review remains essential wherever {topic} touches decisions about real people.",
			"Compute costs keep falling, which moves yesterday's research demos into today's products.",
			"Teams that measure outcomes instead of novelty get far more value from {topic}.",
		},
	},
	types.CategoryStartups: {
		Intro: "Every successful founder eventually learns the lessons behind {title}, usually the hard way.",
		Sections: []string{
			"Finding a real problem",
			"Validating demand",
			"Building the first version",
			"Funding options",
			"Growth and traction",
			"Scaling the team",
		},
		Conclusion: "Startups are experiments, and {title} gives you a better way to run yours.",
		Fillers: []string{
			"Talking to twenty potential customers teaches more than a month of building in isolation.",
			"A small group of users who love the product beats a large group who merely tolerate it.",
			"Runway is measured in months, so every hire and every tool should extend it or justify shortening it.",
			"The first version of {topic} should be embarrassing enough that you ship it early.",
			"Distribution is often harder than product, and the best founders plan for both from day one.",
			"Investors back momentum, and momentum comes from steady weekly progress on the metrics that matter.",
		},
	},
	types.CategoryBusiness: {
		Intro: "The businesses that thrive understand {title} better than their competitors.",
		Sections: []string{
			"The current landscape",
			"Key challenges",
			"Strategic approaches",
			"Execution and operations",
			"Measuring results",
			"What comes next",
		},
		Conclusion: "Business strategy is a practice, and {title} is one more tool to sharpen it.",
		Fillers: []string{
			"Clear priorities let a team say no to good ideas so they can say yes to great ones.",
			"Cash flow keeps the lights on even when profits look healthy on paper.",
			"Customer retention is usually cheaper than acquisition and compounds over time.",
			"Processes that are written down can be improved, delegated and measured.",
			"The best operators review {topic} weekly rather than waiting for quarterly surprises.",
			"Margins reveal which parts of the business are truly working.",
		},
	},
	DefaultCategory: {
		Intro: "Today we are diving deep into {title}, and by the end you will know exactly how to apply it.",
		Sections: []string{
			"Understanding the fundamentals",
			"Common mistakes to avoid",
			"Proven strategies that work",
			"Step-by-step implementation",
			"Real-world examples",
			"Action steps you can take today",
		},
		Conclusion: "That wraps up our guide to {title}. Subscribe for more, and I will see you in the next video.",
		Fillers: []string{
			"Mastering the basics is what makes the advanced material stick.",
			"Most beginners fall into the same predictable traps, and knowing them in advance saves months.",
			"Consistency beats intensity when the goal is lasting results with {topic}.",
			"Small experiments reveal what works faster than big plans ever will.",
			"Every expert started exactly where you are right now.",
			"Write down one concrete change you will make this week because of {topic}.",
		},
	},
}
