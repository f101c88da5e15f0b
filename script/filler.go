package script

import "strings"

const defaultTone = "professional"

// tonePools hold generic sentences that carry the narrator's voice. Section
// seeds start with the tone's lead-in phrase.
var tonePools = map[string]struct {
	lead    string
	fillers []string
}{
	"professional": {
		lead: "Industry analysis indicates that",
		fillers: []string{
			"The data points in a consistent direction here.",
			"Decision makers who act on this early tend to outperform.",
			"It is worth separating the signal from the noise at this stage.",
			"A structured approach reduces risk and improves outcomes.",
			"Benchmarks help put these numbers into context.",
		},
	},
	"educational": {
		lead: "Research shows that",
		fillers: []string{
			"Let us define the key terms before going further.",
			"A simple example makes this concept much easier to see.",
			"This builds directly on the idea we covered a moment ago.",
			"Keep this principle in mind, because it comes back later.",
			"Studies across many years support this conclusion.",
		},
	},
	"conversational": {
		lead: "Let me break this down for you:",
		fillers: []string{
			"Honestly, this is the part most people skip.",
			"Stick with me here, because it gets interesting.",
			"You have probably seen this happen to someone you know.",
			"Think about the last time this came up in your own life.",
			"It sounds complicated, but it really is not.",
		},
	},
	"authoritative": {
		lead: "The evidence is clear:",
		fillers: []string{
			"There is no ambiguity on this point.",
			"Experienced professionals follow this rule without exception.",
			"Ignoring this is the fastest way to fall behind.",
			"The numbers leave very little room for debate.",
			"This is the standard every serious practitioner holds.",
		},
	},
	"motivational": {
		lead: "Here is what most people do not realize:",
		fillers: []string{
			"You are more capable of this than you think.",
			"Every step forward counts, no matter how small.",
			"The best time to start was yesterday, and the next best time is today.",
			"Progress beats perfection every single time.",
			"Imagine where you could be a year from now.",
		},
	},
}

func normalizeTone(tone string) string {
	tone = strings.ToLower(strings.TrimSpace(tone))
	if _, ok := tonePools[tone]; ok {
		return tone
	}
	return defaultTone
}

func substitute(s, title, topic string) string {
	return strings.NewReplacer("{title}", title, "{topic}", topic).Replace(s)
}
