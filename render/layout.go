package render

import (
	"context"
	"strings"
)

// Layout is a declarative description of one media-tool invocation.
// Canvas size, codecs and loudness come from the runner's configuration.
type Layout struct {
	Strategy    string
	Audio       string
	Clips       []string // looped and trimmed to SegmentSec each
	Images      []string // shown for SegmentSec each with fades
	SegmentSec  float64
	DurationSec float64 // output is cut to this length unless Shortest
	Shortest    bool    // stop at the shorter of audio and visuals
	Background  string  // lavfi color used when there are no clips or images
	Grade       string  // visual style used to pick a color grade
	Output      string
}

// LayoutRunner compiles a Layout into an output file.
type LayoutRunner interface {
	Run(ctx context.Context, l Layout) error
}

type gradeStep struct {
	filter string
	args   map[string]string
}

// grades are the per-style color treatments applied on top of the edit
var grades = map[string][]gradeStep{
	"cinematic": {
		{"colorbalance", map[string]string{"rs": "0.1", "gs": "-0.1", "bs": "-0.2"}},
		{"curves", map[string]string{"preset": "vintage"}},
	},
	"modern": {
		{"vibrance", map[string]string{"intensity": "0.3"}},
		{"colorbalance", map[string]string{"rs": "0.05", "bs": "-0.05"}},
	},
	"corporate": {
		{"colorbalance", map[string]string{"rs": "-0.05", "gs": "0.05"}},
		{"curves", map[string]string{"preset": "increase_contrast"}},
	},
}

func gradeFor(style string) []gradeStep {
	return grades[strings.ToLower(strings.TrimSpace(style))]
}
