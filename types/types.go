package types

import (
	"errors"
	"strings"
	"time"
)

// Category names the subject area a video essay is written for
type Category string

const (
	CategoryFinance   Category = "finance"
	CategoryInvesting Category = "investing"
	CategoryCrypto    Category = "crypto"
	CategoryAI        Category = "ai"
	CategoryStartups  Category = "startups"
	CategoryBusiness  Category = "business"
)

// Categories lists every category with a dedicated template and search table.
var Categories = []Category{
	CategoryFinance,
	CategoryInvesting,
	CategoryCrypto,
	CategoryAI,
	CategoryStartups,
	CategoryBusiness,
}

var categoryAliases = map[string]Category{
	"personal-finance": CategoryFinance,
	"cryptocurrency":   CategoryCrypto,
	"ai-technology":    CategoryAI,
	"startup":          CategoryStartups,
}

// NormalizeCategory lowercases c and maps legacy aliases onto their canonical
// name. Unknown values are returned lowercased and untouched.
func NormalizeCategory(c string) Category {
	key := strings.ToLower(strings.TrimSpace(c))
	if alias, ok := categoryAliases[key]; ok {
		return alias
	}
	return Category(key)
}

// GenerationRequest is one accepted request to produce a video essay
type GenerationRequest struct {
	Title           string  `json:"title" yaml:"title"`
	Category        string  `json:"category" yaml:"category"`
	DurationMinutes float64 `json:"duration_minutes" yaml:"duration_minutes"`
	Tone            string  `json:"tone" yaml:"tone"`               // professional | educational | conversational | authoritative | motivational
	VoiceStyle      string  `json:"voice_style" yaml:"voice_style"` // professional-male | friendly-female | ...
	VisualStyle     string  `json:"visual_style" yaml:"visual_style"`
}

// Validate rejects requests the pipeline cannot act on.
func (r GenerationRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return NewError(KindInvalidRequest, "validate", errors.New("title is required"))
	}
	if r.DurationMinutes <= 0 {
		return NewError(KindInvalidRequest, "validate", errors.New("duration_minutes must be positive"))
	}
	return nil
}

// DurationSeconds is the requested running time of the compiled video.
func (r GenerationRequest) DurationSeconds() float64 {
	return r.DurationMinutes * 60
}

// Section is one headed part of the narration script
type Section struct {
	Heading     string  `json:"heading"`
	Body        string  `json:"body"`
	WordCount   int     `json:"word_count"`
	DurationSec float64 `json:"duration_sec"`
}

// Script is the full narration for one run
type Script struct {
	Title     string    `json:"title"`
	Category  Category  `json:"category"`
	Tone      string    `json:"tone"`
	Sections  []Section `json:"sections"`
	FullText  string    `json:"full_text"`
	WordCount int       `json:"word_count"`
}

// NarrationAudio is a handle to the synthesized narration on disk
type NarrationAudio struct {
	Path        string  `json:"path"`
	Bytes       int64   `json:"bytes"`
	DurationSec float64 `json:"duration_sec"`
	Chunks      int     `json:"chunks"`
}

type AssetKind string

const (
	AssetVideo AssetKind = "video"
	AssetImage AssetKind = "image"
)

// MediaAsset is a downloaded stock clip or still
type MediaAsset struct {
	Kind       AssetKind `json:"kind"`
	LocalPath  string    `json:"local_path"`
	Provider   string    `json:"provider"`
	SearchTerm string    `json:"search_term"`
	SourceURL  string    `json:"source_url"`
}

// AssetSet holds everything gathered for one run, in presentation order
type AssetSet struct {
	Videos []MediaAsset `json:"videos"`
	Images []MediaAsset `json:"images"`
}

func (s AssetSet) Empty() bool {
	return len(s.Videos) == 0 && len(s.Images) == 0
}

// Quality tags reported on a CompiledVideo
const (
	QualityHD        = "hd"
	QualityStandard  = "standard"
	QualityBasic     = "basic"
	QualityAudioOnly = "audio-only"
)

// CompiledVideo is the terminal artifact handed back to the caller
type CompiledVideo struct {
	Path        string  `json:"path"`
	SizeBytes   int64   `json:"size_bytes"`
	DurationSec float64 `json:"duration_sec"`
	Quality     string  `json:"quality"`
	Strategy    string  `json:"strategy"`
}

// Stage is a step of the pipeline state machine
type Stage string

const (
	StageQueued    Stage = "queued"
	StageDirsReady Stage = "directories-ready"
	StageScript    Stage = "script-composed"
	StageNarration Stage = "narration-synthesized"
	StageAssets    Stage = "assets-gathered"
	StageCompiled  Stage = "video-compiled"
	StageDone      Stage = "done"
	StageFailed    Stage = "failed"
	StageCanceled  Stage = "canceled"
)

// Terminal reports whether no further transitions will happen.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed || s == StageCanceled
}

// RunResult is the descriptor of a finished run
type RunResult struct {
	Video      CompiledVideo `json:"video"`
	Script     *Script       `json:"script,omitempty"`
	VideoCount int           `json:"video_assets"`
	ImageCount int           `json:"image_assets"`
}

// RunState tracks one job across the service layer
type RunState struct {
	ID         string            `json:"id"`
	Stage      Stage             `json:"stage"`
	Request    GenerationRequest `json:"request"`
	Result     *RunResult        `json:"result,omitempty"`
	ErrorKind  ErrorKind         `json:"error_kind,omitempty"`
	Error      string            `json:"error,omitempty"`
	PublicURL  string            `json:"public_url,omitempty"`
	YouTubeURL string            `json:"youtube_url,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
	UpdatedAt  time.Time         `json:"updated_at"`
}
