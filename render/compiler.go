package render

import (
	"context"
	"errors"
	"log/slog"

	"github.com/samber/lo"

	"video-essay-pipeline/config"
	"video-essay-pipeline/types"
)

// Input is everything one compilation needs
type Input struct {
	Audio       types.NarrationAudio
	Assets      types.AssetSet
	DurationSec float64
	OutBase     string // output path without extension
	VisualStyle string
}

// Strategy is one link of the degradation chain.
type Strategy interface {
	Name() string
	Applies(in Input) bool
	Attempt(ctx context.Context, in Input) (*types.CompiledVideo, error)
}

// Compiler walks its strategies in order, skipping those whose
// preconditions do not hold, until one produces an artifact.
type Compiler struct {
	cfg        config.RenderConfig
	runner     LayoutRunner
	strategies []Strategy
	log        *slog.Logger
}

func New(cfg config.RenderConfig, runner LayoutRunner, logger *slog.Logger) *Compiler {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Compiler{cfg: cfg, runner: runner, log: logger.With("component", "render")}
	c.strategies = []Strategy{
		&clipStrategy{c},
		&slideshowStrategy{c},
		&solidStrategy{c},
		rawAudioStrategy{},
	}
	return c
}

// Chain returns the strategy names in fallback order.
func (c *Compiler) Chain() []string {
	return lo.Map(c.strategies, func(s Strategy, _ int) string { return s.Name() })
}

// Compile produces the best artifact the assets and tooling allow. Only a
// failure of the final raw-audio passthrough is returned, as CompilationFatal.
func (c *Compiler) Compile(ctx context.Context, in Input) (*types.CompiledVideo, error) {
	if in.OutBase == "" {
		return nil, types.NewError(types.KindCompilationFatal, "compile", errors.New("no output path"))
	}

	var lastErr error
	for _, s := range c.strategies {
		if err := ctx.Err(); err != nil {
			return nil, types.NewError(types.KindCanceled, "compile", err)
		}
		if !s.Applies(in) {
			continue
		}

		c.log.Info("compiling", "strategy", s.Name(), "videos", len(in.Assets.Videos),
			"images", len(in.Assets.Images), "duration_sec", in.DurationSec)
		v, err := s.Attempt(ctx, in)
		if err == nil {
			c.log.Info("compiled", "strategy", v.Strategy, "path", v.Path, "bytes", v.SizeBytes, "quality", v.Quality)
			return v, nil
		}
		if ctx.Err() != nil {
			return nil, types.NewError(types.KindCanceled, "compile "+s.Name(), ctx.Err())
		}

		lastErr = types.NewError(types.KindCompilationFailure, s.Name(), err)
		c.log.Warn("strategy failed, falling back", "strategy", s.Name(), "error", err)
	}
	return nil, types.NewError(types.KindCompilationFatal, "compile", lastErr)
}
