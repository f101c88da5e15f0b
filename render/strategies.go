package render

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/samber/lo"

	"video-essay-pipeline/types"
)

func assetPaths(assets []types.MediaAsset) []string {
	return lo.Map(assets, func(a types.MediaAsset, _ int) string { return a.LocalPath })
}

// runLayout executes l and describes the file it produced. A failed run
// leaves no partial output behind.
func (c *Compiler) runLayout(ctx context.Context, l Layout, quality string, duration float64) (*types.CompiledVideo, error) {
	if err := os.MkdirAll(filepath.Dir(l.Output), 0o755); err != nil {
		return nil, err
	}
	if err := c.runner.Run(ctx, l); err != nil {
		os.Remove(l.Output)
		return nil, err
	}
	fi, err := os.Stat(l.Output)
	if err != nil {
		return nil, fmt.Errorf("%s produced no output: %w", l.Strategy, err)
	}
	if fi.Size() == 0 {
		os.Remove(l.Output)
		return nil, fmt.Errorf("%s produced an empty file", l.Strategy)
	}
	return &types.CompiledVideo{
		Path:        l.Output,
		SizeBytes:   fi.Size(),
		DurationSec: duration,
		Quality:     quality,
		Strategy:    l.Strategy,
	}, nil
}

// clipStrategy cuts stock clips into equal segments
type clipStrategy struct{ c *Compiler }

func (s *clipStrategy) Name() string { return "clip" }

func (s *clipStrategy) Applies(in Input) bool { return len(in.Assets.Videos) > 0 }

func (s *clipStrategy) Attempt(ctx context.Context, in Input) (*types.CompiledVideo, error) {
	l := Layout{
		Strategy:    s.Name(),
		Audio:       in.Audio.Path,
		Clips:       assetPaths(in.Assets.Videos),
		SegmentSec:  SegmentDuration(in.DurationSec, len(in.Assets.Videos), s.c.cfg.MinSegmentSec),
		DurationSec: in.DurationSec,
		Grade:       in.VisualStyle,
		Output:      in.OutBase + ".mp4",
	}
	return s.c.runLayout(ctx, l, types.QualityHD, in.DurationSec)
}

// SegmentDuration is the per-clip share of total, never below floor.
func SegmentDuration(total float64, count int, floor float64) float64 {
	if count <= 0 {
		return total
	}
	return math.Max(floor, total/float64(count))
}

// slideshowStrategy shows stills with fades, ending with the shorter stream
type slideshowStrategy struct{ c *Compiler }

func (s *slideshowStrategy) Name() string { return "slideshow" }

func (s *slideshowStrategy) Applies(in Input) bool { return len(in.Assets.Images) > 0 }

func (s *slideshowStrategy) Attempt(ctx context.Context, in Input) (*types.CompiledVideo, error) {
	l := Layout{
		Strategy:    s.Name(),
		Audio:       in.Audio.Path,
		Images:      assetPaths(in.Assets.Images),
		SegmentSec:  in.DurationSec / float64(len(in.Assets.Images)),
		DurationSec: in.DurationSec,
		Shortest:    true,
		Grade:       in.VisualStyle,
		Output:      in.OutBase + ".mp4",
	}
	duration := in.DurationSec
	if in.Audio.DurationSec > 0 && in.Audio.DurationSec < duration {
		duration = in.Audio.DurationSec
	}
	return s.c.runLayout(ctx, l, types.QualityStandard, duration)
}

// solidStrategy puts the narration over a plain color background
type solidStrategy struct{ c *Compiler }

func (s *solidStrategy) Name() string { return "solid" }

func (s *solidStrategy) Applies(Input) bool { return true }

func (s *solidStrategy) Attempt(ctx context.Context, in Input) (*types.CompiledVideo, error) {
	l := Layout{
		Strategy:    s.Name(),
		Audio:       in.Audio.Path,
		DurationSec: in.DurationSec,
		Background:  s.c.cfg.BackgroundColor,
		Output:      in.OutBase + ".mp4",
	}
	return s.c.runLayout(ctx, l, types.QualityBasic, in.DurationSec)
}

// rawAudioStrategy hands back the narration itself when no video could be
// made
type rawAudioStrategy struct{}

func (rawAudioStrategy) Name() string { return "raw-audio" }

func (rawAudioStrategy) Applies(Input) bool { return true }

func (s rawAudioStrategy) Attempt(_ context.Context, in Input) (*types.CompiledVideo, error) {
	dst := in.OutBase + filepath.Ext(in.Audio.Path)
	if filepath.Ext(in.Audio.Path) == "" {
		dst = in.OutBase + ".mp3"
	}
	n, err := copyFile(in.Audio.Path, dst)
	if err != nil {
		return nil, err
	}
	return &types.CompiledVideo{
		Path:        dst,
		SizeBytes:   n,
		DurationSec: in.Audio.DurationSec,
		Quality:     types.QualityAudioOnly,
		Strategy:    s.Name(),
	}, nil
}

func copyFile(src, dst string) (n int64, err error) {
	in, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return 0, err
	}
	out, err := os.Create(dst)
	if err != nil {
		return 0, err
	}
	defer func() {
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			os.Remove(dst)
		}
	}()
	return io.Copy(out, in)
}
