package render

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os/exec"
	"strconv"
	"strings"

	ffmpeg "github.com/u2takey/ffmpeg-go"

	"video-essay-pipeline/config"
)

// FFmpegRunner builds filter graphs with ffmpeg-go and runs them as a
// subprocess bound to the caller's context.
type FFmpegRunner struct {
	cfg config.RenderConfig
	log *slog.Logger
}

func NewFFmpegRunner(cfg config.RenderConfig, logger *slog.Logger) *FFmpegRunner {
	if logger == nil {
		logger = slog.Default()
	}
	return &FFmpegRunner{cfg: cfg, log: logger.With("component", "ffmpeg")}
}

func (r *FFmpegRunner) Run(ctx context.Context, l Layout) error {
	args, err := r.Args(l)
	if err != nil {
		return err
	}
	if r.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.Timeout)
		defer cancel()
	}

	r.log.Debug("running ffmpeg", "strategy", l.Strategy, "args", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, r.cfg.FFmpegBin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("ffmpeg %s: %w", l.Strategy, ctx.Err())
		}
		return fmt.Errorf("ffmpeg %s: %w: %s", l.Strategy, err, tail(stderr.String(), 600))
	}
	return nil
}

// Args returns the ffmpeg command line for l without running it.
func (r *FFmpegRunner) Args(l Layout) ([]string, error) {
	if l.Audio == "" || l.Output == "" {
		return nil, errors.New("layout needs audio and output paths")
	}

	var video *ffmpeg.Stream
	switch {
	case len(l.Clips) > 0:
		video = r.clipTrack(l)
	case len(l.Images) > 0:
		video = r.slideTrack(l)
	default:
		video = r.colorTrack(l)
	}
	if steps := gradeFor(l.Grade); len(steps) > 0 && r.cfg.ColorGrade && (len(l.Clips) > 0 || len(l.Images) > 0) {
		for _, s := range steps {
			kw := ffmpeg.KwArgs{}
			for k, v := range s.args {
				kw[k] = v
			}
			video = video.Filter(s.filter, nil, kw)
		}
	}

	audio := ffmpeg.Input(l.Audio).Audio().
		Filter("volume", ffmpeg.Args{num(r.cfg.VolumeGain)})

	out := ffmpeg.KwArgs{
		"c:v":      r.cfg.VideoCodec,
		"preset":   r.cfg.Preset,
		"crf":      strconv.Itoa(r.cfg.CRF),
		"pix_fmt":  "yuv420p",
		"r":        strconv.Itoa(r.cfg.FPS),
		"c:a":      r.cfg.AudioCodec,
		"b:a":      r.cfg.AudioBitrate,
		"movflags": "+faststart",
	}
	if l.Shortest {
		out["shortest"] = ""
	} else {
		audio = audio.Filter("apad", nil)
		out["t"] = num(l.DurationSec)
	}

	return ffmpeg.Output([]*ffmpeg.Stream{video, audio}, l.Output, out).
		OverWriteOutput().
		GetArgs(), nil
}

// canvas letterboxes any input onto the target frame without cropping.
func (r *FFmpegRunner) canvas(s *ffmpeg.Stream) *ffmpeg.Stream {
	w, h := strconv.Itoa(r.cfg.Width), strconv.Itoa(r.cfg.Height)
	return s.
		Filter("scale", ffmpeg.Args{w, h}, ffmpeg.KwArgs{"force_original_aspect_ratio": "decrease"}).
		Filter("pad", ffmpeg.Args{w, h, "(ow-iw)/2", "(oh-ih)/2"}, ffmpeg.KwArgs{"color": "black"}).
		Filter("setsar", ffmpeg.Args{"1"}).
		Filter("fps", ffmpeg.Args{strconv.Itoa(r.cfg.FPS)})
}

func (r *FFmpegRunner) clipTrack(l Layout) *ffmpeg.Stream {
	parts := make([]*ffmpeg.Stream, 0, len(l.Clips))
	for _, clip := range l.Clips {
		in := ffmpeg.Input(clip, ffmpeg.KwArgs{"stream_loop": "-1"}).Video()
		parts = append(parts, r.canvas(in).
			Filter("trim", nil, ffmpeg.KwArgs{"duration": num(l.SegmentSec)}).
			Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"}))
	}
	return concat(parts)
}

func (r *FFmpegRunner) slideTrack(l Layout) *ffmpeg.Stream {
	fade := r.cfg.FadeSec
	if fade > l.SegmentSec/2 {
		fade = l.SegmentSec / 2
	}
	parts := make([]*ffmpeg.Stream, 0, len(l.Images))
	for _, img := range l.Images {
		in := ffmpeg.Input(img, ffmpeg.KwArgs{"loop": "1", "t": num(l.SegmentSec)}).Video()
		s := r.canvas(in)
		if fade > 0 {
			s = s.Filter("fade", nil, ffmpeg.KwArgs{"t": "in", "st": "0", "d": num(fade)}).
				Filter("fade", nil, ffmpeg.KwArgs{"t": "out", "st": num(l.SegmentSec - fade), "d": num(fade)})
		}
		parts = append(parts, s.Filter("setpts", ffmpeg.Args{"PTS-STARTPTS"}))
	}
	return concat(parts)
}

func (r *FFmpegRunner) colorTrack(l Layout) *ffmpeg.Stream {
	color := l.Background
	if color == "" {
		color = r.cfg.BackgroundColor
	}
	src := fmt.Sprintf("color=c=%s:s=%dx%d:r=%d:d=%s", color, r.cfg.Width, r.cfg.Height, r.cfg.FPS, num(l.DurationSec))
	return ffmpeg.Input(src, ffmpeg.KwArgs{"f": "lavfi"})
}

func concat(parts []*ffmpeg.Stream) *ffmpeg.Stream {
	if len(parts) == 1 {
		return parts[0]
	}
	return ffmpeg.Concat(parts)
}

func num(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}
