package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"video-essay-pipeline/config"
	"video-essay-pipeline/credentials"
	"video-essay-pipeline/render"
	"video-essay-pipeline/types"
	"video-essay-pipeline/visuals"
)

type ScriptComposer interface {
	Compose(title, category string, durationMinutes float64, tone string) *types.Script
}

type Narrator interface {
	Synthesize(ctx context.Context, text, voiceStyle, apiKey, outPath string) (*types.NarrationAudio, error)
}

type AssetFetcher interface {
	Fetch(ctx context.Context, q visuals.Query) types.AssetSet
}

type VideoCompiler interface {
	Compile(ctx context.Context, in render.Input) (*types.CompiledVideo, error)
}

// ProgressFunc observes stage transitions of a run.
type ProgressFunc func(runID string, stage types.Stage)

// Orchestrator runs one request through script, narration, assets and
// compile. It holds no per-run state, so one instance serves concurrent
// runs.
type Orchestrator struct {
	cfg      *config.Config
	composer ScriptComposer
	narrator Narrator
	fetcher  AssetFetcher
	compiler VideoCompiler
	log      *slog.Logger
	now      func() time.Time
}

func New(cfg *config.Config, composer ScriptComposer, narrator Narrator, fetcher AssetFetcher, compiler VideoCompiler, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		cfg:      cfg,
		composer: composer,
		narrator: narrator,
		fetcher:  fetcher,
		compiler: compiler,
		log:      logger.With("component", "pipeline"),
		now:      time.Now,
	}
}

// Run produces the video for req.
func (o *Orchestrator) Run(ctx context.Context, req types.GenerationRequest, creds credentials.Snapshot) (*types.CompiledVideo, error) {
	res, err := o.Execute(ctx, req, creds, nil)
	if err != nil {
		return nil, err
	}
	return &res.Video, nil
}

// runRecord is dumped next to retained temp files when a run fails
type runRecord struct {
	RunID       string                  `json:"run_id"`
	Stage       types.Stage             `json:"stage"`
	Request     types.GenerationRequest `json:"request"`
	Script      *types.Script           `json:"script,omitempty"`
	Narration   *types.NarrationAudio   `json:"narration,omitempty"`
	Assets      *types.AssetSet         `json:"assets,omitempty"`
	ErrorKind   types.ErrorKind         `json:"error_kind"`
	Error       string                  `json:"error"`
	StartedAt   string                  `json:"started_at"`
	CompletedAt string                  `json:"completed_at"`
}

// Execute is Run with stage reporting and the full result descriptor.
// progress may be nil.
//
// Temp files live under paths.temp/<runID> and are removed on success and on
// cancellation. Other failures keep them, plus a run.json, unless
// cleanup.retain_failed is off.
func (o *Orchestrator) Execute(ctx context.Context, req types.GenerationRequest, creds credentials.Snapshot, progress ProgressFunc) (res *types.RunResult, err error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	apiKey, ok := creds.Get(credentials.ElevenLabs)
	if !ok {
		return nil, types.NewError(types.KindMissingCredential, "preflight", errors.New("no elevenlabs api key"))
	}

	runID := NewRunID(o.now(), req.Title)
	log := o.log.With("run", runID)
	runDir := filepath.Join(o.cfg.Paths.Temp, runID)
	rec := &runRecord{RunID: runID, Request: req, StartedAt: o.now().UTC().Format(time.RFC3339)}
	report := func(stage types.Stage) {
		rec.Stage = stage
		log.Info("stage complete", "stage", stage)
		if progress != nil {
			progress(runID, stage)
		}
	}

	for _, dir := range []string{o.cfg.Paths.Output, runDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create dir %s: %w", dir, err)
		}
	}
	defer func() {
		if err != nil && ctx.Err() != nil && types.KindOf(err) != types.KindCanceled {
			err = types.NewError(types.KindCanceled, string(rec.Stage), err)
		}
		o.finish(log, runDir, rec, err)
	}()
	report(types.StageDirsReady)

	script := o.composer.Compose(req.Title, req.Category, req.DurationMinutes, req.Tone)
	rec.Script = script
	report(types.StageScript)

	var narration *types.NarrationAudio
	var assets types.AssetSet
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := o.narrator.Synthesize(gctx, script.FullText, req.VoiceStyle, apiKey, filepath.Join(runDir, "narration.mp3"))
		narration = n
		return err
	})
	g.Go(func() error {
		assets = o.fetcher.Fetch(gctx, visuals.Query{
			Category:    req.Category,
			VisualStyle: req.VisualStyle,
			Dir:         filepath.Join(runDir, "assets"),
			PexelsKey:   creds.Key(credentials.Pexels),
			UnsplashKey: creds.Key(credentials.Unsplash),
		})
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	rec.Narration = narration
	report(types.StageNarration)
	rec.Assets = &assets
	report(types.StageAssets)

	video, err := o.compiler.Compile(ctx, render.Input{
		Audio:       *narration,
		Assets:      assets,
		DurationSec: req.DurationSeconds(),
		OutBase:     filepath.Join(o.cfg.Paths.Output, runID),
		VisualStyle: req.VisualStyle,
	})
	if err != nil {
		return nil, err
	}
	report(types.StageCompiled)

	res = &types.RunResult{
		Video:      *video,
		Script:     script,
		VideoCount: len(assets.Videos),
		ImageCount: len(assets.Images),
	}
	report(types.StageDone)
	return res, nil
}

func (o *Orchestrator) finish(log *slog.Logger, runDir string, rec *runRecord, err error) {
	rec.CompletedAt = o.now().UTC().Format(time.RFC3339)
	switch {
	case err == nil:
		o.removeTemp(log, runDir)
	case types.KindOf(err) == types.KindCanceled:
		log.Warn("run canceled", "stage", rec.Stage)
		o.removeTemp(log, runDir)
	default:
		rec.ErrorKind = types.KindOf(err)
		rec.Error = err.Error()
		log.Error("run failed", "stage", rec.Stage, "kind", rec.ErrorKind, "error", err)
		if !o.cfg.Cleanup.RetainFailed {
			o.removeTemp(log, runDir)
			return
		}
		saveJSON(log, filepath.Join(runDir, "run.json"), rec)
		log.Info("temp files retained for debugging", "dir", runDir)
	}
}

func (o *Orchestrator) removeTemp(log *slog.Logger, dir string) {
	if err := os.RemoveAll(dir); err != nil {
		log.Warn("could not remove temp dir", "dir", dir, "error", err)
	}
}

func saveJSON(log *slog.Logger, path string, v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Warn("could not marshal JSON", "path", path, "error", err)
		return
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		log.Warn("could not save JSON", "path", path, "error", err)
	}
}
