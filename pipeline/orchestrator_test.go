package pipeline

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"video-essay-pipeline/config"
	"video-essay-pipeline/credentials"
	"video-essay-pipeline/render"
	"video-essay-pipeline/script"
	"video-essay-pipeline/types"
	"video-essay-pipeline/visuals"
)

// fakeNarrator writes a stub mp3 of a fixed duration, or fails with err.
type fakeNarrator struct {
	seconds float64
	err     error
	block   bool
	calls   atomic.Int32
}

func (f *fakeNarrator) Synthesize(ctx context.Context, text, voiceStyle, apiKey, outPath string) (*types.NarrationAudio, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return nil, types.NewError(types.KindCanceled, "synthesize", ctx.Err())
	}
	if f.err != nil {
		return nil, f.err
	}
	if err := os.WriteFile(outPath, []byte("ID3"), 0o644); err != nil {
		return nil, err
	}
	return &types.NarrationAudio{Path: outPath, Bytes: 3, DurationSec: f.seconds, Chunks: 1}, nil
}

type writeRunner struct{}

func (writeRunner) Run(ctx context.Context, l render.Layout) error {
	return os.WriteFile(l.Output, []byte("mp4:"+l.Strategy), 0o644)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	root := t.TempDir()
	cfg.Paths.Output = filepath.Join(root, "output")
	cfg.Paths.Temp = filepath.Join(root, "temp")
	return cfg
}

func newOrchestrator(cfg *config.Config, n Narrator) *Orchestrator {
	composer := script.New(cfg.Script, script.NewRegistry(), rand.New(rand.NewSource(7)), nil)
	return New(cfg, composer, n, visuals.New(cfg.Assets, nil), render.New(cfg.Render, writeRunner{}, nil), nil)
}

var withVoice = credentials.NewSnapshot(map[string]string{credentials.ElevenLabs: "el-key"})

func TestRunWithoutStockMediaFallsBackToSolid(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(cfg, &fakeNarrator{seconds: 10})

	var stages []types.Stage
	res, err := o.Execute(context.Background(), types.GenerationRequest{
		Title:           "Index Funds 101",
		Category:        "investing",
		DurationMinutes: 2,
	}, withVoice, func(_ string, s types.Stage) { stages = append(stages, s) })
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}

	v := res.Video
	if v.Strategy != "solid" || v.Quality != types.QualityBasic {
		t.Fatalf("got %s/%s, want solid/basic", v.Strategy, v.Quality)
	}
	if math.Abs(v.DurationSec-120) > 1 {
		t.Fatalf("duration = %v, want ~120", v.DurationSec)
	}
	if filepath.Dir(v.Path) != cfg.Paths.Output || !strings.HasSuffix(v.Path, ".mp4") {
		t.Fatalf("path = %s", v.Path)
	}
	if _, err := os.Stat(v.Path); err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if res.VideoCount != 0 || res.ImageCount != 0 {
		t.Fatalf("asset counts = %d/%d", res.VideoCount, res.ImageCount)
	}
	if res.Script == nil || res.Script.WordCount < 285 || res.Script.WordCount > 315 {
		t.Fatalf("script = %+v", res.Script)
	}

	want := []types.Stage{types.StageDirsReady, types.StageScript, types.StageNarration,
		types.StageAssets, types.StageCompiled, types.StageDone}
	if strings.Join(stageNames(stages), ",") != strings.Join(stageNames(want), ",") {
		t.Fatalf("stages = %v", stages)
	}

	entries, _ := os.ReadDir(cfg.Paths.Temp)
	if len(entries) != 0 {
		t.Fatalf("temp dir not cleaned: %d entries", len(entries))
	}
}

func stageNames(s []types.Stage) []string {
	out := make([]string, len(s))
	for i, st := range s {
		out[i] = string(st)
	}
	return out
}

func TestConcurrentRunsUseDistinctPaths(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(cfg, &fakeNarrator{seconds: 5})
	req := types.GenerationRequest{Title: "Same Title", Category: "finance", DurationMinutes: 1}

	const n = 4
	paths := make([]string, n)
	errs := make([]error, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := o.Run(context.Background(), req, withVoice)
			errs[i] = err
			if v != nil {
				paths[i] = v.Path
			}
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range paths {
		if errs[i] != nil {
			t.Fatalf("run %d: %v", i, errs[i])
		}
		if seen[paths[i]] {
			t.Fatalf("duplicate output path %s", paths[i])
		}
		seen[paths[i]] = true
	}
}

func TestMissingVoiceKeyFailsBeforeAnyWork(t *testing.T) {
	cfg := testConfig(t)
	narrator := &fakeNarrator{seconds: 5}
	o := newOrchestrator(cfg, narrator)

	_, err := o.Run(context.Background(), types.GenerationRequest{
		Title: "Index Funds 101", Category: "investing", DurationMinutes: 2,
	}, credentials.NewSnapshot(map[string]string{credentials.Pexels: "px"}))
	if !errors.Is(err, types.ErrMissingCredential) {
		t.Fatalf("err = %v, want MissingCredential", err)
	}
	if narrator.calls.Load() != 0 {
		t.Fatal("narrator should not be called")
	}
	for _, dir := range []string{cfg.Paths.Output, cfg.Paths.Temp} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Fatalf("%s should not exist", dir)
		}
	}
}

func TestInvalidRequestIsRejected(t *testing.T) {
	o := newOrchestrator(testConfig(t), &fakeNarrator{})
	_, err := o.Run(context.Background(), types.GenerationRequest{Category: "finance", DurationMinutes: 2}, withVoice)
	if !errors.Is(err, types.ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailedRunRetainsTempFiles(t *testing.T) {
	cfg := testConfig(t)
	providerErr := types.NewError(types.KindProviderError, "synthesize", errors.New("status 500"))
	o := newOrchestrator(cfg, &fakeNarrator{err: providerErr})

	_, err := o.Run(context.Background(), types.GenerationRequest{
		Title: "Crypto Basics", Category: "crypto", DurationMinutes: 1,
	}, withVoice)
	if !errors.Is(err, types.ErrProvider) {
		t.Fatalf("err = %v, want ProviderError", err)
	}

	matches, _ := filepath.Glob(filepath.Join(cfg.Paths.Temp, "*", "run.json"))
	if len(matches) != 1 {
		t.Fatalf("run.json files = %v", matches)
	}
	data, _ := os.ReadFile(matches[0])
	if !strings.Contains(string(data), `"error_kind": "ProviderError"`) {
		t.Fatalf("run.json = %s", data)
	}
}

func TestFailedRunCleansUpWhenRetentionOff(t *testing.T) {
	cfg := testConfig(t)
	cfg.Cleanup.RetainFailed = false
	o := newOrchestrator(cfg, &fakeNarrator{err: types.NewError(types.KindProviderError, "synthesize", errors.New("boom"))})

	if _, err := o.Run(context.Background(), types.GenerationRequest{
		Title: "Crypto Basics", Category: "crypto", DurationMinutes: 1,
	}, withVoice); err == nil {
		t.Fatal("expected error")
	}
	entries, _ := os.ReadDir(cfg.Paths.Temp)
	if len(entries) != 0 {
		t.Fatalf("temp entries = %d", len(entries))
	}
}

func TestCancelRemovesTempFiles(t *testing.T) {
	cfg := testConfig(t)
	o := newOrchestrator(cfg, &fakeNarrator{block: true})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := o.Run(ctx, types.GenerationRequest{
		Title: "Startup Funding", Category: "startups", DurationMinutes: 1,
	}, withVoice)
	if !errors.Is(err, types.ErrCanceled) {
		t.Fatalf("err = %v, want Canceled", err)
	}
	entries, _ := os.ReadDir(cfg.Paths.Temp)
	if len(entries) != 0 {
		t.Fatalf("temp entries = %d", len(entries))
	}
}

func TestNewRunID(t *testing.T) {
	now := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)
	a := NewRunID(now, "Index Funds 101!")
	b := NewRunID(now, "Index Funds 101!")
	if a == b {
		t.Fatal("run ids should differ")
	}
	if !strings.HasPrefix(a, "20240309-140506_index-funds-101_") || len(a) != len("20240309-140506_index-funds-101_")+8 {
		t.Fatalf("id = %s", a)
	}
}

func TestSlug(t *testing.T) {
	tests := []struct{ in, want string }{
		{"Index Funds 101", "index-funds-101"},
		{"  AI & the Future?? ", "ai-the-future"},
		{"../../etc/passwd", "etc-passwd"},
		{"€€€", "video"},
		{strings.Repeat("a", 80), strings.Repeat("a", maxSlugLen)},
	}
	for _, tt := range tests {
		if got := Slug(tt.in); got != tt.want {
			t.Errorf("Slug(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
