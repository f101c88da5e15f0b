package jobs

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hibiken/asynq"

	"video-essay-pipeline/credentials"
	"video-essay-pipeline/pipeline"
	"video-essay-pipeline/types"
)

type fakeRunner struct {
	err     error
	block   bool
	delay   time.Duration
	running atomic.Int32
	peak    atomic.Int32
	started chan struct{}
}

func (f *fakeRunner) Execute(ctx context.Context, req types.GenerationRequest, creds credentials.Snapshot, progress pipeline.ProgressFunc) (*types.RunResult, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	if f.started != nil {
		f.started <- struct{}{}
	}
	progress("run", types.StageDirsReady)
	progress("run", types.StageScript)
	if f.block {
		<-ctx.Done()
		return nil, types.NewError(types.KindCanceled, "synthesize", ctx.Err())
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.err != nil {
		return nil, f.err
	}
	progress("run", types.StageCompiled)
	progress("run", types.StageDone)
	return &types.RunResult{
		Video: types.CompiledVideo{Path: "/out/" + req.Title + ".mp4", Quality: types.QualityBasic, Strategy: "solid"},
	}, nil
}

type staticCreds struct{}

func (staticCreds) Snapshot(context.Context) (credentials.Snapshot, error) {
	return credentials.NewSnapshot(map[string]string{credentials.ElevenLabs: "k"}), nil
}

type fakePublisher struct{ err error }

func (p fakePublisher) Publish(_ context.Context, path string) (string, error) {
	if p.err != nil {
		return "", p.err
	}
	return "https://cdn.example.com/" + filepath.Base(path), nil
}

type fakeUploader struct{ calls atomic.Int32 }

func (u *fakeUploader) Upload(context.Context, types.GenerationRequest, *types.RunResult) (string, error) {
	u.calls.Add(1)
	return "https://youtu.be/abc", nil
}

type fakeQueue struct {
	mu       sync.Mutex
	enqueued []string
	canceled []string
}

func (q *fakeQueue) Enqueue(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, id)
	return nil
}

func (q *fakeQueue) Cancel(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.canceled = append(q.canceled, id)
	return nil
}

var validReq = types.GenerationRequest{Title: "Index Funds 101", Category: "investing", DurationMinutes: 2}

func mustGet(t *testing.T, d *Dispatcher, id string) *types.RunState {
	t.Helper()
	st, err := d.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s): %v", id, err)
	}
	return st
}

func TestSubmitRunsToDone(t *testing.T) {
	up := &fakeUploader{}
	d := NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 2, nil).
		WithPublisher(fakePublisher{}).
		WithUploader(up)

	st, err := d.Submit(context.Background(), validReq)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if st.Stage != types.StageQueued || st.ID == "" {
		t.Fatalf("submitted state = %+v", st)
	}
	d.Wait()

	got := mustGet(t, d, st.ID)
	if got.Stage != types.StageDone || got.Result == nil {
		t.Fatalf("state = %+v", got)
	}
	if got.PublicURL != "https://cdn.example.com/Index Funds 101.mp4" || got.YouTubeURL != "https://youtu.be/abc" {
		t.Fatalf("urls = %q %q", got.PublicURL, got.YouTubeURL)
	}
	if up.calls.Load() != 1 {
		t.Fatalf("uploads = %d", up.calls.Load())
	}
}

func TestSubmitRejectsInvalidRequest(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 1, nil)
	_, err := d.Submit(context.Background(), types.GenerationRequest{Title: "x", Category: "finance", DurationMinutes: 0})
	if !errors.Is(err, types.ErrInvalidRequest) {
		t.Fatalf("err = %v", err)
	}
}

func TestFailureIsRecordedWithoutProviderDetail(t *testing.T) {
	runErr := types.NewError(types.KindProviderError, "synthesize", errors.New(`status 500: {"secret":"payload"}`))
	d := NewDispatcher(&fakeRunner{err: runErr}, NewMemoryStore(), staticCreds{}, 1, nil)

	st, _ := d.Submit(context.Background(), validReq)
	d.Wait()

	got := mustGet(t, d, st.ID)
	if got.Stage != types.StageFailed || got.ErrorKind != types.KindProviderError {
		t.Fatalf("state = %+v", got)
	}
	if strings.Contains(got.Error, "payload") {
		t.Fatalf("error leaks provider detail: %q", got.Error)
	}
}

func TestPublishFailureDoesNotFailJob(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 1, nil).
		WithPublisher(fakePublisher{err: errors.New("bucket gone")})

	st, _ := d.Submit(context.Background(), validReq)
	d.Wait()

	got := mustGet(t, d, st.ID)
	if got.Stage != types.StageDone || got.PublicURL != "" {
		t.Fatalf("state = %+v", got)
	}
}

func TestCancelRunningJob(t *testing.T) {
	runner := &fakeRunner{block: true, started: make(chan struct{}, 1)}
	d := NewDispatcher(runner, NewMemoryStore(), staticCreds{}, 1, nil)

	st, _ := d.Submit(context.Background(), validReq)
	<-runner.started
	if _, err := d.Cancel(context.Background(), st.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	d.Wait()

	got := mustGet(t, d, st.ID)
	if got.Stage != types.StageCanceled || got.ErrorKind != types.KindCanceled {
		t.Fatalf("state = %+v", got)
	}
	if _, err := d.Cancel(context.Background(), st.ID); !errors.Is(err, ErrFinished) {
		t.Fatalf("second cancel err = %v", err)
	}
}

func TestCancelUnknownJob(t *testing.T) {
	d := NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 1, nil)
	if _, err := d.Cancel(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestConcurrencyIsBounded(t *testing.T) {
	runner := &fakeRunner{delay: 20 * time.Millisecond}
	d := NewDispatcher(runner, NewMemoryStore(), staticCreds{}, 2, nil)

	for i := 0; i < 6; i++ {
		if _, err := d.Submit(context.Background(), validReq); err != nil {
			t.Fatal(err)
		}
	}
	d.Wait()
	if p := runner.peak.Load(); p > 2 {
		t.Fatalf("peak concurrency = %d, want <= 2", p)
	}
}

func TestQueuedJobsGoThroughQueue(t *testing.T) {
	q := &fakeQueue{}
	d := NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 1, nil).WithQueue(q)

	st, err := d.Submit(context.Background(), validReq)
	if err != nil {
		t.Fatal(err)
	}
	if len(q.enqueued) != 1 || q.enqueued[0] != st.ID {
		t.Fatalf("enqueued = %v", q.enqueued)
	}
	if got := mustGet(t, d, st.ID); got.Stage != types.StageQueued {
		t.Fatalf("stage before worker = %s", got.Stage)
	}

	if err := d.Process(context.Background(), st.ID); err != nil {
		t.Fatal(err)
	}
	if got := mustGet(t, d, st.ID); got.Stage != types.StageDone {
		t.Fatalf("stage after worker = %s", got.Stage)
	}
}

func TestCancelQueuedRemoteJob(t *testing.T) {
	q := &fakeQueue{}
	runner := &fakeRunner{}
	d := NewDispatcher(runner, NewMemoryStore(), staticCreds{}, 1, nil).WithQueue(q)

	st, _ := d.Submit(context.Background(), validReq)
	if _, err := d.Cancel(context.Background(), st.ID); err != nil {
		t.Fatal(err)
	}
	if len(q.canceled) != 1 {
		t.Fatalf("queue cancels = %v", q.canceled)
	}
	// a worker that picks the task up anyway skips it
	if err := d.Process(context.Background(), st.ID); err != nil {
		t.Fatal(err)
	}
	if runner.peak.Load() != 0 {
		t.Fatal("canceled job should not run")
	}
	if got := mustGet(t, d, st.ID); got.Stage != types.StageCanceled {
		t.Fatalf("stage = %s", got.Stage)
	}
}

func TestWorkerRejectsBadPayload(t *testing.T) {
	w := &Worker{d: NewDispatcher(&fakeRunner{}, NewMemoryStore(), staticCreds{}, 1, nil)}
	err := w.handle(context.Background(), asynq.NewTask(TypeGenerateVideo, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("err = %v", err)
	}
}

func TestIntakeHandler(t *testing.T) {
	store := NewMemoryStore()
	d := NewDispatcher(&fakeRunner{}, store, staticCreds{}, 1, nil)
	h := &intakeHandler{d: d, log: d.log}

	tests := []struct {
		name string
		msg  string
		mark bool
	}{
		{"malformed", "not json", true},
		{"invalid", `{"title":"","category":"finance","duration_minutes":2}`, true},
		{"valid", `{"title":"Budgeting","category":"finance","duration_minutes":1}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.handle(context.Background(), []byte(tt.msg)); got != tt.mark {
				t.Fatalf("mark = %v, want %v", got, tt.mark)
			}
		})
	}
	d.Wait()
	if len(store.states) != 1 {
		t.Fatalf("jobs stored = %d, want 1", len(store.states))
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.Put(ctx, &types.RunState{ID: "a", Stage: types.StageQueued}); err != nil {
		t.Fatal(err)
	}
	st, _ := s.Get(ctx, "a")
	st.Stage = types.StageDone

	again, _ := s.Get(ctx, "a")
	if again.Stage != types.StageQueued {
		t.Fatalf("stored state mutated: %s", again.Stage)
	}
	if _, err := s.Get(ctx, "b"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

func TestSweepRemovesOnlyExpiredDirs(t *testing.T) {
	dir := t.TempDir()
	old := filepath.Join(dir, "old-run")
	fresh := filepath.Join(dir, "fresh-run")
	for _, p := range []string{old, fresh} {
		if err := os.MkdirAll(p, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "stray.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	past := time.Now().Add(-100 * time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}

	s := NewSweeper(dir, 72*time.Hour, nil)
	if n := s.Sweep(); n != 1 {
		t.Fatalf("removed = %d, want 1", n)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Fatal("old run dir should be gone")
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Fatal("fresh run dir should remain")
	}
}

func TestSweepMissingDir(t *testing.T) {
	s := NewSweeper(filepath.Join(t.TempDir(), "absent"), time.Hour, nil)
	if n := s.Sweep(); n != 0 {
		t.Fatalf("removed = %d", n)
	}
}
