package jobs

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"video-essay-pipeline/credentials"
	"video-essay-pipeline/pipeline"
	"video-essay-pipeline/types"
)

var ErrFinished = errors.New("job already finished")

type Runner interface {
	Execute(ctx context.Context, req types.GenerationRequest, creds credentials.Snapshot, progress pipeline.ProgressFunc) (*types.RunResult, error)
}

// Publisher copies a finished artifact somewhere shareable and returns its URL.
type Publisher interface {
	Publish(ctx context.Context, path string) (string, error)
}

// Uploader posts a finished video to a channel and returns its watch URL.
type Uploader interface {
	Upload(ctx context.Context, req types.GenerationRequest, res *types.RunResult) (string, error)
}

// Queue hands job ids to remote workers. A nil Queue means jobs run in
// this process.
type Queue interface {
	Enqueue(ctx context.Context, id string) error
	Cancel(id string) error
}

// Dispatcher accepts requests, runs them with bounded concurrency and
// records their progress in a Store.
type Dispatcher struct {
	runner    Runner
	store     Store
	creds     credentials.Source
	queue     Queue
	publisher Publisher
	uploader  Uploader
	sem       chan struct{}
	log       *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewDispatcher(runner Runner, store Store, creds credentials.Source, concurrency int, logger *slog.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		runner:  runner,
		store:   store,
		creds:   creds,
		sem:     make(chan struct{}, concurrency),
		log:     logger.With("component", "jobs"),
		now:     time.Now,
		cancels: make(map[string]context.CancelFunc),
	}
}

func (d *Dispatcher) WithQueue(q Queue) *Dispatcher         { d.queue = q; return d }
func (d *Dispatcher) WithPublisher(p Publisher) *Dispatcher { d.publisher = p; return d }
func (d *Dispatcher) WithUploader(u Uploader) *Dispatcher   { d.uploader = u; return d }

// Submit validates req, records it as queued and schedules it.
func (d *Dispatcher) Submit(ctx context.Context, req types.GenerationRequest) (*types.RunState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	now := d.now().UTC()
	st := &types.RunState{
		ID:        uuid.NewString(),
		Stage:     types.StageQueued,
		Request:   req,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := d.store.Put(ctx, st); err != nil {
		return nil, err
	}

	if d.queue != nil {
		if err := d.queue.Enqueue(ctx, st.ID); err != nil {
			d.fail(context.WithoutCancel(ctx), st, types.NewError(types.KindInternal, "enqueue", err))
			return nil, err
		}
	} else {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			if err := d.Process(context.Background(), st.ID); err != nil {
				d.log.Error("job processing failed", "job", st.ID, "error", err)
			}
		}()
	}
	d.log.Info("job submitted", "job", st.ID, "title", req.Title, "category", req.Category)
	return st, nil
}

func (d *Dispatcher) Get(ctx context.Context, id string) (*types.RunState, error) {
	return d.store.Get(ctx, id)
}

// Cancel stops a queued or running job.
func (d *Dispatcher) Cancel(ctx context.Context, id string) (*types.RunState, error) {
	st, err := d.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if st.Stage.Terminal() {
		return st, ErrFinished
	}

	d.mu.Lock()
	cancel, local := d.cancels[id]
	d.mu.Unlock()
	if local {
		cancel()
		return st, nil
	}

	if d.queue != nil {
		if err := d.queue.Cancel(id); err != nil {
			d.log.Warn("remote cancel failed", "job", id, "error", err)
		}
	}
	d.finish(ctx, st, nil, types.NewError(types.KindCanceled, "cancel", context.Canceled))
	return st, nil
}

// Process runs a stored job to completion. Pipeline failures are recorded
// on the job and not returned; only bookkeeping errors are.
func (d *Dispatcher) Process(ctx context.Context, id string) error {
	st, err := d.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if st.Stage.Terminal() {
		d.log.Info("job already finished, skipping", "job", id, "stage", st.Stage)
		return nil
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	d.cancels[id] = cancel
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		delete(d.cancels, id)
		d.mu.Unlock()
	}()
	// a cancel may have landed between the first read and registration
	if cur, err := d.store.Get(ctx, id); err == nil && cur.Stage.Terminal() {
		return nil
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.finish(ctx, st, nil, types.NewError(types.KindCanceled, "queue", ctx.Err()))
		return nil
	}
	defer func() { <-d.sem }()

	creds, err := d.creds.Snapshot(ctx)
	if err != nil {
		d.finish(ctx, st, nil, types.NewError(types.KindInternal, "credentials", err))
		return nil
	}

	res, err := d.runner.Execute(ctx, st.Request, creds, func(_ string, stage types.Stage) {
		if stage == types.StageDone {
			return
		}
		st.Stage = stage
		d.save(ctx, st)
	})
	if err == nil {
		d.deliver(ctx, st, res)
	}
	d.finish(ctx, st, res, err)
	return nil
}

// deliver runs the optional publish and upload steps. Their failures are
// logged and never fail the job.
func (d *Dispatcher) deliver(ctx context.Context, st *types.RunState, res *types.RunResult) {
	if d.publisher != nil {
		url, err := d.publisher.Publish(ctx, res.Video.Path)
		if err != nil {
			d.log.Warn("publish failed, continuing", "job", st.ID, "error", err)
		} else {
			st.PublicURL = url
		}
	}
	if d.uploader != nil && res.Video.Quality != types.QualityAudioOnly {
		url, err := d.uploader.Upload(ctx, st.Request, res)
		if err != nil {
			d.log.Warn("upload failed, continuing", "job", st.ID, "error", err)
		} else {
			st.YouTubeURL = url
		}
	}
}

func (d *Dispatcher) finish(ctx context.Context, st *types.RunState, res *types.RunResult, err error) {
	ctx = context.WithoutCancel(ctx)
	if err != nil {
		d.fail(ctx, st, err)
		return
	}
	st.Stage = types.StageDone
	st.Result = res
	d.save(ctx, st)
	d.log.Info("job done", "job", st.ID, "path", res.Video.Path, "strategy", res.Video.Strategy)
}

func (d *Dispatcher) fail(ctx context.Context, st *types.RunState, err error) {
	st.ErrorKind = types.KindOf(err)
	st.Error = types.PublicMessage(err)
	st.Stage = types.StageFailed
	if st.ErrorKind == types.KindCanceled {
		st.Stage = types.StageCanceled
	}
	d.save(ctx, st)
	d.log.Warn("job ended", "job", st.ID, "stage", st.Stage, "kind", st.ErrorKind, "error", err)
}

func (d *Dispatcher) save(ctx context.Context, st *types.RunState) {
	st.UpdatedAt = d.now().UTC()
	if err := d.store.Put(context.WithoutCancel(ctx), st); err != nil {
		d.log.Error("could not save job state", "job", st.ID, "error", err)
	}
}

// Wait blocks until every locally started job has returned.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
