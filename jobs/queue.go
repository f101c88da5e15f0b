package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"video-essay-pipeline/config"
)

const TypeGenerateVideo = "video:generate"

type taskPayload struct {
	JobID string `json:"job_id"`
}

func redisOpt(cfg config.JobsConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}
}

// AsynqQueue enqueues jobs for asynq workers. Task ids equal job ids so a
// cancel can find the task.
type AsynqQueue struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
	timeout   time.Duration
	log       *slog.Logger
}

func NewAsynqQueue(cfg config.JobsConfig, logger *slog.Logger) *AsynqQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AsynqQueue{
		client:    asynq.NewClient(redisOpt(cfg)),
		inspector: asynq.NewInspector(redisOpt(cfg)),
		queue:     cfg.Queue,
		timeout:   cfg.TaskTimeout,
		log:       logger.With("component", "queue"),
	}
}

func (q *AsynqQueue) Enqueue(ctx context.Context, id string) error {
	payload, err := json.Marshal(taskPayload{JobID: id})
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}

	// no retries: a second attempt would pay for narration again
	task := asynq.NewTask(TypeGenerateVideo, payload,
		asynq.TaskID(id),
		asynq.Queue(q.queue),
		asynq.MaxRetry(0),
		asynq.Timeout(q.timeout),
		asynq.Retention(24*time.Hour),
	)
	info, err := q.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	q.log.Info("task enqueued", "job", id, "queue", info.Queue)
	return nil
}

// Cancel drops a pending task or signals a running one.
func (q *AsynqQueue) Cancel(id string) error {
	if err := q.inspector.DeleteTask(q.queue, id); err == nil {
		return nil
	}
	return q.inspector.CancelProcessing(id)
}

func (q *AsynqQueue) Close() error {
	if err := q.inspector.Close(); err != nil {
		q.log.Warn("inspector close failed", "error", err)
	}
	return q.client.Close()
}

// Worker consumes TypeGenerateVideo tasks and processes them through a
// Dispatcher.
type Worker struct {
	srv *asynq.Server
	mux *asynq.ServeMux
	d   *Dispatcher
	log *slog.Logger
}

func NewWorker(cfg config.JobsConfig, d *Dispatcher, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	w := &Worker{d: d, log: logger.With("component", "worker")}
	w.srv = asynq.NewServer(redisOpt(cfg), asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
	})
	w.mux = asynq.NewServeMux()
	w.mux.HandleFunc(TypeGenerateVideo, w.handle)
	return w
}

// Run serves until ctx is done.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("starting task processor")
	if err := w.srv.Start(w.mux); err != nil {
		return fmt.Errorf("could not run server: %w", err)
	}
	<-ctx.Done()
	w.srv.Shutdown()
	return nil
}

func (w *Worker) handle(ctx context.Context, t *asynq.Task) error {
	var p taskPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil || p.JobID == "" {
		return fmt.Errorf("bad payload %q: %w", t.Payload(), asynq.SkipRetry)
	}
	return w.d.Process(ctx, p.JobID)
}
