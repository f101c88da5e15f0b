package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"video-essay-pipeline/api"
	"video-essay-pipeline/audio"
	"video-essay-pipeline/config"
	"video-essay-pipeline/credentials"
	"video-essay-pipeline/jobs"
	"video-essay-pipeline/pipeline"
	"video-essay-pipeline/render"
	"video-essay-pipeline/research"
	"video-essay-pipeline/script"
	"video-essay-pipeline/storage"
	"video-essay-pipeline/types"
	"video-essay-pipeline/upload"
	"video-essay-pipeline/visuals"
)

func main() {
	// .env is for local dev; deployments set the environment directly
	_ = godotenv.Load()

	var (
		mode       = flag.String("mode", "cli", "cli | serve | worker | kafka")
		configPath = flag.String("config", "config.yaml", "config file")
		title      = flag.String("title", "", "video title (cli)")
		category   = flag.String("category", "finance", "content category (cli)")
		minutes    = flag.Float64("duration", 5, "target duration in minutes (cli)")
		tone       = flag.String("tone", "professional", "narration tone (cli)")
		voice      = flag.String("voice", "professional-male", "voice style (cli)")
		visual     = flag.String("visual", "modern", "visual style (cli)")
		setKey     = flag.String("set-key", "", "store service=secret in the credentials database and exit")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *setKey != "" {
		if err := storeKey(ctx, cfg, *setKey); err != nil {
			logger.Error("set-key failed", "error", err)
			os.Exit(1)
		}
		return
	}

	app, err := build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer app.close()

	switch *mode {
	case "cli":
		err = app.runOnce(ctx, types.GenerationRequest{
			Title:           *title,
			Category:        *category,
			DurationMinutes: *minutes,
			Tone:            *tone,
			VoiceStyle:      *voice,
			VisualStyle:     *visual,
		})
	case "serve":
		err = app.serve(ctx)
	case "worker":
		err = app.work(ctx)
	case "kafka":
		err = app.consume(ctx)
	default:
		err = fmt.Errorf("unknown mode %q", *mode)
	}
	if err != nil {
		logger.Error("exiting", "mode", *mode, "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

type app struct {
	cfg        *config.Config
	log        *slog.Logger
	dispatcher *jobs.Dispatcher
	suggester  *research.Suggester
	sweeper    *jobs.Sweeper
	closers    []func() error
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, log: logger}

	reg := script.NewRegistry()
	if cfg.Script.TemplatesFile != "" {
		if err := reg.LoadFile(cfg.Script.TemplatesFile); err != nil {
			return nil, err
		}
	}
	composer := script.New(cfg.Script, reg, rand.New(rand.NewSource(time.Now().UnixNano())), logger)
	narrator := audio.New(cfg.Audio, cfg.Script.WordsPerMinute, nil, audio.FFProbe{Timeout: 30 * time.Second}, logger)
	fetcher := visuals.New(cfg.Assets, logger)
	compiler := render.New(cfg.Render, render.NewFFmpegRunner(cfg.Render, logger), logger)
	orch := pipeline.New(cfg, composer, narrator, fetcher, compiler, logger)

	var creds credentials.Source = credentials.EnvSource{}
	if cfg.Credentials.Source == "mysql" {
		db, err := credentials.OpenMySQL(cfg.Credentials.MySQLDSN)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, db.Close)
		creds = credentials.Layered{credentials.EnvSource{}, db}
	}

	var store jobs.Store = jobs.NewMemoryStore()
	if cfg.Jobs.Store == "redis" {
		rs, err := jobs.NewRedisStore(cfg.Jobs.RedisAddr, cfg.Jobs.RedisPassword, cfg.Jobs.RedisDB, cfg.Jobs.StateTTL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rs.Close)
		store = rs
	}

	a.dispatcher = jobs.NewDispatcher(orch, store, creds, cfg.Jobs.Concurrency, logger)
	if cfg.Jobs.Backend == "asynq" {
		q := jobs.NewAsynqQueue(cfg.Jobs, logger)
		a.closers = append(a.closers, q.Close)
		a.dispatcher.WithQueue(q)
	}

	pub, err := storage.New(ctx, cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	if pub != nil {
		a.dispatcher.WithPublisher(pub)
	}
	if cfg.Upload.Enabled {
		a.dispatcher.WithUploader(upload.NewYouTube(cfg.Upload, logger))
	}

	if a.suggester, err = research.New(cfg.Research, nil, logger); err != nil {
		logger.Warn("topic research disabled", "error", err)
	}

	a.sweeper = jobs.NewSweeper(cfg.Paths.Temp, cfg.Cleanup.MaxAge, logger)
	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", "error", err)
		}
	}
}

func (a *app) startSweeper() func() {
	if a.cfg.Cleanup.Schedule == "" || !a.cfg.Cleanup.RetainFailed {
		return func() {}
	}
	if err := a.sweeper.Start(a.cfg.Cleanup.Schedule); err != nil {
		a.log.Warn("sweeper not started", "error", err)
		return func() {}
	}
	return a.sweeper.Stop
}

// runOnce generates one video in-process and prints the final job state.
func (a *app) runOnce(ctx context.Context, req types.GenerationRequest) error {
	if a.cfg.Jobs.Backend == "asynq" {
		return errors.New("cli mode runs in-process; set jobs.backend to local")
	}
	st, err := a.dispatcher.Submit(ctx, req)
	if err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		if _, err := a.dispatcher.Cancel(context.WithoutCancel(ctx), st.ID); err != nil && !errors.Is(err, jobs.ErrFinished) {
			a.log.Warn("cancel failed", "error", err)
		}
	}()
	a.dispatcher.Wait()

	final, err := a.dispatcher.Get(context.WithoutCancel(ctx), st.ID)
	if err != nil {
		return err
	}
	out, _ := json.MarshalIndent(final, "", "  ")
	fmt.Println(string(out))
	if final.Stage != types.StageDone {
		return fmt.Errorf("%s: %s", final.ErrorKind, final.Error)
	}
	return nil
}

func (a *app) serve(ctx context.Context) error {
	defer a.startSweeper()()

	var topics api.Topics
	if a.suggester != nil {
		topics = a.suggester
	}
	srv := &http.Server{
		Addr:              a.cfg.Server.Addr,
		Handler:           api.NewRouter(a.cfg, a.dispatcher, topics, a.log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", srv.Addr, "backend", a.cfg.Jobs.Backend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	a.dispatcher.Wait()
	return nil
}

func (a *app) work(ctx context.Context) error {
	if a.cfg.Jobs.Store != "redis" {
		return errors.New("worker mode needs jobs.store=redis to share state with the API")
	}
	defer a.startSweeper()()
	return jobs.NewWorker(a.cfg.Jobs, a.dispatcher, a.log).Run(ctx)
}

func (a *app) consume(ctx context.Context) error {
	intake, err := jobs.NewKafkaIntake(a.cfg.Kafka, a.dispatcher, a.log)
	if err != nil {
		return err
	}
	defer intake.Close()
	defer a.startSweeper()()

	err = intake.Run(ctx)
	a.dispatcher.Wait()
	return err
}

func storeKey(ctx context.Context, cfg *config.Config, kv string) error {
	service, secret, ok := strings.Cut(kv, "=")
	if !ok || service == "" || secret == "" {
		return errors.New("expected service=secret")
	}
	db, err := credentials.OpenMySQL(cfg.Credentials.MySQLDSN)
	if err != nil {
		return err
	}
	defer db.Close()
	return db.Put(ctx, strings.ToLower(service), secret)
}
