package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/iamstudio/brandrender/internal/artifact"
	"github.com/iamstudio/brandrender/internal/compositor"
	"github.com/iamstudio/brandrender/internal/config"
	"github.com/iamstudio/brandrender/internal/handler"
	"github.com/iamstudio/brandrender/internal/logging"
	"github.com/iamstudio/brandrender/internal/middleware"
	"github.com/iamstudio/brandrender/internal/queue"
	"github.com/iamstudio/brandrender/internal/render"
	"github.com/iamstudio/brandrender/internal/service"
	"github.com/iamstudio/brandrender/internal/store"
	"github.com/iamstudio/brandrender/internal/worker"
)

// asynqTaskSlack covers bundling and upload on top of the render budget.
const asynqTaskSlack = 15 * time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		boot := logging.New("production", "info", os.Stderr)
		boot.Fatal().Err(err).Msg("failed to load config")
	}

	log := logging.New(cfg.Server.Env, cfg.Server.LogLevel, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize Redis client
	var redisClient *redis.Client
	if cfg.NeedsRedis() {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("redis not available")
		}
	}

	// Job store
	var jobs store.JobStore
	switch cfg.Store.Backend {
	case config.BackendRedis:
		jobs = store.NewRedisStore(redisClient, cfg.Store.Retention)
	default:
		jobs = store.NewMemoryStore()
	}

	// Artifact store
	var artifacts artifact.Store
	switch cfg.Artifact.Backend {
	case config.BackendS3:
		artifacts, err = artifact.NewS3Store(ctx, artifact.S3Config{
			Endpoint:        cfg.Artifact.S3.Endpoint,
			Region:          cfg.Artifact.S3.Region,
			Bucket:          cfg.Artifact.S3.Bucket,
			AccessKeyID:     cfg.Artifact.S3.AccessKeyID,
			SecretAccessKey: cfg.Artifact.S3.SecretAccessKey,
			UsePathStyle:    cfg.Artifact.S3.UsePathStyle,
		})
	default:
		artifacts, err = artifact.NewLocalStore(cfg.Artifact.LocalDir)
	}
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Artifact.Backend).Msg("failed to initialize artifact store")
	}

	// Render pipeline
	engine := newEngine(cfg)
	cache := render.NewCompositionCache(engine)
	renderWorker := worker.NewRenderWorker(
		jobs,
		cache,
		render.NewCompositionResolver(engine),
		render.NewRenderExecutor(engine, cfg.Render.Timeout),
		artifacts,
		cfg.Render.WorkDir,
		log,
	)

	var q queue.Queue
	switch cfg.Queue.Backend {
	case config.BackendAsynq:
		aq := queue.NewAsynqQueue(
			asynq.RedisClientOpt{
				Addr:     cfg.Redis.Addr,
				Password: cfg.Redis.Password,
				DB:       cfg.Redis.DB,
			},
			renderWorker.Process,
			queue.AsynqConfig{
				MaxDepth:    cfg.Queue.MaxDepth,
				TaskTimeout: cfg.Render.Timeout + asynqTaskSlack,
				Retention:   cfg.Store.Retention,
			},
			log,
		)
		defer aq.Close()
		q = aq
	default:
		q = queue.NewLocalQueue(renderWorker.Process, cfg.Queue.MaxDepth, log)
	}

	workerCtx, stopWorker := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		if err := q.Run(workerCtx); err != nil {
			log.Error().Err(err).Msg("render queue stopped")
		}
	}()

	// Services
	renderService := service.NewRenderService(jobs, q, artifacts, log)

	if cfg.Store.Retention > 0 {
		janitor := service.NewJanitor(jobs, artifacts, cfg.Store.Retention, log)
		sweeper, err := janitor.Start(workerCtx, cfg.Store.SweepSchedule)
		if err != nil {
			log.Fatal().Err(err).Str("schedule", cfg.Store.SweepSchedule).Msg("invalid sweep schedule")
		}
		defer sweeper.Stop()
	}

	// Handlers
	renderHandler := handler.NewRenderHandler(renderService, handler.NewValidator(), log)
	healthHandler := handler.NewHealthHandler(renderService, cache.Ready, handler.HealthInfo{
		Engine:   engine.Name(),
		Queue:    cfg.Queue.Backend,
		Store:    cfg.Store.Backend,
		Artifact: artifacts.Name(),
	})

	var startLimit fiber.Handler
	if cfg.RateLimit.StartPerHour > 0 {
		startLimit = middleware.NewRateLimiter(redisClient, log).StartLimit(cfg.RateLimit.StartPerHour)
	}

	app := handler.NewApp(handler.AppConfig{
		BodyLimit:   cfg.Server.BodyLimit,
		CORSOrigins: cfg.Server.CORSOrigins,
		AccessLog:   cfg.IsDevelopment(),
	})
	handler.RegisterRoutes(app, renderHandler, healthHandler, startLimit)

	// Graceful shutdown
	go func() {
		<-ctx.Done()
		log.Info().Msg("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error().Err(err).Msg("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info().
		Str("addr", addr).
		Str("engine", engine.Name()).
		Str("queue", cfg.Queue.Backend).
		Str("store", cfg.Store.Backend).
		Str("artifacts", artifacts.Name()).
		Msg("server starting")

	if err := app.Listen(addr); err != nil {
		log.Error().Err(err).Msg("server error")
	}

	stopWorker()
	select {
	case <-workerDone:
	case <-time.After(30 * time.Second):
		log.Warn().Msg("render worker did not stop in time")
	}
	log.Info().Msg("server stopped")
}

func newEngine(cfg *config.Config) compositor.Engine {
	runner := compositor.ExecRunner{}
	if cfg.Render.Engine == config.EngineFFmpeg {
		return compositor.NewFFmpegEngine(compositor.FFmpegConfig{
			FFmpegPath: cfg.Render.FFmpegPath,
			WorkDir:    cfg.Render.WorkDir,
		}, runner)
	}
	return compositor.NewRemotionEngine(compositor.RemotionConfig{
		NpxPath:    cfg.Render.NpxPath,
		EntryPoint: cfg.Render.EntryPoint,
		WorkDir:    cfg.Render.WorkDir,
		Codec:      cfg.Render.Codec,
	}, runner)
}
