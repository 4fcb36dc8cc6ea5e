package main

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/pixelpress/api/internal/auth"
	"github.com/pixelpress/api/internal/client"
	"github.com/pixelpress/api/internal/config"
	"github.com/pixelpress/api/internal/extract"
	"github.com/pixelpress/api/internal/handler"
	"github.com/pixelpress/api/internal/logger"
	"github.com/pixelpress/api/internal/middleware"
	"github.com/pixelpress/api/internal/model"
	"github.com/pixelpress/api/internal/packager"
	"github.com/pixelpress/api/internal/registry"
	"github.com/pixelpress/api/internal/service"
	"github.com/pixelpress/api/internal/supervisor"
	ws "github.com/pixelpress/api/internal/websocket"
	"github.com/pixelpress/api/internal/worker"
	"github.com/pixelpress/api/internal/workspace"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.NewDefault().Error("failed to load config", "error", err.Error())
		os.Exit(1)
	}

	log := logger.New(logger.Config{
		Level:   cfg.Server.LogLevel,
		Format:  cfg.Server.LogFormat,
		Service: "pixelpress-api",
	})

	// Initialize Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()

	ctx := context.Background()
	redisUp := true
	if err := redisClient.Ping(ctx).Err(); err != nil {
		redisUp = false
		log.Warn("redis not available", "addr", cfg.Redis.Addr, "error", err.Error())
	}

	// Job registry
	var reg registry.Registry
	switch cfg.Registry.Backend {
	case "redis":
		if !redisUp {
			log.Error("redis registry selected but redis is unreachable")
			os.Exit(1)
		}
		reg = registry.NewRedis(redisClient, cfg.Registry.TTL)
	default:
		reg = registry.NewMemory()
	}
	log.Info("job registry ready", "backend", cfg.Registry.Backend)

	// Initialize WebSocket hub
	hub := ws.NewHub(log)
	go hub.Run()
	defer hub.Stop()

	// Bundle storage (optional - bundles are served locally if not configured)
	var storage client.BundleStorage
	if cfg.R2.Configured() {
		r2Client, err := client.NewR2Client(&cfg.R2)
		if err != nil {
			log.Warn("R2 client not initialized", "error", err.Error())
		} else {
			storage = r2Client
		}
	} else {
		log.Info("R2 storage not configured, bundles served locally")
	}

	// Render queue (optional - renders run inline otherwise)
	var queue service.TaskEnqueuer
	var asynqClient *asynq.Client
	if cfg.Render.Async {
		if !redisUp {
			log.Error("async rendering requires redis")
			os.Exit(1)
		}
		asynqClient = asynq.NewClient(redisOpt(cfg))
		defer asynqClient.Close()
		queue = asynqClient
	}

	extractor := extract.New(extract.Options{
		Strategy:         model.ExtractStrategy(cfg.Extract.Strategy),
		BrandKey:         cfg.Extract.BrandKey,
		CodeKey:          cfg.Extract.CodeKey,
		OrchestrationKey: cfg.Extract.OrchestrationKey,
	}, log)

	renderer := supervisor.New(supervisor.Config{
		NPMBinary:        cfg.Render.NPMBinary,
		InstallTimeout:   cfg.Render.InstallTimeout,
		RenderTimeout:    cfg.Render.RenderTimeout,
		MarkerFile:       cfg.Render.MarkerFile,
		BrowserPaths:     cfg.Render.BrowserPaths,
		BrowserFlags:     cfg.Render.BrowserFlags,
		OutputExtensions: cfg.Render.OutputExtensions,
		Env:              cfg.Render.Env,
		OutputTail:       cfg.Render.OutputTail,
		MaxConcurrent:    cfg.Render.MaxConcurrent,
	}, &supervisor.ExecRunner{
		KillGrace: cfg.Render.KillGrace,
		TailLimit: cfg.Render.OutputTail,
	}, log)

	videoService := service.NewVideoService(service.VideoOptions{
		WorkspaceRoot: cfg.Workspace.Root,
		AllowEmbedded: cfg.Extract.AllowEmbedded,
		Manifest: workspace.ManifestConfig{
			Remotion: cfg.Render.Packages.Remotion,
			CLI:      cfg.Render.Packages.CLI,
			React:    cfg.Render.Packages.React,
			ReactDOM: cfg.Render.Packages.ReactDOM,
		},
		DetailLimit: cfg.Render.OutputTail,
	}, service.VideoDeps{
		Registry:  reg,
		Extractor: extractor,
		Renderer:  renderer,
		Packager:  packager.New(),
		Storage:   storage,
		Notifier:  hub,
		Queue:     queue,
		Logger:    log,
	})

	// Token verification: Zitadel JWKS first, then the shared HMAC secret
	var verifiers auth.Chain
	if cfg.Auth.ZitadelIssuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, cfg.Auth.ZitadelIssuer, cfg.Auth.ZitadelClientID)
		if err != nil {
			log.Warn("JWKS verifier not initialized", "error", err.Error())
		} else {
			verifiers = append(verifiers, jwksVerifier)
		}
	}
	if cfg.JWT.Secret != "" {
		verifiers = append(verifiers, auth.NewHMACVerifier(cfg.JWT.Secret))
	}

	var apiAuth fiber.Handler
	switch {
	case !cfg.Auth.Enabled:
		log.Warn("API authentication disabled")
	case cfg.Auth.Gateway:
		// Behind Traefik: auth is handled by ForwardAuth, read X-User-* headers
		log.Info("gateway mode enabled, using header-based auth")
		apiAuth = middleware.GatewayAuthMiddleware()
	default:
		apiAuth = middleware.NewAuthMiddleware(verifiers).Authenticate()
	}

	var limiterRedis *redis.Client
	if redisUp {
		limiterRedis = redisClient
	}

	// Initialize Fiber app
	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    cfg.Server.BodyLimitMB * 1024 * 1024,
	})

	// Global middleware
	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${reqHeaders}\n"
	}
	app.Use(fiberlogger.New(fiberlogger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.CORSOrigins,
		AllowMethods: "GET,POST,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization",
	}))

	handler.Routes{
		Video:           handler.NewVideoHandler(videoService, validator.New()),
		Auth:            handler.NewAuthHandler(verifiers),
		Hub:             hub,
		APIAuth:         apiAuth,
		RateLimiter:     middleware.NewRateLimiter(limiterRedis, log),
		SubmitPerHour:   cfg.RateLimit.SubmitPerHour,
		GeneratePerHour: cfg.RateLimit.GeneratePerHour,
	}.Register(app)

	// Start Asynq worker server
	var workerServer *asynq.Server
	if cfg.Render.Async {
		workerServer = newWorkerServer(cfg)
		mux := worker.NewServeMux(service.TaskTypeRender, worker.NewRenderWorker(videoService, log))
		go func() {
			if err := workerServer.Run(mux); err != nil {
				log.Error("asynq worker stopped", "error", err.Error())
			}
		}()
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if workerServer != nil {
			workerServer.Shutdown()
		}
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("server shutdown error", "error", err.Error())
		}
	}()

	// Start server
	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "env", cfg.Server.Env, "async", cfg.Render.Async)
	if err := app.Listen(addr); err != nil {
		log.Error("server error", "error", err.Error())
		os.Exit(1)
	}
}

func redisOpt(cfg *config.Config) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
}

func newWorkerServer(cfg *config.Config) *asynq.Server {
	asynqLogLevel := asynq.InfoLevel
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug":
		asynqLogLevel = asynq.DebugLevel
	case "warn":
		asynqLogLevel = asynq.WarnLevel
	case "error":
		asynqLogLevel = asynq.ErrorLevel
	}

	return asynq.NewServer(redisOpt(cfg), asynq.Config{
		// The supervisor bounds concurrent renders; extra workers just wait for a slot.
		Concurrency: int(cfg.Render.MaxConcurrent),
		Queues: map[string]int{
			service.QueueRender: 1,
		},
		LogLevel: asynqLogLevel,
	})
}
