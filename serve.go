package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adminbot/internal/agent"
	"adminbot/internal/api"
	"adminbot/internal/audit"
	"adminbot/internal/auth"
	"adminbot/internal/config"
	"adminbot/internal/executor"
	"adminbot/internal/redis"
	"adminbot/internal/registry"
	"adminbot/internal/session"
	"adminbot/internal/storage"
	"adminbot/internal/transfer"
	"adminbot/internal/transport/telegram"
	"adminbot/internal/worker"
)

const shutdownTimeout = 10 * time.Second

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	startedAt := time.Now()

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	setLevel(cfg.LogLevel)

	gate, err := auth.NewGate(cfg.AdminIDs)
	if err != nil {
		return err
	}

	composites, err := registry.Load(cfg.Bot.CommandsFile)
	if err != nil {
		logger.Warn("custom commands not loaded", zap.String("file", cfg.Bot.CommandsFile), zap.Error(err))
		composites = nil
	}
	reg := registry.New(composites, logger.Named("registry"))

	recorder, closeAudit, err := openAudit(cfg)
	if err != nil {
		return err
	}
	defer closeAudit()

	var botOpts []bot.Option
	if cfg.Telegram.Webhook() {
		botOpts = append(botOpts, bot.WithWebhookSecretToken(cfg.Telegram.WebhookSecret))
	}
	adapter, err := telegram.New(cfg.Telegram.Token, logger.Named("telegram"), botOpts...)
	if err != nil {
		return err
	}

	sessions := session.NewStore()
	handler := agent.New(
		gate,
		reg,
		executor.New(cfg.Bot.Shell, logger.Named("executor")),
		transfer.New(adapter, transfer.Options{Logger: logger.Named("transfer")}),
		sessions,
		adapter,
		agent.Options{
			MaxMessageLength: cfg.Bot.MaxMessageLength,
			UploadDir:        cfg.Bot.UploadDir,
			RebootCommand:    cfg.Bot.RebootCommand,
			Version:          version,
			StartedAt:        startedAt,
			Audit:            recorder,
			Logger:           logger.Named("agent"),
		},
	)

	dispatcher := worker.NewDispatcher(worker.Config{
		MinWorkers:  cfg.Worker.MinWorkers,
		MaxWorkers:  cfg.Worker.MaxWorkers,
		QueueSize:   cfg.Worker.QueueSize,
		IdleTimeout: cfg.Worker.IdleTimeout(),
	}, handler, logger.Named("worker"))
	adapter.Route(dispatcher)

	if err := os.MkdirAll(cfg.Bot.UploadDir, 0o755); err != nil {
		logger.Warn("upload directory not created", zap.String("dir", cfg.Bot.UploadDir), zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := adapter.SetCommands(ctx, reg.Commands()); err != nil {
		logger.Warn("command menu not published", zap.Error(err))
	}

	webhook := cfg.Telegram.Webhook()
	if webhook {
		if err := adapter.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return err
		}
	} else if err := adapter.DeleteWebhook(ctx); err != nil {
		logger.Warn("webhook not cleared", zap.Error(err))
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	apiOpts := api.Options{StartedAt: startedAt, Version: version}
	if webhook {
		apiOpts.Webhook = adapter.WebhookHandler()
		apiOpts.WebhookPath = cfg.Server.WebhookPath
		apiOpts.WebhookSecret = cfg.Telegram.WebhookSecret
	}
	api.NewHandler(dispatcher, sessions, apiOpts).RegisterRoutes(router)
	srv := &http.Server{Addr: cfg.Server.Address, Handler: router, ReadHeaderTimeout: 10 * time.Second}

	handler.NotifyStartup(ctx)
	logger.Info("bot started",
		zap.String("version", version),
		zap.Bool("webhook", webhook),
		zap.String("address", cfg.Server.Address),
		zap.Int("admins", len(cfg.AdminIDs)),
		zap.Int("custom_commands", len(composites)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if webhook {
			adapter.StartWebhook(gctx)
		} else {
			adapter.Start(gctx)
		}
		return nil
	})
	g.Go(func() error {
		return listen(srv, webhook)
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", zap.Error(err))
		}
		handler.NotifyShutdown(shutdownCtx)
		if err := dispatcher.Close(shutdownCtx); err != nil {
			logger.Warn("dispatcher did not drain", zap.Error(err))
		}
		return nil
	})
	return g.Wait()
}

// listen runs srv until it is shut down. Webhook mode cannot work without
// the listener, so its failure is returned; in polling mode the server only
// serves /healthz and a failure is logged.
func listen(srv *http.Server, required bool) error {
	err := srv.ListenAndServe()
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	if required {
		return fmt.Errorf("http server: %w", err)
	}
	logger.Error("health endpoint unavailable, continuing without it",
		zap.String("address", srv.Addr), zap.Error(err))
	return nil
}

// openAudit builds the recorder and its sinks. The returned func closes
// whatever was opened.
func openAudit(cfg *config.Config) (*audit.Recorder, func(), error) {
	var (
		sinks   []audit.Sink
		closers []func() error
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
	}

	if cfg.Audit.Database != "" {
		db, err := storage.Open(cfg.Audit.Database, cfg)
		if err != nil {
			return nil, nil, fmt.Errorf("open audit database: %w", err)
		}
		closers = append(closers, db.Close)
		if err := storage.Migrate(db, cfg.Audit.Database); err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("migrate audit database: %w", err)
		}
		sinks = append(sinks, audit.NewSQLSink(db))
	}

	if cfg.Redis.Enabled {
		rdb, err := redis.NewRedisClient(cfg.Redis)
		if err != nil {
			closeAll()
			return nil, nil, fmt.Errorf("create redis client: %w", err)
		}
		closers = append(closers, rdb.Close)
		sinks = append(sinks, audit.NewRedisSink(rdb, cfg.Audit.RedisChannel))
	}

	return audit.NewRecorder(logger.Named("audit"), sinks...), closeAll, nil
}
