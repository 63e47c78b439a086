// Package main contains the entrypoint for the GroupPulse service.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"golang.org/x/sync/errgroup"

	"github.com/grouppulse/grouppulse/internal/channel"
	"github.com/grouppulse/grouppulse/internal/config"
	"github.com/grouppulse/grouppulse/internal/database"
	"github.com/grouppulse/grouppulse/internal/gemini"
	"github.com/grouppulse/grouppulse/internal/ingest"
	"github.com/grouppulse/grouppulse/internal/logger"
	"github.com/grouppulse/grouppulse/internal/pipeline"
	"github.com/grouppulse/grouppulse/internal/scheduler"
	"github.com/grouppulse/grouppulse/internal/sentiment"
	"github.com/grouppulse/grouppulse/internal/telegram"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop()
	os.Exit(exitCode)
}

// run initializes all components, blocks until shutdown, and returns the
// process exit code.
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.New(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db)
	store := database.NewStore(db, log)

	gemClient, err := gemini.NewClient(ctx, cfg.Gemini, log)
	if err != nil {
		log.Error("Failed to initialize Gemini client", "error", err)
		return 1
	}

	var cache *sentiment.Cache
	if cfg.Pipeline.CacheSize > 0 {
		if cache, err = sentiment.NewCache(cfg.Pipeline.CacheSize); err != nil {
			log.Error("Failed to create sentiment cache", "error", err)
			return 1
		}
	}

	resolver, err := sentiment.NewResolver(
		gemClient, cache, store,
		cfg.Pipeline.MaxConcurrent, cfg.Pipeline.ClassifyTimeout, log)
	if err != nil {
		log.Error("Failed to create sentiment resolver", "error", err)
		return 1
	}

	filter, err := ingest.NewFilter(store, log)
	if err != nil {
		log.Error("Failed to create deduplication filter", "error", err)
		return 1
	}

	history, err := channel.NewStoreHistory(store, cfg.Pipeline.OrgID)
	if err != nil {
		log.Error("Failed to create history source", "error", err)
		return 1
	}

	backfill, err := pipeline.NewBackfill(
		store, filter, resolver, history,
		cfg.Pipeline.PageSize, cfg.Pipeline.PageRetries, log)
	if err != nil {
		log.Error("Failed to create backfill runner", "error", err)
		return 1
	}

	manager, err := pipeline.NewManager(store, backfill, cfg.Pipeline.OrgID, log)
	if err != nil {
		log.Error("Failed to create task manager", "error", err)
		return 1
	}

	sched, err := scheduler.New(log, &cfg.Scheduler, scheduler.RegisterAll(scheduler.TaskDeps{
		Logger:   log,
		Store:    store,
		Backfill: backfill,
		OrgID:    cfg.Pipeline.OrgID,
	}))
	if err != nil {
		log.Error("Failed to create scheduler", "error", err)
		return 1
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Telegram.Enabled {
		var listener *telegram.Listener

		botOpts := []tgbot.Option{
			tgbot.WithDefaultHandler(func(ctx context.Context, b *tgbot.Bot, update *models.Update) {
				listener.Handle(ctx, b, update)
			}),
		}
		tg, err := telegram.NewTelegramBot(cfg.Telegram.Token, log, botOpts...)
		if err != nil {
			log.Error("Failed to create Telegram bot", "error", err)
			return 1
		}

		stream, err := pipeline.NewStream(store, resolver, cfg.Pipeline.OrgID, pipeline.StreamOptions{
			Replier:      gemClient,
			Sender:       telegram.NewSender(tg),
			AutoReply:    cfg.Pipeline.AutoReply,
			ReplyContext: cfg.Pipeline.ReplyContext,
		}, log)
		if err != nil {
			log.Error("Failed to create stream pipeline", "error", err)
			return 1
		}

		listener, err = telegram.NewListener(tg, stream, manager, log)
		if err != nil {
			log.Error("Failed to create Telegram listener", "error", err)
			return 1
		}
		if err := listener.Init(ctx); err != nil {
			log.Error("Failed to initialize Telegram listener", "error", err)
			return 1
		}

		g.Go(func() error {
			return listener.Run(gctx)
		})
	} else {
		log.Info("Telegram listener disabled, running scheduled tasks only")
	}

	if err := sched.Start(); err != nil {
		log.Error("Failed to start scheduler", "error", err)
		return 1
	}

	log.Info("GroupPulse started", "org_id", cfg.Pipeline.OrgID)

	<-gctx.Done()
	log.Info("Shutdown requested, stopping components...")

	if err := sched.Stop(); err != nil {
		log.Error("Error stopping scheduler", "error", err)
	}

	runErr := g.Wait()
	manager.Wait()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Service stopped due to error", "error", runErr)
		time.Sleep(time.Second)
		return 1
	}

	log.Info("GroupPulse stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
