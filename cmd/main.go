package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"pairup/backend/internal/analysis"
	"pairup/backend/internal/api/handler"
	"pairup/backend/internal/chathub"
	"pairup/backend/internal/config"
	"pairup/backend/internal/storage"
	"pairup/backend/internal/telegram"

	"github.com/gin-gonic/gin"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
}

func main() {
	if err := godotenv.Load(); err != nil {
		slog.Warn("no .env file loaded", "error", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped gracefully")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := storage.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	rdb, err := storage.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return err
	}
	defer rdb.Close()
	logger.Info("database and redis connections established, migrations complete")

	store := storage.NewStorageService(db, rdb, logger)

	hub := chathub.NewCoordinator(store, chathub.Options{
		ProposalTTL:       cfg.ProposalTTL,
		ProposalRetention: cfg.ProposalRetention,
		StaleAfter:        cfg.PresenceStaleAfter,
		SweepInterval:     cfg.SweepInterval,
		Logger:            logger,
	})
	if err := hub.Recover(); err != nil {
		return fmt.Errorf("recover: %w", err)
	}
	matcher := chathub.NewMatcherService(hub, analysis.NewAffinity(), cfg.MatchInterval)

	var bot *tgbotapi.BotAPI
	if cfg.TelegramToken != "" {
		if bot, err = telegram.NewBotAPI(cfg.TelegramToken); err != nil {
			return err
		}
		logger.Info("telegram bot authorized", "username", bot.Self.UserName)
	}

	gin.SetMode(gin.ReleaseMode)
	h := handler.NewHandler(hub, cfg.JWTSecret, cfg.JWTExpiry, logger)
	server := &http.Server{
		Addr:           ":" + cfg.ServerPort,
		Handler:        handler.NewRouter(h),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return hub.Run(gctx) })
	g.Go(func() error { return matcher.Run(gctx) })
	g.Go(func() error { return hub.Persister().Run(gctx) })

	if bot != nil {
		botSvc := telegram.NewBotService(bot, hub, store, logger)
		g.Go(func() error { return botSvc.Run(gctx, telegram.Updates(bot)) })
	}

	g.Go(func() error {
		logger.Info("starting server", "port", cfg.ServerPort)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
