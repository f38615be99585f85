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

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"pomodoro/bot/internal/bot"
	"pomodoro/bot/internal/config"
	"pomodoro/bot/internal/handler"
	"pomodoro/bot/internal/logging"
	"pomodoro/bot/internal/repository"
	"pomodoro/bot/internal/router"
	"pomodoro/bot/internal/scheduler"
	"pomodoro/bot/internal/service"
	maxtransport "pomodoro/bot/internal/transport/max"
	"pomodoro/bot/internal/transport/telegram"
)

const shutdownTimeout = 10 * time.Second

// transport is a messenger that can also pull its own updates.
type transport interface {
	bot.Messenger
	Poll(ctx context.Context, h bot.UpdateHandler) error
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bot and the admin HTTP server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(flags)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, logging.New(cfg.Debug))
		},
	}
}

func serve(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	if cfg.BotToken == "" {
		return errors.New("BOT_TOKEN is required")
	}
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	schedule, err := cfg.ResetSchedule()
	if err != nil {
		return err
	}

	database, applied, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer database.Close()
	if len(applied) > 0 {
		logger.Info("applied migrations", "names", applied)
	}

	userRepo := repository.NewUserRepository(database)
	sessionRepo := repository.NewSessionRepository(database)

	client, tg, err := newTransport(ctx, cfg, logger)
	if err != nil {
		return err
	}

	timers := service.NewTimerService(userRepo, sessionRepo, bot.NewPresenter(client), scheduler.Runtime{}, service.TimerOptions{
		Logger:              logger,
		Location:            loc,
		DefaultWorkMinutes:  cfg.DefaultWorkMinutes,
		DefaultBreakMinutes: cfg.DefaultBreakMinutes,
	})
	defer timers.Stop()
	updates := bot.NewHandler(timers, client, cfg.Presets, logger)

	resetJob, err := service.NewResetJob(sessionRepo, schedule, loc, nil, logger)
	if err != nil {
		return err
	}
	if err := resetJob.Start(ctx); err != nil {
		return err
	}
	defer resetJob.Stop()

	var receiver handler.WebhookReceiver
	useWebhook := tg != nil && cfg.WebhookURL != "" && !cfg.Debug
	if useWebhook {
		if err := tg.SetWebhook(cfg.WebhookURL); err != nil {
			return err
		}
		receiver = tg.Webhook(updates)
	}

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	authService := service.NewAuthService(cfg.AdminUsername, cfg.AdminPasswordHash, cfg.JWTSecret, cfg.TokenTTL)
	statsService := service.NewStatsService(userRepo, sessionRepo, timers)
	engine := router.New(
		authService,
		handler.NewAuthHandler(authService),
		handler.NewAdminHandler(timers, statsService, resetJob),
		handler.NewWebhookHandler(receiver, logger),
		cfg.CORSOrigins,
	)
	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	pollCtx, cancelPoll := context.WithCancel(ctx)
	defer cancelPoll()
	pollDone := make(chan struct{})
	if useWebhook {
		close(pollDone)
	} else {
		go func() {
			defer close(pollDone)
			if err := client.Poll(pollCtx, updates); err != nil {
				errCh <- err
			}
		}()
	}

	logger.Info("bot started", "platform", cfg.Platform, "webhook", useWebhook)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case runErr = <-errCh:
		logger.Error("stopping after failure", "error", runErr)
	}

	cancelPoll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	select {
	case <-pollDone:
	case <-shutdownCtx.Done():
		logger.Warn("update handlers still running at shutdown")
	}
	return runErr
}

// newTransport returns the platform client. The telegram client is also
// returned on its own because only it supports webhooks.
func newTransport(ctx context.Context, cfg config.Config, logger *slog.Logger) (transport, *telegram.Client, error) {
	switch cfg.Platform {
	case config.PlatformMax:
		client, err := maxtransport.New(cfg.BotToken, logger)
		if err != nil {
			return nil, nil, err
		}
		name, err := client.BotName(ctx)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("authorized", "platform", config.PlatformMax, "bot", name)
		return client, nil, nil
	default:
		client, err := telegram.New(cfg.BotToken, cfg.Debug, logger)
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}
}
