package commands

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/koromind/koromind/internal/api"
	"github.com/koromind/koromind/internal/approvals"
	"github.com/koromind/koromind/internal/config"
	"github.com/koromind/koromind/internal/middleware"
	"github.com/koromind/koromind/internal/telegram"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the KoroMind server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe()
		},
	}
}

func runServe() error {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("no .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	slog.Info("starting server", "port", cfg.Port, "data_dir", cfg.DataDir)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := buildCore(ctx, cfg, true)
	if err != nil {
		return err
	}
	defer c.close()
	slog.Info("database connected", "path", cfg.DBPath)

	tracker := approvals.NewTracker(approvals.DefaultCapacity, approvals.DefaultTTL)
	handler := api.NewHandler(c.brain, tracker)
	healthHandler := api.NewHealthHandler(c.repo)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health is public; everything else sits behind the API key.
	healthHandler.RegisterHealth(r)
	r.Group(func(r chi.Router) {
		if !cfg.AllowNoAuth {
			r.Use(middleware.APIKey(cfg.APIKey))
		}
		handler.RegisterRoutes(r)
	})

	if cfg.TelegramEnabled() {
		bot, err := telegram.New(cfg.TelegramToken, cfg.TelegramAllowedIDs, c.brain, tracker)
		if err != nil {
			return err
		}
		go bot.Run(ctx)
	} else {
		slog.Info("telegram front-end disabled (TELEGRAM_BOT_TOKEN not set)")
	}

	// No WriteTimeout: turns and websocket streams outlive any sane value.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     r,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	go func() {
		slog.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	stop()

	slog.Info("shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	slog.Info("server stopped")
	return nil
}
