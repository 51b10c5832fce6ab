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

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/ledgerdesk/api/internal/config"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/handler"
	"github.com/ledgerdesk/api/internal/logger"
	"github.com/ledgerdesk/api/internal/notify"
	"github.com/ledgerdesk/api/internal/router"
	"github.com/ledgerdesk/api/internal/ws"
	"github.com/rs/zerolog/log"
)

func main() {
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run() error {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	closeLog, err := logger.Setup(cfg.GetLoggerConfig())
	if err != nil {
		return fmt.Errorf("setup logger: %w", err)
	}
	defer closeLog() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	if err := pool.Ping(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	queries := database.New(pool)

	hub := ws.NewHub()
	go hub.Run(ctx)

	reminder, closeReminder, err := newReminder(ctx, cfg, queries)
	if err != nil {
		return err
	}
	defer closeReminder()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router.New(cfg, queries, pool, hub, reminder),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("starting server")
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

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// newReminder returns a nil Reminder when SMTP is not configured.
func newReminder(ctx context.Context, cfg *config.Config, queries *database.Queries) (handler.Reminder, func(), error) {
	if cfg.SMTPHost == "" {
		log.Info().Msg("SMTP_HOST not set, payment reminders disabled")
		return nil, func() {}, nil
	}

	sender, err := notify.NewSMTPSender(notify.SMTPConfig{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
	})
	if err != nil {
		return nil, nil, err
	}

	var cooldown notify.Cooldown
	closeFn := func() {}
	if rdb := notify.NewRedisClient(ctx, cfg.RedisAddr); rdb != nil {
		cooldown = notify.NewRedisCooldown(rdb)
		closeFn = func() { rdb.Close() }
	}
	return notify.NewReminder(queries, sender, cooldown, cfg.ReminderCooldown), closeFn, nil
}
