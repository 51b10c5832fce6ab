package main

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ledgerdesk/api/internal/config"
	"github.com/ledgerdesk/api/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operator tooling for the invoice ledger",
	Long: `ledgerctl runs database migrations, bootstraps users, issues tokens
and audits invoice balances against their receipt allocations.

Configuration is read from the same environment variables as the server.`,
	SilenceUsage: true,
}

func Execute(c *config.Config) error {
	cfg = c
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log := logger.WithComponent("ledgerctl")
		log.Error().Err(err).Msg("command failed")
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

func openPool(ctx context.Context) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
