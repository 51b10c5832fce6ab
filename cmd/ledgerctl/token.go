package main

import (
	"fmt"

	"github.com/ledgerdesk/api/internal/auth"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:   "token <email>",
	Short: "Print an access token for an existing user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		user, err := database.New(pool).GetUserByEmail(ctx, args[0])
		if err != nil {
			return fmt.Errorf("get user %s: %w", args[0], err)
		}
		token, err := auth.GenerateToken(cfg.JWTSecret, user.ID, user.Role)
		if err != nil {
			return fmt.Errorf("generate token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
