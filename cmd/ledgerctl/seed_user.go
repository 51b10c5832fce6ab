package main

import (
	"fmt"

	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/enum"
	"github.com/ledgerdesk/api/internal/logger"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
)

var seedUserCmd = &cobra.Command{
	Use:   "seed-user",
	Short: "Create a login for the ledger API",
	Example: `  ledgerctl seed-user --email admin@example.com --password secret --name "Admin" --role ADMIN`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		name, _ := cmd.Flags().GetString("name")
		role, _ := cmd.Flags().GetString("role")

		if email == "" || password == "" || name == "" {
			return fmt.Errorf("--email, --password and --name are required")
		}
		if !enum.IsUserRole(role) {
			return fmt.Errorf("invalid role %q", role)
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}

		ctx := cmd.Context()
		pool, err := openPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		user, err := database.New(pool).CreateUser(ctx, database.CreateUserParams{
			Email:          email,
			HashedPassword: string(hash),
			FullName:       name,
			Role:           role,
		})
		if err != nil {
			return fmt.Errorf("create user: %w", err)
		}

		log := logger.WithComponent("seed-user")
		log.Info().Str("user_id", user.ID.String()).Str("email", user.Email).Str("role", user.Role).Msg("user created")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedUserCmd)
	seedUserCmd.Flags().String("email", "", "login email")
	seedUserCmd.Flags().String("password", "", "login password")
	seedUserCmd.Flags().String("name", "", "full name")
	seedUserCmd.Flags().String("role", enum.UserRoleAdmin, "ADMIN, ACCOUNTANT or STAFF")
}
