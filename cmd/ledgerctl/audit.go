package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/ledgerdesk/api/internal/database"
	"github.com/ledgerdesk/api/internal/logger"
	"github.com/ledgerdesk/api/internal/service"
	"github.com/spf13/cobra"
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Compare stored invoice balances with their allocations",
	Long: `audit lists every active invoice whose paid amount differs from the sum
of its receipt allocations. With --fix each drifted invoice is rewritten
from the allocation sum; --as names the user recorded as the editor.`,
	Example: `  ledgerctl audit
  ledgerctl audit --fix --as admin@example.com`,
	RunE: runAudit,
}

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.Flags().Bool("fix", false, "repair drifted invoices")
	auditCmd.Flags().String("as", "", "email of the user recorded as updated_by (required with --fix)")
}

func runAudit(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("audit")
	fix, _ := cmd.Flags().GetBool("fix")
	as, _ := cmd.Flags().GetString("as")

	ctx := cmd.Context()
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	var fixedBy uuid.UUID
	if fix {
		if as == "" {
			return fmt.Errorf("--as is required with --fix")
		}
		user, err := database.New(pool).GetUserByEmail(ctx, as)
		if err != nil {
			return fmt.Errorf("get user %s: %w", as, err)
		}
		fixedBy = user.ID
	}

	svc := service.NewAuditService(pool, func(db database.DBTX) service.AuditStore {
		return database.New(db)
	})
	drifts, err := svc.Run(ctx, fix, fixedBy)
	if err != nil {
		return err
	}

	out := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(out, "INVOICE\tNET\tSTORED PAID\tALLOCATED\tFIXED\tREASON")
	for _, d := range drifts {
		fmt.Fprintf(out, "%s\t%s\t%s\t%s\t%t\t%s\n",
			d.InvoiceNumber, d.Net.StringFixed(2), d.StoredPaid.StringFixed(2), d.Allocated.StringFixed(2), d.Fixed, d.Reason)
	}
	if err := out.Flush(); err != nil {
		return err
	}

	log.Info().Int("drifted", len(drifts)).Bool("fix", fix).Msg("audit complete")
	return nil
}
