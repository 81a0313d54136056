package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"instafeed/internal/live"
	"instafeed/internal/repository"
	"instafeed/internal/service"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var reconcileJSON bool

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Recompute follower, following and like counters",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, err := connect()
		if err != nil {
			return err
		}
		defer closeDB(db)
		return runReconcile(cmd.Context(), db, reconcileJSON, cmd.OutOrStdout())
	},
}

func init() {
	reconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "Print the report as JSON")
}

func runReconcile(ctx context.Context, db *gorm.DB, asJSON bool, out io.Writer) error {
	// No running server listens to this process, so events stay local.
	svc := service.NewRelationshipService(
		repository.NewFollowRepository(db),
		repository.NewEngagementRepository(db),
		live.NewBroker(nil),
	)

	report, err := svc.ReconcileCounters(ctx)
	if err != nil {
		return err
	}
	if asJSON {
		return json.NewEncoder(out).Encode(report)
	}
	fmt.Fprintf(out, "repaired %d accounts, %d posts\n", report.Accounts, report.Posts)
	return nil
}
