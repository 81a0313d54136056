package main

import (
	"context"
	"fmt"
	"io"

	"instafeed/internal/seed"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var (
	seedScenario string
	seedClean    bool
	seedForce    bool
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load a seed scenario",
	Long: `Load a named scenario (embedded, e.g. "demo") or a path to a scenario
YAML file. Refuses to run against production unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, db, err := connect()
		if err != nil {
			return err
		}
		defer closeDB(db)

		if cfg.IsProduction() && !seedForce {
			return fmt.Errorf("refusing to seed a production database without --force")
		}
		return runSeed(cmd.Context(), db, seedScenario, seedClean, cmd.OutOrStdout())
	},
}

func init() {
	seedCmd.Flags().StringVar(&seedScenario, "scenario", "demo", "Scenario name or YAML file path")
	seedCmd.Flags().BoolVar(&seedClean, "clean", false, "Delete all data before seeding")
	seedCmd.Flags().BoolVar(&seedForce, "force", false, "Allow seeding when APP_ENV is production")
}

func runSeed(ctx context.Context, db *gorm.DB, scenario string, clean bool, out io.Writer) error {
	sc, err := seed.LoadScenario(scenario)
	if err != nil {
		return err
	}

	s := seed.NewSeeder(db)
	if clean {
		if err := s.ClearAll(ctx); err != nil {
			return err
		}
	}

	report, err := s.Run(ctx, sc)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "seeded %s\n", report)
	return nil
}
