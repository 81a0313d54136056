// Command instafeedctl runs maintenance tasks against the instafeed database.
package main

import (
	"fmt"
	"os"

	"instafeed/internal/config"
	"instafeed/internal/database"
	"instafeed/internal/middleware"

	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

var rootCmd = &cobra.Command{
	Use:   "instafeedctl",
	Short: "instafeedctl - database maintenance for instafeed",
	Long: `instafeedctl migrates the schema, loads seed scenarios and repairs
denormalized counters. Connection settings come from the same environment
variables and config files as the server.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(reconcileCmd)
}

// connect loads configuration and opens the database.
func connect() (*config.Config, *gorm.DB, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	middleware.InitLogger(cfg.Env, cfg.LogFile)

	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
