package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jarvis-homelab/jarvis/internal/config"
	"github.com/jarvis-homelab/jarvis/internal/storage"
)

func buildMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			store, err := storage.OpenSQLiteStore(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			defer store.Close()
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied at %s\n", cfg.DBPath)
			return nil
		},
	}
}
