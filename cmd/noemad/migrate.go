package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/logging"
)

// newMigrateCmd ensures the SQLite schema (kv, counters, links, FTS5
// index, facts) exists at the target path — storage.Open already runs
// ensureSchema on open, so migrate is a thin, explicit entry point for
// operators who want schema creation separate from serving traffic.
func newMigrateCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "create or update the storage schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(false)
			if err != nil {
				return err
			}
			defer log.Sync()

			store, err := storage.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			fmt.Printf("schema ready at %s\n", dbPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "noema.db", "sqlite path")
	return cmd
}
