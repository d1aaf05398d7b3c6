package main

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/logging"
)

// newInspectCmd looks up one stored fact of a session by thread id and
// key and prints it as a one-row table, grounded in
// the teacher's tablewriter usage for human-readable CLI output
// (_examples/o9nn-echo.go uses the same library for its `ps`/`list`
// commands).
func newInspectCmd() *cobra.Command {
	var dbPath string

	cmd := &cobra.Command{
		Use:   "inspect [thread_id] [key]",
		Short: "look up a stored fact for a thread",
		Args:  cobra.ExactArgs(2),
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

			fact, ok := store.GetFact(args[0], args[1])
			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"thread_id", "key", "value", "created_at"})
			if !ok {
				table.Append([]string{args[0], args[1], "<not found>", ""})
			} else {
				table.Append([]string{
					args[0], fact.GetString("k_raw"), fact.GetString("v_raw"),
					fmt.Sprintf("%d", fact.GetInt64("created_at")),
				})
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "noema.db", "sqlite path")
	return cmd
}
