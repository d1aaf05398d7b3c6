package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/noema/noema/internal/config"
	"github.com/noema/noema/internal/drivers/storage"
	"github.com/noema/noema/internal/httpapi"
	"github.com/noema/noema/internal/idhash"
	"github.com/noema/noema/internal/logging"
	"github.com/noema/noema/internal/state"
)

// newTickCmd runs exactly one full I/O tick against a throwaway session,
// printing the resulting state tree as JSON — a local debugging aid with
// no server, mirroring the teacher's single-shot `echo think` style
// commands in _examples/o9nn-echo.go/cmd/echo.go.
func newTickCmd() *cobra.Command {
	var dbPath string
	var lang string

	cmd := &cobra.Command{
		Use:   "tick [text]",
		Short: "run one tick with the given input text and print the resulting state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logging.New(false)
			if err != nil {
				return err
			}
			defer log.Sync()

			if dbPath == "" {
				dbPath = ":memory:"
			}
			store, err := storage.Open(dbPath, log)
			if err != nil {
				return fmt.Errorf("open storage: %w", err)
			}
			defer store.Close()

			srv := httpapi.NewServerWithConfig(store, log, "", config.Default().Guardrails)

			threadID := "cli-" + idhash.SHA1OfString(args[0]+time.Now().String())[:8]
			event := state.Tree{
				"id": idhash.SHA1OfString(threadID + args[0]), "type": "message_commit",
				"text": args[0], "lang": lang, "author": "cli", "at_ms": time.Now().UnixMilli(),
			}
			next, r1, r2 := srv.RunTick(threadID, event)

			out, err := json.MarshalIndent(map[string]any{
				"ran_full":  r1.Ran,
				"ran_short": r2.Ran,
				"state":     next,
			}, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "", "sqlite path (defaults to an in-memory database)")
	cmd.Flags().StringVar(&lang, "lang", "", "override detected language")
	return cmd
}
