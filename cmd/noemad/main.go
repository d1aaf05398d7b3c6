// Command noemad runs the cognitive-loop runtime: an HTTP/WebSocket
// server (serve), a one-shot tick runner for local debugging (tick), a
// storage schema migrator (migrate), and a stored-fact inspector (inspect),
// grounded in the teacher's cobra command tree at
// _examples/o9nn-echo.go/cmd/echo.go.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "noemad",
		Short: "noema cognitive-loop runtime",
	}
	root.AddCommand(newServeCmd())
	root.AddCommand(newTickCmd())
	root.AddCommand(newMigrateCmd())
	root.AddCommand(newInspectCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
