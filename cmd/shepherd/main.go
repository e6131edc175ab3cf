// Command shepherd is the bulk-copy orchestrator's single binary: the
// user-facing "submit"/"status" modes and the internal "__prepare"/
// "__transfer" modes the executor re-execs this same binary under.
// Grounded on the cobra command-tree shape in
// theRebelliousNerd-codenerd's cmd/nerd/main.go (persistent flags,
// RunE handlers, subcommand registration from init()) and on
// original_source/cli/dummy.py for the mode delegation and log-header
// behaviour those handlers implement.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const client = "shepherd"

var rootCmd = &cobra.Command{
	Use:   "shepherd",
	Short: "Filesystem-agnostic bulk-copy orchestrator",
	Long: `shepherd moves large, flat collections of files between storage
systems (Lustre, iRODS) under cluster-scheduled, crash-resumable
workers, coordinated entirely through a shared relational database.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(submitCmd, statusCmd, prepareCmd, transferCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
