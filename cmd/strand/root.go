package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strand/internal/cli"
)

var rootCmd = &cobra.Command{
	Use:   "strand",
	Short: "Strand runs superstep graphs with streaming and checkpoints",
	Long: `Strand compiles graphs of named nodes against a state schema and executes them
in supersteps, streaming progress and checkpointing every step by thread id.

The CLI ships demo graphs for the common workflow patterns and tools to inspect
the threads they leave in the configured checkpoint store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file (default "+cli.DefaultConfigFile+" if present)")
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	return path
}
