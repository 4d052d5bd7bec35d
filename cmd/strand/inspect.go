package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strand/internal/cli"
)

var historyCmd = &cobra.Command{
	Use:   "history <thread-id>",
	Short: "Show the checkpoint timeline of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		diff, _ := cmd.Flags().GetBool("diff")
		raw, _ := cmd.Flags().GetBool("raw")
		return cli.History(cmd.Context(), cli.HistoryOptions{
			ConfigPath: configPath(cmd),
			ThreadID:   args[0],
			Diff:       diff,
			Raw:        raw,
		}, os.Stdout)
	},
}

var graphCmd = &cobra.Command{
	Use:   "graph <graph>",
	Short: "Export a demo graph as a Mermaid diagram",
	Long:  `Outputs a Mermaid flowchart (graph TD) of the compiled graph, optionally highlighting a thread's progress.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		thread, _ := cmd.Flags().GetString("thread")
		return cli.Graph(cmd.Context(), cli.GraphOptions{
			ConfigPath: configPath(cmd),
			Name:       args[0],
			ThreadID:   thread,
		}, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().Bool("diff", false, "Include the state changes of every checkpoint")
	historyCmd.Flags().Bool("raw", false, "Print markdown without terminal rendering")

	rootCmd.AddCommand(graphCmd)
	graphCmd.Flags().StringP("thread", "t", "", "Highlight the nodes this thread has run")
}
