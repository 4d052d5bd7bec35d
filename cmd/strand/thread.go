package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/strand/internal/cli"
)

var threadCmd = &cobra.Command{
	Use:   "thread",
	Short: "Manage persisted threads",
	Long:  `List, inspect, update and remove the threads stored in the configured checkpoint store.`,
}

var threadLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List all threads",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.ListThreads(cmd.Context(), configPath(cmd), os.Stdout)
	},
}

var threadInspectCmd = &cobra.Command{
	Use:   "inspect <thread-id>",
	Short: "Print the latest checkpoint of a thread",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.InspectThread(cmd.Context(), configPath(cmd), args[0], os.Stdout)
	},
}

var threadUpdateCmd = &cobra.Command{
	Use:   "update <graph> <thread-id>",
	Short: "Apply an external state update to a thread",
	Example: `  strand thread update chain jokes --set '{"improved_joke": "better"}' --as-node improve_joke`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		values, _ := cmd.Flags().GetString("set")
		asNode, _ := cmd.Flags().GetString("as-node")
		return cli.UpdateThread(cmd.Context(), cli.UpdateOptions{
			ConfigPath: configPath(cmd),
			Graph:      args[0],
			ThreadID:   args[1],
			Values:     values,
			AsNode:     asNode,
		}, os.Stdout)
	},
}

var threadRmCmd = &cobra.Command{
	Use:   "rm <thread-id>...",
	Short: "Remove one or more threads",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RemoveThreads(cmd.Context(), configPath(cmd), args, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(threadCmd)
	threadCmd.AddCommand(threadLsCmd, threadInspectCmd, threadUpdateCmd, threadRmCmd)

	threadUpdateCmd.Flags().String("set", "", "JSON object of field values")
	threadUpdateCmd.Flags().String("as-node", "", "Attribute the update to this node")
	_ = threadUpdateCmd.MarkFlagRequired("set")
}
