package main

import (
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/strand/internal/cli"
)

var runCmd = &cobra.Command{
	Use:   "run <graph>",
	Short: "Run a demo graph on a thread",
	Long: `Runs one of the built-in demo graphs (` + strings.Join(cli.DemoNames(), ", ") + `) and streams
its events. Without --input the thread resumes from its pending frontier.`,
	Example: `  strand run chain --thread jokes --input cats
  strand run orchestrate --input '{"topic": "tides"}' --mode tokens --mode trace
  strand run chain --thread jokes            # resume after an interrupt`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := cli.RunOptions{ConfigPath: configPath(cmd), Graph: args[0]}
		opts.ThreadID, _ = cmd.Flags().GetString("thread")
		opts.Input, _ = cmd.Flags().GetString("input")
		opts.Modes, _ = cmd.Flags().GetStringSlice("mode")
		opts.JSON, _ = cmd.Flags().GetBool("json")
		opts.Headless, _ = cmd.Flags().GetBool("headless")
		opts.Debug, _ = cmd.Flags().GetBool("debug")
		opts.Fresh, _ = cmd.Flags().GetBool("fresh")
		opts.MetricsAddr, _ = cmd.Flags().GetString("metrics-addr")
		opts.TokenDelay, _ = cmd.Flags().GetDuration("token-delay")
		opts.InterruptBefore, _ = cmd.Flags().GetStringSlice("interrupt-before")
		opts.InterruptAfter, _ = cmd.Flags().GetStringSlice("interrupt-after")
		opts.MaxResumes, _ = cmd.Flags().GetInt("max-resumes")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.Execute(ctx, opts, os.Stdin, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("thread", "t", "", "Thread id (default: a new random id)")
	runCmd.Flags().StringP("input", "i", "", "Input text or JSON object")
	runCmd.Flags().StringSliceP("mode", "m", nil, "Stream modes: deltas, snapshots, tokens, progress, trace (default deltas,tokens)")
	runCmd.Flags().Bool("json", false, "Run in JSON mode (NDJSON output)")
	runCmd.Flags().Bool("headless", false, "Run in headless mode (no prompts, plain output)")
	runCmd.Flags().Bool("debug", false, "Enable debug logs on stderr")
	runCmd.Flags().Bool("fresh", false, "Delete the thread before running")
	runCmd.Flags().String("metrics-addr", "", "Serve /metrics on this address while running")
	runCmd.Flags().Duration("token-delay", 0, "Delay between streamed tokens of the demo model")
	runCmd.Flags().StringSlice("interrupt-before", nil, "Suspend before these nodes")
	runCmd.Flags().StringSlice("interrupt-after", nil, "Suspend after these nodes")
	runCmd.Flags().Int("max-resumes", 0, "Headless: automatic resumes allowed (0 unlimited, negative none)")
}
