package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/scriptbox-dev/scriptbox/sandbox"
)

var runCmd = &cobra.Command{
	Use:   "run [file]",
	Short: "Run a script (stateless execution)",
	Long: `Execute a JavaScript script in a sandboxed environment.

Scripts can be provided via:
  - File argument: scriptbox run script.js
  - Inline flag: scriptbox run -c 'return 1+1'
  - Stdin: echo 'return 1+1' | scriptbox run`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun,
}

func init() {
	addRunFlags(runCmd)
	rootCmd.AddCommand(runCmd)
}

func addRunFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("code", "c", "", "Script to execute")
	addSessionFlags(cmd)
}

func addSessionFlags(cmd *cobra.Command) {
	cmd.Flags().Duration("timeout", sandbox.DefaultTimeout, "Execution timeout")
	cmd.Flags().Bool("kv", false, "Enable key-value store")
	cmd.Flags().StringSlice("allow-host", nil, "Allow HTTP to host (repeatable)")
	cmd.Flags().String("memory", "256mb", "Memory limit: 16mb, 64mb, 256mb")
	cmd.Flags().Int("rate-limit", 0, "Host calls allowed per window (0 = default)")
	cmd.Flags().Duration("rate-window", time.Minute, "Rate limit window")
	cmd.Flags().Bool("progress", false, "Stream progress messages to stderr")

	cmd.Flags().Int("http-max-url", 8192, "Max HTTP URL length")
	cmd.Flags().Int64("http-max-body", 1024*1024, "Max HTTP response body size")
}

func buildRunOpts(cmd *cobra.Command) []sandbox.Option {
	timeout, _ := cmd.Flags().GetDuration("timeout")
	rateLimit, _ := cmd.Flags().GetInt("rate-limit")
	rateWindow, _ := cmd.Flags().GetDuration("rate-window")
	streamProgress, _ := cmd.Flags().GetBool("progress")

	opts := []sandbox.Option{sandbox.WithTimeout(timeout)}
	if rateLimit > 0 {
		opts = append(opts, sandbox.WithRateLimit(rateLimit, rateWindow))
	}
	if streamProgress {
		opts = append(opts, sandbox.WithOnProgress(func(text string) {
			fmt.Fprintf(os.Stderr, "[progress] %s\n", text)
		}))
	}
	return opts
}

func runRun(cmd *cobra.Command, args []string) {
	code, _ := cmd.Flags().GetString("code")

	var source string

	switch {
	case code != "":
		source = code
	case len(args) > 0:
		data, err := os.ReadFile(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
	default:
		// Check if stdin has data (not a terminal)
		stat, _ := os.Stdin.Stat()
		if (stat.Mode() & os.ModeCharDevice) != 0 {
			cmd.Help()
			return
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		source = string(data)
		if source == "" {
			cmd.Help()
			return
		}
	}

	host, err := newHost(cmd)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer host.Close()

	caps := sandbox.Capabilities{Table: buildTable(cmd)}
	result := host.Execute(context.Background(), source, caps, buildRunOpts(cmd)...)

	if !printResult(result) {
		os.Exit(1)
	}
}
