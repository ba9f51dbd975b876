package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/scriptbox-dev/scriptbox/dispatch"
	"github.com/scriptbox-dev/scriptbox/engine/quickjs"
	"github.com/scriptbox-dev/scriptbox/hostops"
	"github.com/scriptbox-dev/scriptbox/sandbox"
)

var rootCmd = &cobra.Command{
	Use:   "scriptbox [file]",
	Short: "Sandboxed JavaScript execution with host-mediated capabilities",
	Long: `scriptbox - Run untrusted JavaScript safely inside a WASM sandbox.

Scripts run in an isolated QuickJS guest with no ambient access to the
filesystem, network, or clock. Everything a script can reach goes through
explicitly registered host operations, rate limited per invocation.`,
	Args: cobra.MaximumNArgs(1),
	Run:  runRun, // Default to run command behavior
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().Bool("no-cache", false, "Disable compilation cache")
	addRunFlags(rootCmd)
}

func parseMemoryLimit(s string) uint32 {
	switch strings.ToLower(s) {
	case "16mb":
		return sandbox.MemoryLimit16MB
	case "64mb":
		return sandbox.MemoryLimit64MB
	case "256mb":
		return sandbox.MemoryLimit256MB
	default:
		return 0 // use default
	}
}

// buildTable assembles the host operations enabled by flags. time.now is
// always available; kv and http are opt-in.
func buildTable(cmd *cobra.Command) *dispatch.Table {
	enableKV, _ := cmd.Flags().GetBool("kv")
	allowedHosts, _ := cmd.Flags().GetStringSlice("allow-host")
	httpMaxURL, _ := cmd.Flags().GetInt("http-max-url")
	httpMaxBody, _ := cmd.Flags().GetInt64("http-max-body")

	table := dispatch.NewTable()
	hostops.RegisterTime(table)

	if enableKV {
		hostops.NewKVStore().Register(table)
	}
	if len(allowedHosts) > 0 {
		hostops.NewHTTP(hostops.HTTPConfig{
			AllowedHosts: allowedHosts,
			MaxURLLength: httpMaxURL,
			MaxBodySize:  httpMaxBody,
		}).Register(table)
	}

	return table
}

func newHost(cmd *cobra.Command, hostOpts ...sandbox.HostOption) (*sandbox.Host, error) {
	noCache, _ := cmd.Root().PersistentFlags().GetBool("no-cache")
	memoryLimit, _ := cmd.Flags().GetString("memory")

	opts := hostOpts
	if !noCache {
		opts = append(opts, sandbox.WithDiskCache())
	}
	if pages := parseMemoryLimit(memoryLimit); pages > 0 {
		opts = append(opts, sandbox.WithMemoryLimit(pages))
	}

	return sandbox.New(quickjs.New(), opts...)
}

// printResult writes script output and the completion value to stdout and
// any error to stderr. Returns true when the invocation succeeded.
func printResult(res sandbox.Result) bool {
	fmt.Print(res.Output)

	if res.OK {
		if res.Value != nil {
			data, err := json.Marshal(res.Value)
			if err == nil {
				fmt.Println(string(data))
			}
		}
		return true
	}

	if res.Error != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", res.Error.Message)
		if res.Error.Fix != "" {
			fmt.Fprintf(os.Stderr, "Fix: %s\n", res.Error.Fix)
		}
	}
	return false
}
