// banchod is the bancho server daemon: the polled HTTP endpoint, the idle
// reaper, and (optionally) the gRPC surface of the RPC shim.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version is the release version, set at build time via ldflags.
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "banchod",
	Short: "osu!-compatible bancho session and presence server",
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(configCheckCmd())
	rootCmd.AddCommand(versionCmd())
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print banchod build information",
		Args:  cobra.NoArgs,
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("banchod %s\n", Version)
		},
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
