package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is a fixed constant; this module has no release pipeline of its
// own to inject a build-time value.
const version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "liveclass",
	Short: "Live classroom streaming origin",
	Long:  "RTMP ingest, adaptive HLS fan-out, and a realtime classroom room, in one process.",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the RTMP ingest, HLS origin, and realtime room servers",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(version)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
