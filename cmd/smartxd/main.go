// SmartX RFID reader middleware.
//
// smartxd supervises a fleet of RFID readers (UR4, X714, R700, ICARD, and
// generic serial/TCP devices), deduplicates their tag streams, and fans
// events out to HTTP, MQTT, XTrack, Redis, and database sinks. A REST
// control surface manages devices and exposes the tag inventory.
//
// Usage:
//
//	smartxd serve [--config dir] [--port n]    Run the middleware
//	smartxd devices [--addr url]               List devices on a running daemon
//	smartxd version                            Print version info
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/smartx-rfid/smartx/pkg/util"
	"github.com/smartx-rfid/smartx/pkg/version"
)

var (
	configDir string
	port      int
	verbose   bool
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:               "smartxd",
	Short:             "RFID reader middleware",
	SilenceUsage:      true,
	SilenceErrors:     true,
	CompletionOptions: cobra.CompletionOptions{HiddenDefaultCmd: true},
	Long: `SmartX connects RFID readers to your systems.

It keeps every configured reader connected, deduplicates tag detections
into a single inventory, and forwards events to the configured sinks.

  smartxd serve --config ./config`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if verbose {
			return util.SetLogLevel("debug")
		}
		return util.SetLogLevel("info")
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config", "config", "configuration directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(
		newServeCmd(),
		newDevicesCmd(),
		newVersionCmd(),
	)
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("smartxd", version.Info())
		},
	}
}
