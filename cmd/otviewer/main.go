// otviewer streams encrypted OwnTracks location reports out of a
// remote store, decrypts them with a vault-held passphrase, and
// reduces them to per-device trajectories.
package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var debugFlag bool

func main() {
	root := &cobra.Command{
		Use:   "otviewer",
		Short: "Encrypted OwnTracks trajectory viewer",
		Long: `otviewer connects to a remote location-report store, decrypts each
report with a passphrase held in a local encrypted credential vault,
and reconstructs a live, distance-filtered path per device.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if debugFlag {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}
	root.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")

	root.AddCommand(
		newCredentialsCmd(),
		newStatusCmd(),
		newDevicesCmd(),
		newWatchCmd(),
		newHistoryCmd(),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
