package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
	"github.com/gander-tools/owntracks-dataviewer/internal/track"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Stream live filtered trajectories until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			creds, err := env.unlock()
			if err != nil {
				return err
			}
			conn, err := track.Connect(cmd.Context(), creds.URL, creds)
			if err != nil {
				return err
			}

			pipe := pipeline.New(env.cfg.BatchSize)
			rec := track.NewReconciler(pipe, track.DefaultThresholdMeters)
			rec.OnChange(func(device string) {
				printPath(device, rec.FilteredPath(device))
			})

			tracker := track.NewTracker(conn, env.queries(creds), pipe, rec, creds.DecryptPassword, nil)
			if err := tracker.Start(cmd.Context()); err != nil {
				conn.Close()
				return err
			}

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return tracker.Stop(ctx)
		},
	}
}

func printPath(device string, path []track.Point) {
	fmt.Printf("%s (%d points)\n", device, len(path))
	for _, p := range path {
		fmt.Printf("  %s  %.6f,%.6f\n", p.Timestamp.Format(time.RFC3339), p.Lat, p.Lon)
	}
}
