package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gander-tools/owntracks-dataviewer/internal/track"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List tracked device identifiers",
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
			defer conn.Close()

			queries := env.queries(creds)
			stmt, vars := queries.DistinctDevices()
			rows, err := conn.Query(cmd.Context(), stmt, vars)
			if err != nil {
				return err
			}

			devices := queries.Devices(rows)
			if len(devices) == 0 {
				fmt.Println("No devices found.")
				return nil
			}
			for _, device := range devices {
				fmt.Println(device)
			}
			return nil
		},
	}
}
