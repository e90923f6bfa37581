package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gander-tools/owntracks-dataviewer/internal/gateway"
	"github.com/gander-tools/owntracks-dataviewer/internal/pipeline"
	"github.com/gander-tools/owntracks-dataviewer/internal/track"
)

func newHistoryCmd() *cobra.Command {
	var (
		deviceFlag string
		fromFlag   string
		toFlag     string
		sinceFlag  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Decrypt and print stored reports, oldest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			env, err := openEnvironment()
			if err != nil {
				return err
			}
			defer env.close()

			var from, to *time.Time
			if fromFlag != "" {
				t, err := parseTimeFlag(fromFlag)
				if err != nil {
					return err
				}
				from = &t
			}
			if toFlag != "" {
				t, err := parseEndTimeFlag(toFlag)
				if err != nil {
					return err
				}
				to = &t
			}

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
			var stmt string
			var vars map[string]any
			if sinceFlag > 0 {
				if deviceFlag != "" || from != nil || to != nil {
					return fmt.Errorf("--since cannot be combined with --device/--from/--to")
				}
				stmt, vars = queries.RecentSince(time.Now().Add(-sinceFlag))
			} else {
				stmt, vars = queries.Filtered(deviceFlag, from, to)
			}
			rows, err := conn.Query(cmd.Context(), stmt, vars)
			if err != nil {
				return err
			}

			records := make([]gateway.Record, 0, len(rows))
			for _, row := range rows {
				records = append(records, queries.Fields.RecordFromRow(row))
			}

			pipe := pipeline.New(env.cfg.BatchSize)
			pipe.Refresh(cmd.Context(), records, creds.DecryptPassword)

			// Query order is newest first; printing wants chronological.
			for i := len(records) - 1; i >= 0; i-- {
				printRecord(records[i], pipe)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&deviceFlag, "device", "", "filter by device identifier")
	cmd.Flags().StringVar(&fromFlag, "from", "", "inclusive range start (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().StringVar(&toFlag, "to", "", "inclusive range end (YYYY-MM-DD or RFC 3339)")
	cmd.Flags().DurationVar(&sinceFlag, "since", 0, "only reports newer than this duration ago (e.g. 24h)")
	return cmd
}

func printRecord(rec gateway.Record, pipe *pipeline.Pipeline) {
	outcome, ok := pipe.Outcome(rec.ID)
	if !ok {
		return
	}
	ts := rec.Timestamp.Format(time.RFC3339)
	if !outcome.Decrypted() {
		fmt.Printf("%s  %s  %s  <undecryptable: %s>\n", ts, rec.Device, rec.ID, outcome.Err)
		return
	}
	lat, _ := outcome.Location["lat"].(float64)
	lon, _ := outcome.Location["lon"].(float64)
	fmt.Printf("%s  %s  %.6f,%.6f\n", ts, rec.Device, lat, lon)
}
