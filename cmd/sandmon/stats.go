package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"sandmon/internal/app"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	statsName    string
	statsJSON    bool
	statsTimeout int
)

func init() {
	rootCmd.AddCommand(cmdStats)

	cmdStats.Flags().StringVarP(&statsName, "name", "n", "", "Select the sandbox by its --name instead of a pid")
	cmdStats.Flags().BoolVar(&statsJSON, "json", false, "Print JSON")
	cmdStats.Flags().IntVarP(&statsTimeout, "timeout", "t", 2, "Timeout in seconds for contacting the daemon")
}

var cmdStats = &cobra.Command{
	Use:   "stats [pid]",
	Short: "Show the usage of one sandbox",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		params := app.StatsParams{Name: statsName, Timeout: time.Duration(statsTimeout) * time.Second}
		if len(args) == 1 {
			pid, err := strconv.Atoi(args[0])
			if err != nil || pid <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			params.PID = pid
		}
		if params.PID == 0 && params.Name == "" {
			return errors.New("pass a sandbox pid or --name")
		}

		sb, err := controller().Stats(cmd.Context(), params)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if statsJSON {
			return writeJSON(out, sb)
		}
		fmt.Fprintf(out, "pid:      %d\n", sb.PID)
		fmt.Fprintf(out, "name:     %s\n", dash(sb.Name))
		fmt.Fprintf(out, "user:     %s (%d)\n", dash(sb.User), sb.UID)
		fmt.Fprintf(out, "command:  %s\n", sb.Cmd)
		if !sb.Started.IsZero() {
			fmt.Fprintf(out, "started:  %s (%s)\n", sb.Started.Format(time.RFC3339), humanize.Time(sb.Started))
		}
		fmt.Fprintf(out, "members:  %d\n", sb.Members)
		if sb.Deepest > 0 {
			fmt.Fprintf(out, "program:  %d\n", sb.Deepest)
		}
		fmt.Fprintf(out, "cpu:      %.1f%% (user %d, system %d ticks)\n", sb.CPUPercent, sb.CPUUser, sb.CPUSystem)
		fmt.Fprintf(out, "memory:   rss %s, shared %s\n", humanize.IBytes(sb.Resident), humanize.IBytes(sb.Shared))
		fmt.Fprintf(out, "network:  rx %s (%s/s), tx %s (%s/s)\n",
			humanize.Bytes(sb.RxBytes), humanize.Bytes(uint64(sb.RxRate)),
			humanize.Bytes(sb.TxBytes), humanize.Bytes(uint64(sb.TxRate)))
		return nil
	},
}
