package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var refreshTimeout int

func init() {
	rootCmd.AddCommand(cmdRefresh)
	cmdRefresh.Flags().IntVarP(&refreshTimeout, "timeout", "t", 5, "Timeout in seconds for contacting the daemon")
}

var cmdRefresh = &cobra.Command{
	Use:   "refresh",
	Short: "Make the daemon rescan processes now",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := controller().Refresh(cmd.Context(), time.Duration(refreshTimeout)*time.Second); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "refreshed")
		return nil
	},
}
