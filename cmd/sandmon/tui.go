package main

import (
	"fmt"
	"time"

	"sandmon/internal/tui"

	"github.com/spf13/cobra"
)

var tuiInterval time.Duration

func init() {
	rootCmd.AddCommand(cmdTUI)
	cmdTUI.Flags().DurationVarP(&tuiInterval, "interval", "i", 2*time.Second, "Refresh interval")
}

var cmdTUI = &cobra.Command{
	Use:   "tui",
	Short: "Launch the interactive terminal UI",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := tui.Run(controller(), tuiInterval); err != nil {
			return fmt.Errorf("tui exited with error: %w", err)
		}
		return nil
	},
}
