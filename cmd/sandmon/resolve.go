package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var resolveTimeout int

func init() {
	rootCmd.AddCommand(cmdResolve)
	cmdResolve.Flags().IntVarP(&resolveTimeout, "timeout", "t", 2, "Timeout in seconds for contacting the daemon")
}

var cmdResolve = &cobra.Command{
	Use:   "resolve <name>",
	Short: "Print the root pid of the sandbox started with --name=<name>",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pid, err := controller().Resolve(cmd.Context(), args[0], time.Duration(resolveTimeout)*time.Second)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), pid)
		return nil
	},
}
