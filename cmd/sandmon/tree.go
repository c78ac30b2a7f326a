package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var (
	treeName    string
	treeTimeout int
)

func init() {
	rootCmd.AddCommand(cmdTree)
	cmdTree.Flags().StringVarP(&treeName, "name", "n", "", "Select the sandbox by its --name instead of a pid")
	cmdTree.Flags().IntVarP(&treeTimeout, "timeout", "t", 2, "Timeout in seconds for contacting the daemon")
}

var cmdTree = &cobra.Command{
	Use:   "tree [pid]",
	Short: "Show the process tree of one sandbox",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := controller()
		timeout := time.Duration(treeTimeout) * time.Second

		var pid int
		switch {
		case len(args) == 1 && treeName != "":
			return fmt.Errorf("pass either a pid or --name, not both")
		case len(args) == 1:
			p, err := strconv.Atoi(args[0])
			if err != nil || p <= 0 {
				return fmt.Errorf("invalid pid %q", args[0])
			}
			pid = p
		case treeName != "":
			p, err := ctrl.Resolve(cmd.Context(), treeName, timeout)
			if err != nil {
				return err
			}
			pid = p
		default:
			return fmt.Errorf("pass a sandbox pid or --name")
		}

		members, err := ctrl.Tree(cmd.Context(), pid, timeout)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, m := range members {
			depth := m.Level - 1
			if depth < 0 {
				depth = 0
			}
			fmt.Fprintf(out, "%s%d %s\n", strings.Repeat("  ", depth), m.PID, dash(m.Cmd))
		}
		return nil
	},
}
