package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"
)

func init() {
	rootCmd.AddCommand(cmdDaemon)
	cmdDaemon.AddCommand(cmdDaemonStop)
	cmdDaemon.Flags().BoolVarP(&daemonForceRestart, "force", "f", false, "Restart the daemon if it is already running")
	cmdDaemonStop.Flags().BoolVarP(&daemonForceStop, "force", "f", false, "Send SIGKILL if the daemon ignores SIGTERM")
}

var (
	daemonForceRestart bool
	daemonForceStop    bool
)

var cmdDaemon = &cobra.Command{
	Use:   "daemon",
	Short: "Start the monitoring daemon",
	Long:  `The daemon rescans the process table on a fixed interval and serves sandbox usage over a UNIX socket. If it is already running, nothing happens unless --force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := controller()
		out := cmd.OutOrStdout()

		st, err := ctrl.Status()
		if st.Running {
			if !daemonForceRestart {
				switch {
				case err != nil:
					fmt.Fprintf(out, "Error checking if daemon is running: %v\n", err)
				case st.PID != 0:
					fmt.Fprintf(out, "Daemon is already running (pid %d). Stop it manually or re-run with --force.\n", st.PID)
				default:
					fmt.Fprintln(out, "Daemon is already running. Stop it manually or re-run with --force.")
				}
				return nil
			}
			fmt.Fprintln(out, "Stopping existing daemon process...")
			if err := ctrl.StopDaemon(true); err != nil {
				return err
			}
		}

		handle, err := ctrl.StartDaemon()
		if err != nil {
			return err
		}
		fmt.Fprintln(out, "Started daemon process")
		runSpin := spinner.New(spinner.CharSets[21], 120*time.Millisecond, spinner.WithWriter(os.Stdout))
		runSpin.Suffix = " Monitoring sandboxes..."
		runSpin.Start()

		sigc := make(chan os.Signal, 2)
		signal.Notify(sigc, unix.SIGINT, unix.SIGTERM)
		<-sigc
		runSpin.Stop()
		return handle.Close()
	},
}

var cmdDaemonStop = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := controller().StopDaemon(daemonForceStop); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Daemon stopped")
		return nil
	},
}
