package main

import (
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"sandmon/internal/daemon"

	"golang.org/x/sys/unix"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config file")
	force := flag.Bool("force", false, "Stop an existing daemon before starting")
	flag.Parse()

	if daemon.IsRunning() {
		if !*force {
			pid, err := daemon.RunningPID()
			if err != nil {
				fatal("daemon appears running but pid check failed", err)
			}
			slog.Info("daemon is already running, use --force to restart", "pid", pid)
			return
		}
		slog.Info("stopping existing daemon")
		if err := daemon.StopRunningDaemon(true); err != nil {
			fatal("failed to stop running daemon", err)
		}
	}

	srv, err := daemon.StartDaemon(*configPath)
	if err != nil {
		fatal("failed to start daemon", err)
	}

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, unix.SIGINT, unix.SIGTERM)
	<-sigc
	slog.Info("stopping daemon")
	if err := srv.Close(); err != nil {
		fatal("error shutting down daemon", err)
	}
	slog.Info("daemon stopped")
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
