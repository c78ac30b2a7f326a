package main

import (
	"context"
	"log"
	"time"

	"sandmon/internal/app"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sandmon [command]",
	Short: "sandmon: sandbox resource monitor",
	Long:  `sandmon watches the process trees started by a sandbox manager and reports their CPU, memory and network usage.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to JSON or YAML config file")
}

// controllerAPI is the part of app.App the commands use.
type controllerAPI interface {
	Ping(ctx context.Context, timeout time.Duration) (string, error)
	List(ctx context.Context, params app.ListParams) ([]app.Sandbox, error)
	Stats(ctx context.Context, params app.StatsParams) (app.Sandbox, error)
	Resolve(ctx context.Context, name string, timeout time.Duration) (int, error)
	Tree(ctx context.Context, pid int, timeout time.Duration) ([]app.Member, error)
	Refresh(ctx context.Context, timeout time.Duration) error
	Status() (app.DaemonStatus, error)
	StopDaemon(force bool) error
	StartDaemon() (*app.DaemonHandle, error)
}

var controllerFactory = func() controllerAPI {
	return app.New(app.Options{ConfigPath: configPath})
}

func controller() controllerAPI {
	return controllerFactory()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
