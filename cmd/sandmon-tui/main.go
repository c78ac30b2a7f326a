package main

import (
	"flag"
	"log"
	"time"

	"sandmon/internal/app"
	"sandmon/internal/tui"
)

func main() {
	configPath := flag.String("config", "", "Path to JSON or YAML config file")
	interval := flag.Duration("interval", 2*time.Second, "Refresh interval")
	flag.Parse()

	controller := app.New(app.Options{ConfigPath: *configPath})
	if err := tui.Run(controller, *interval); err != nil {
		log.Fatalf("tui exited with error: %v", err)
	}
}
