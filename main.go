package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/subsona/subsona/cmd"
	"github.com/subsona/subsona/internal/conf"
	"github.com/subsona/subsona/internal/logging"
)

func main() {
	logging.Init()

	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.SetLevel(level)

	if settings.Main.Log.Enabled {
		_, closeLog, err := logging.NewFileLogger(settings.Main.Log.Path, "subsona", level, logging.FileConfig{
			MaxSizeMB:  settings.Main.Log.MaxSize,
			MaxBackups: settings.Main.Log.MaxBackups,
			MaxAgeDays: settings.Main.Log.MaxAge,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error setting up file logging: %v\n", err)
		} else {
			defer closeLog()
		}
	}

	if err := cmd.RootCommand(settings).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
