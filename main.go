package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/camtrap/camtrap-go/cmd"
	"github.com/camtrap/camtrap-go/internal/conf"
	"github.com/camtrap/camtrap-go/internal/logging"
)

func main() {
	settings, err := conf.Load(os.Getenv("CAMTRAP_CONFIG"))
	if err != nil {
		log.Fatalf("error loading configuration: %v", err)
	}

	logging.Init()
	if settings.Debug {
		logging.SetLevel(slog.LevelDebug)
	}

	if settings.Main.Log.Enabled {
		fileLogger, closeLogger, err := logging.NewFileLogger(&logging.FileConfig{
			Path:     settings.Main.Log.Path,
			Rotation: logging.RotationPolicy(settings.Main.Log.Rotation),
			MaxSize:  settings.Main.Log.MaxSize,
		}, settings.Main.Name, slog.LevelInfo)
		if err != nil {
			log.Fatalf("error opening log file: %v", err)
		}
		defer closeLogger() //nolint:errcheck // best-effort flush on exit
		slog.SetDefault(fileLogger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
