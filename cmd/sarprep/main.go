// sarprep entry point
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/robert-malhotra/sarprep/internal/config"
	"github.com/robert-malhotra/sarprep/pkg/server"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newApp().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    "sarprep",
		Usage:   "Terrain-correct Sentinel-1 GRD scenes over oil terminals",
		Version: server.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Override the log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Override the log format (text or json)",
			},
			&cli.StringFlag{
				Name:  "work-dir",
				Usage: "Directory that relative configured paths resolve against",
			},
		},
		Commands: []*cli.Command{
			newRunCommand(),
			newClassifyCommand(),
			newIdentifyCommand(),
			newLocationsCommand(),
			newScenesCommand(),
			newRunsCommand(),
			newServeCommand(),
		},
	}
}

// loadConfig reads the environment and applies the global flag overrides.
func loadConfig(cmd *cli.Command) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	root := cmd.Root()
	if v := strings.TrimSpace(root.String("log-level")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(root.String("log-format")); v != "" {
		cfg.Logging.Format = v
	}
	if v := strings.TrimSpace(root.String("work-dir")); v != "" {
		cfg.Paths.WorkDir = v
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, setupLogger(os.Stderr, cfg.Logging.Level, cfg.Logging.Format), nil
}

func setupLogger(w io.Writer, level, format string) *slog.Logger {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}
