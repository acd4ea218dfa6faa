package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/openfluke/geofactor/internal/config"
	"github.com/openfluke/geofactor/internal/logger"
)

var (
	name    = "geofactor"
	version = "v0.0.1-default"
	commit  = ""
)

type appConfigKey struct{}

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		zap.L().Error("fatal error", zap.Error(err))
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:    name,
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),
		Usage:   "Geometric relation factors: inspect, initialise and score",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML configuration file (optional, GEOFACTOR_* env vars override it)",
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Prints verbose logs (optional, default: false)",
			},
		},
		Before: func(ctx context.Context, cmd *cli.Command) (context.Context, error) {
			cfg, err := config.Load(cmd.String("config"))
			if err != nil {
				return ctx, err
			}
			if cmd.Bool("debug") {
				cfg.Debug = true
			}
			zap.ReplaceGlobals(logger.New(cfg.Debug, os.Stderr, os.Stderr))
			return context.WithValue(ctx, appConfigKey{}, cfg), nil
		},
		After: func(ctx context.Context, cmd *cli.Command) error {
			_ = zap.L().Sync()
			return nil
		},
		Commands: []*cli.Command{
			newDimsCmd(),
			newInitCmd(),
			newScoreCmd(),
		},
	}
}

func getConfig(ctx context.Context) *config.AppConfig {
	return ctx.Value(appConfigKey{}).(*config.AppConfig)
}
