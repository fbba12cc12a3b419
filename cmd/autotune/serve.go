package main

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v5"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autotune/internal/api"
	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/version"
)

func serveCmd() *cli.Command {
	var (
		addr        string
		readTimeout time.Duration
		maxDim      int64
	)

	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the admin API (tuner snapshots, clear, run a matmul)",
		Flags: append(tunerFlags(),
			&cli.StringFlag{
				Name:        "addr",
				Usage:       "listen address",
				Value:       "127.0.0.1:8080",
				Destination: &addr,
			},
			&cli.DurationFlag{
				Name:        "read-timeout",
				Usage:       "read timeout",
				Value:       30 * time.Second,
				Destination: &readTimeout,
			},
			&cli.Int64Flag{
				Name:        "max-dim",
				Usage:       "largest m, k or n accepted by POST /v1/matmul",
				Value:       api.DefaultMaxDim,
				Destination: &maxDim,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyServeConfig(cmd, fileConfig, &addr)
			log := logger.FromContext(ctx)

			env, err := newTunerEnv(ctx)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			cfg := api.Config{
				Tuner:   env.tuner,
				Device:  env.dev,
				MaxDim:  int(maxDim),
				Version: version.Resolve(),
				Logger:  log,
			}
			if env.store != nil {
				cfg.Cache = env.store
			}
			server := api.NewServer(cfg)
			e := server.NewEcho()

			log.Info("starting server", "address", addr, "device", env.dev.ID())
			sc := echo.StartConfig{
				Address: addr,
				BeforeServeFunc: func(srv *http.Server) error {
					srv.ReadHeaderTimeout = readTimeout
					return nil
				},
			}
			err = sc.Start(ctx, e)
			env.wait()
			return err
		},
	}
}
