package main

import (
	"context"
	"os"

	json "github.com/goccy/go-json"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autotune/internal/device"
)

func deviceCmd() *cli.Command {
	return &cli.Command{
		Name:  "device",
		Usage: "Print the detected device and the identity its winners are cached under",
		Flags: []cli.Flag{
			&cli.Int64Flag{
				Name:        "workers",
				Usage:       "goroutines used by the parallel kernels (0 = GOMAXPROCS)",
				Destination: &workers,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if fileConfig.Workers != nil && !cmd.IsSet("workers") {
				workers = *fileConfig.Workers
			}
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(device.NewCPU(int(workers)).Info())
		},
	}
}
