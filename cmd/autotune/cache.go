package main

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/samcharles93/autotune/internal/logger"
	"github.com/samcharles93/autotune/internal/tunecache"
)

func cacheCmd() *cli.Command {
	return &cli.Command{
		Name:  "cache",
		Usage: "Inspect or clear the persistent autotune cache",
		Commands: []*cli.Command{
			cacheListCmd(),
			cacheClearCmd(),
		},
	}
}

func openCache(ctx context.Context, cmd *cli.Command) (*tunecache.Store, error) {
	applyCacheDirConfig(cmd, fileConfig)
	return tunecache.New(cacheDir, logger.FromContext(ctx))
}

func cacheListCmd() *cli.Command {
	var verbose bool
	return &cli.Command{
		Name:  "list",
		Usage: "List cache files and their entries",
		Flags: []cli.Flag{
			cacheDirFlag(),
			&cli.BoolFlag{
				Name:        "verbose",
				Aliases:     []string{"v"},
				Usage:       "print every entry",
				Destination: &verbose,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := openCache(ctx, cmd)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			infos, err := store.List()
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			if len(infos) == 0 {
				fmt.Printf("cache %s is empty\n", store.Dir())
				return nil
			}

			cellStyle := lipgloss.NewStyle().Padding(0, 1)
			headerStyle := lipgloss.NewStyle().Padding(0, 1).Bold(true)
			table := lgtable.New().
				Border(lipgloss.RoundedBorder()).
				StyleFunc(func(row, col int) lipgloss.Style {
					if row == lgtable.HeaderRow {
						return headerStyle
					}
					return cellStyle
				}).
				Headers("Tuner", "Identity", "Entries", "Size", "Updated")
			for _, info := range infos {
				table.Row(
					info.Name,
					info.ID,
					humanize.Comma(int64(info.Entries)),
					humanize.Bytes(uint64(info.Size)),
					humanize.Time(info.ModTime),
				)
			}
			fmt.Println(table.String())

			if verbose {
				for _, info := range infos {
					f, err := tunecache.ReadFile(info.Path)
					if err != nil {
						continue
					}
					fmt.Printf("\n%s / %s\n", f.Name, f.ID)
					for _, key := range slices.Sorted(maps.Keys(f.Entries)) {
						rec := f.Entries[key]
						fmt.Printf("  %-20s winner #%d  updated %s\n", key, rec.Index, rec.UpdatedAt.Local().Format(time.DateTime))
					}
				}
			}
			return nil
		},
	}
}

func cacheClearCmd() *cli.Command {
	var name string
	return &cli.Command{
		Name:  "clear",
		Usage: "Delete cached winners (all tuners, or one with --name)",
		Flags: []cli.Flag{
			cacheDirFlag(),
			&cli.StringFlag{
				Name:        "name",
				Usage:       "only clear this tuner (e.g. matmul)",
				Destination: &name,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			store, err := openCache(ctx, cmd)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			n, err := store.Clear(name)
			if err != nil {
				return cli.Exit("error: "+err.Error(), 1)
			}
			fmt.Printf("removed %d cache file(s) from %s\n", n, store.Dir())
			return nil
		},
	}
}
