package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := &cli.Command{
		Name:    "apiary",
		Usage:   "Bee breeding game engine",
		Version: Version,
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Value: "config.yaml", Usage: "path to the YAML config file"},
		},
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
			tickCommand(),
			catalogCommand(),
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, c.String("config"))
		},
	}

	if err := root.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "apiary: %v\n", err)
		os.Exit(1)
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the game API and the hive tick scheduler",
		Action: func(ctx context.Context, c *cli.Command) error {
			return runServe(ctx, c.String("config"))
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Manage the database schema",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "Apply pending migrations",
				Action: func(ctx context.Context, c *cli.Command) error {
					return runMigrate(ctx, c.String("config"), 0)
				},
			},
			{
				Name:  "down",
				Usage: "Roll back applied migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return runMigrate(ctx, c.String("config"), int(c.Int("steps")))
				},
			},
		},
	}
}

func tickCommand() *cli.Command {
	return &cli.Command{
		Name:  "tick",
		Usage: "Advance every hive by one tick and exit",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Value: 1, Usage: "number of ticks to run"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runTicks(ctx, c.String("config"), int(c.Int("count")))
		},
	}
}

func catalogCommand() *cli.Command {
	return &cli.Command{
		Name:  "catalog",
		Usage: "Print the bee types and combination table",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "file", Usage: "catalog YAML to validate instead of the configured one"},
			&cli.BoolFlag{Name: "json", Usage: "output raw JSON"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return runCatalog(c.String("config"), c.String("file"), c.Bool("json"))
		},
	}
}
