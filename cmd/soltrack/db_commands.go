package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/brojonat/soltrack/service/db"
	"github.com/brojonat/soltrack/service/report"
	"github.com/urfave/cli/v2"
)

func dbCommands() *cli.Command {
	return &cli.Command{
		Name:  "db",
		Usage: "Snapshot history inspection and maintenance",
		Subcommands: []*cli.Command{
			latestSnapshotCommand(),
			pruneSnapshotsCommand(),
		},
	}
}

func latestSnapshotCommand() *cli.Command {
	return &cli.Command{
		Name:      "latest",
		Usage:     "Show the newest stored snapshot for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return fmt.Errorf("requires exactly one argument: wallet address")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			snap, err := store.LatestSnapshot(c.Context, c.Args().First())
			if errors.Is(err, db.ErrNotFound) {
				fmt.Fprintln(c.App.ErrWriter, "No snapshots found for this wallet.")
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to get snapshot: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, snap)
			}
			printSnapshots(c.App.Writer, []*report.Snapshot{snap})
			return nil
		},
	}
}

func pruneSnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "prune",
		Usage: "Delete snapshots older than a retention window",
		Flags: []cli.Flag{
			&cli.DurationFlag{
				Name:  "older-than",
				Usage: "Retention window; snapshots generated before now minus this are deleted",
				Value: 30 * 24 * time.Hour,
			},
		},
		Action: func(c *cli.Context) error {
			window := c.Duration("older-than")
			if window <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}

			store, closer, err := getStore(c)
			if err != nil {
				return err
			}
			defer closer()

			cutoff := time.Now().Add(-window)
			n, err := store.DeleteSnapshotsOlderThan(c.Context, cutoff)
			if err != nil {
				return fmt.Errorf("failed to prune snapshots: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Deleted %d snapshots generated before %s\n", n, cutoff.UTC().Format(time.RFC3339))
			return nil
		},
	}
}

func getStore(c *cli.Context) (*db.Store, func(), error) {
	dbURL := c.String("database-url")
	if dbURL == "" {
		return nil, nil, fmt.Errorf("database-url is required (set DATABASE_URL env var or use --database-url)")
	}

	pool, err := db.Connect(c.Context, dbURL)
	if err != nil {
		return nil, nil, err
	}

	store := db.NewStore(pool, nil)
	closer := func() { pool.Close() }

	return store, closer, nil
}
