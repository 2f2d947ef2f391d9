package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/soltrack/client"
	"github.com/urfave/cli/v2"
)

func watchCommands() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Manage wallets the server snapshots on a schedule",
		Subcommands: []*cli.Command{
			watchAddCommand(),
			watchRemoveCommand(),
			watchListCommand(),
		},
	}
}

func watchAddCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Start (or reschedule) periodic snapshots for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Transaction source (rpc or helius); defaults to the server's DEFAULT_SOURCE",
			},
			&cli.DurationFlag{
				Name:    "interval",
				Aliases: []string{"i"},
				Usage:   "Snapshot interval; defaults to the server's DEFAULT_WATCH_INTERVAL",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			watch, err := newClient(c).Watch(c.Context, c.Args().Get(0), c.String("source"), c.Duration("interval"))
			if err != nil {
				return fmt.Errorf("failed to add watch: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, watch)
			}
			fmt.Fprintf(c.App.Writer, "✓ Watching %s (source: %s, every %v)\n", watch.Address, watch.Source, watch.Interval)
			return nil
		},
	}
}

func watchRemoveCommand() *cli.Command {
	return &cli.Command{
		Name:      "rm",
		Aliases:   []string{"remove"},
		Usage:     "Stop periodic snapshots for a wallet",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "source",
				Usage: "Transaction source the watch was created with",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			if err := newClient(c).Unwatch(c.Context, address, c.String("source")); err != nil {
				return fmt.Errorf("failed to remove watch: %w", err)
			}

			fmt.Fprintf(c.App.Writer, "✓ Stopped watching %s\n", address)
			return nil
		},
	}
}

func watchListCommand() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "List watched wallets",
		Action: func(c *cli.Context) error {
			watches, err := newClient(c).Watches(c.Context)
			if err != nil {
				return fmt.Errorf("failed to list watches: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, watches)
			}
			if len(watches) == 0 {
				fmt.Fprintln(c.App.ErrWriter, "No wallets are being watched.")
				return nil
			}
			printWatches(c.App.Writer, watches)
			return nil
		},
	}
}

func printWatches(w io.Writer, watches []*client.Watch) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ADDRESS\tSOURCE\tINTERVAL\tUPDATED")
	for _, watch := range watches {
		updated := "-"
		if watch.UpdatedAt != nil {
			updated = watch.UpdatedAt.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%v\t%s\n", watch.Address, watch.Source, watch.Interval, updated)
	}
	tw.Flush()
}
