package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/brojonat/soltrack/client"
	natspkg "github.com/brojonat/soltrack/service/nats"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/transfer"
	"github.com/urfave/cli/v2"
)

func clientCommands() *cli.Command {
	return &cli.Command{
		Name:  "client",
		Usage: "HTTP client commands for interacting with the soltrack server",
		Subcommands: []*cli.Command{
			clientReportCommand(),
			clientSnapshotsCommand(),
			clientAwaitCommand(),
		},
	}
}

func newClient(c *cli.Context) *client.Client {
	return client.NewClient(c.String("server-url"), nil, quietLogger())
}

func clientReportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Fetch a wallet report from the server",
		ArgsUsage: "WALLET_ADDRESS",
		Flags:     reportFlags(),
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			rep, err := newClient(c).Report(ctx, c.Args().Get(0), c.String("source"), c.Int("limit"))
			if err != nil {
				return err
			}

			return outputReport(c, rep, filters)
		},
	}
}

func clientSnapshotsCommand() *cli.Command {
	return &cli.Command{
		Name:      "snapshots",
		Usage:     "List stored report snapshots for a wallet, newest first",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Value:   20,
				Usage:   "Maximum number of snapshots to list",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}

			snaps, err := newClient(c).Snapshots(c.Context, c.Args().Get(0), c.Int("limit"))
			if err != nil {
				return err
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, snaps)
			}
			if len(snaps) == 0 {
				fmt.Fprintln(c.App.ErrWriter, "No snapshots found for this wallet.")
				return nil
			}
			printSnapshots(c.App.Writer, snaps)
			return nil
		},
	}
}

func clientAwaitCommand() *cli.Command {
	return &cli.Command{
		Name:      "await",
		Usage:     "Block until a report event matching criteria arrives",
		ArgsUsage: "WALLET_ADDRESS",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:  "jq",
				Usage: "jq filter the event must satisfy (can be specified multiple times, all must match)",
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Aliases: []string{"t"},
				Value:   10 * time.Minute,
				Usage:   "How long to wait for an event",
			},
		},
		Action: func(c *cli.Context) error {
			if c.NArg() < 1 {
				return fmt.Errorf("wallet address is required")
			}
			address := c.Args().Get(0)

			filters, err := compileFilters(c.StringSlice("jq"))
			if err != nil {
				return err
			}

			matcher := func(event *natspkg.ReportEvent) bool {
				if len(filters) == 0 {
					return true
				}
				v, err := toJQValue(event)
				if err != nil {
					return false
				}
				return matchesAll(filters, v)
			}

			if !c.Bool("json") {
				fmt.Fprintf(c.App.ErrWriter, "Waiting for report on wallet %s...\n", address)
				for _, filter := range c.StringSlice("jq") {
					fmt.Fprintf(c.App.ErrWriter, "  jq Filter: %s\n", filter)
				}
				fmt.Fprintf(c.App.ErrWriter, "  Timeout: %v\n\n", c.Duration("timeout"))
			}

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			event, err := newClient(c).Await(ctx, address, matcher)
			if err != nil {
				return fmt.Errorf("failed to await report: %w", err)
			}

			if c.Bool("json") {
				return writeJSON(c.App.Writer, event)
			}
			printEvent(c.App.Writer, event)
			return nil
		},
	}
}

func printSnapshots(w io.Writer, snaps []*report.Snapshot) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "GENERATED\tSOURCE\tTRANSFERS\tSKIPPED\tNET\tFIAT NET")
	for _, s := range snaps {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\t%.2f %s\n",
			s.GeneratedAt.Format(time.RFC3339),
			s.Source,
			s.TransferCount,
			s.SkippedCount,
			transfer.FormatAmount(s.Net),
			s.FiatNet,
			s.Currency,
		)
	}
	tw.Flush()
}

func printEvent(w io.Writer, e *natspkg.ReportEvent) {
	fmt.Fprintln(w, "✓ Report Received")
	fmt.Fprintf(w, "Report:     %s\n", e.ReportID)
	fmt.Fprintf(w, "Wallet:     %s\n", e.Address)
	fmt.Fprintf(w, "Net:        %s SOL\n", transfer.FormatAmount(e.Net))
}
