package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/brojonat/soltrack/service/bootstrap"
	"github.com/brojonat/soltrack/service/config"
	"github.com/brojonat/soltrack/service/report"
	"github.com/brojonat/soltrack/service/transfer"
	"github.com/itchyny/gojq"
	"github.com/urfave/cli/v2"
)

// reportFlags are shared by the local and remote report commands.
func reportFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "source",
			Usage: "Transaction source (rpc or helius); defaults to DEFAULT_SOURCE",
		},
		&cli.IntFlag{
			Name:    "limit",
			Aliases: []string{"n"},
			Usage:   "Maximum number of transactions to inspect (0 uses SIGNATURE_LIMIT)",
		},
		&cli.StringSliceFlag{
			Name:  "jq",
			Usage: "jq filter each transfer must satisfy (can be specified multiple times, all must match)",
		},
		&cli.BoolFlag{
			Name:  "tokens",
			Usage: "Also print token balance activity",
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Aliases: []string{"t"},
			Value:   2 * time.Minute,
			Usage:   "How long to wait for the report",
		},
	}
}

func reportCommand() *cli.Command {
	return &cli.Command{
		Name:      "report",
		Usage:     "Build a wallet report locally using environment configuration",
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

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			logger := quietLogger()

			ctx, cancel := context.WithTimeout(c.Context, c.Duration("timeout"))
			defer cancel()

			builder, closeBuilder, err := bootstrap.Builder(ctx, cfg, nil, logger)
			if err != nil {
				return err
			}
			defer closeBuilder()

			rep, err := builder.Build(ctx, report.Request{
				Address: c.Args().Get(0),
				Source:  c.String("source"),
				Limit:   c.Int("limit"),
			})
			if err != nil {
				return fmt.Errorf("failed to build report: %w", err)
			}

			return outputReport(c, rep, filters)
		},
	}
}

// outputReport applies jq filters and writes the report as JSON or tables.
func outputReport(c *cli.Context, rep *report.Report, filters []*gojq.Code) error {
	if len(filters) > 0 {
		kept, err := filterTransfers(rep.Transfers, filters)
		if err != nil {
			return err
		}
		rep.Transfers = kept
	}

	if c.Bool("json") {
		return writeJSON(c.App.Writer, rep)
	}

	if rep.Empty() {
		fmt.Fprintln(c.App.ErrWriter, "No transfers found for this wallet.")
	}
	printReport(c.App.Writer, rep, c.Bool("tokens"))
	return nil
}

// compileFilters parses and compiles each jq expression.
func compileFilters(exprs []string) ([]*gojq.Code, error) {
	codes := make([]*gojq.Code, len(exprs))
	for i, filter := range exprs {
		query, err := gojq.Parse(filter)
		if err != nil {
			return nil, fmt.Errorf("failed to parse jq filter %q: %w", filter, err)
		}
		codes[i], err = gojq.Compile(query)
		if err != nil {
			return nil, fmt.Errorf("failed to compile jq filter %q: %w", filter, err)
		}
	}
	return codes, nil
}

// matchesAll reports whether every filter yields a truthy first result for v.
// v must be made of plain JSON values (maps, slices, float64, string, bool, nil).
func matchesAll(codes []*gojq.Code, v any) bool {
	for _, code := range codes {
		iter := code.Run(v)
		result, ok := iter.Next()
		if !ok {
			return false
		}
		if _, isErr := result.(error); isErr {
			return false
		}
		if !isTruthy(result) {
			return false
		}
	}
	return true
}

// toJQValue converts a struct into the generic form gojq operates on.
func toJQValue(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// filterTransfers keeps the transfers that satisfy every filter.
func filterTransfers(transfers []transfer.NormalizedTransfer, codes []*gojq.Code) ([]transfer.NormalizedTransfer, error) {
	kept := make([]transfer.NormalizedTransfer, 0, len(transfers))
	for _, t := range transfers {
		v, err := toJQValue(t)
		if err != nil {
			return nil, fmt.Errorf("failed to encode transfer %s: %w", t.TxHash, err)
		}
		if matchesAll(codes, v) {
			kept = append(kept, t)
		}
	}
	return kept, nil
}

// isTruthy follows jq semantics: only false and null are falsy.
func isTruthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	default:
		return true
	}
}

func printReport(w io.Writer, rep *report.Report, showTokens bool) {
	fmt.Fprintf(w, "Wallet:       %s\n", rep.Address)
	fmt.Fprintf(w, "Source:       %s\n", rep.Source)
	fmt.Fprintf(w, "Transactions: %d (%d skipped)\n", rep.TransactionCount, len(rep.Skipped))
	fmt.Fprintf(w, "Received:     %s SOL\n", transfer.FormatAmount(rep.Summary.Received))
	fmt.Fprintf(w, "Sent:         %s SOL\n", transfer.FormatAmount(rep.Summary.Sent))
	fmt.Fprintf(w, "Net:          %s SOL\n", transfer.FormatAmount(rep.Summary.Net))
	if rep.Fiat.Rate > 0 {
		fmt.Fprintf(w, "Net (%s):    %.2f @ %.2f\n", rep.Currency, rep.Fiat.Net, rep.Fiat.Rate)
	} else {
		fmt.Fprintf(w, "Net (%s):    unavailable\n", rep.Currency)
	}

	if len(rep.Transfers) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tFROM\tTO\tAMOUNT\tVALUE\tSIGNATURE")
		for _, t := range rep.Transfers {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
				t.Timestamp,
				orDash(t.From),
				orDash(t.To),
				transfer.FormatAmount(t.Amount),
				t.FiatValue,
				t.TxHash,
			)
		}
		tw.Flush()
	}

	if showTokens && len(rep.TokenActivity) > 0 {
		fmt.Fprintln(w)
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "TIMESTAMP\tMINT\tAMOUNT\tSIGNATURE")
		for _, a := range rep.TokenActivity {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", a.Timestamp, a.Mint, a.Amount, a.TxHash)
		}
		tw.Flush()
	}
}

func orDash(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func writeJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal output: %w", err)
	}
	fmt.Fprintln(w, string(data))
	return nil
}

// quietLogger only lets errors through to stderr so command output stays clean.
func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}
