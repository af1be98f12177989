package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"quotefetch"
)

var (
	fetchCurrency   string
	fetchNoFailover bool
	fetchRequire    []string
	fetchTimeoutSec int
	fetchJSON       bool
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <method> <symbol> [symbol...]",
	Short: "Fetch quotes for symbols via a named source method",
	Long: `Fetch quotes for one or more symbols from the sources registered for
a method. Unresolved symbols fail over to later sources unless
--no-failover is given.

Examples:
  quotefetch fetch usa IBM MSFT
  quotefetch fetch --currency EUR europe SAP.DE
  quotefetch fetch --require eps usa AAPL`,
	Args: cobra.MinimumNArgs(2),
	RunE: runFetch,
}

func init() {
	fetchCmd.Flags().StringVar(&fetchCurrency, "currency", "", "convert quote fields into this currency")
	fetchCmd.Flags().BoolVar(&fetchNoFailover, "no-failover", false, "query only the first capable source")
	fetchCmd.Flags().StringSliceVar(&fetchRequire, "require", nil, "only use sources that produce these labels")
	fetchCmd.Flags().IntVar(&fetchTimeoutSec, "timeout", 0, "per-request timeout in seconds")
	fetchCmd.Flags().BoolVar(&fetchJSON, "json", false, "emit raw JSON")
	rootCmd.AddCommand(fetchCmd)
}

func runFetch(cmd *cobra.Command, args []string) error {
	method, symbols := args[0], args[1:]

	var opts []quotefetch.Option
	if fetchCurrency != "" {
		opts = append(opts, quotefetch.WithCurrency(fetchCurrency))
	}
	if fetchNoFailover {
		opts = append(opts, quotefetch.WithFailover(false))
	}
	if len(fetchRequire) > 0 {
		opts = append(opts, quotefetch.WithRequiredLabels(fetchRequire...))
	}
	if fetchTimeoutSec > 0 {
		opts = append(opts, quotefetch.WithTimeout(time.Duration(fetchTimeoutSec)*time.Second))
	}

	session, err := newSession(opts...)
	if err != nil {
		return err
	}
	res, err := session.Fetch(context.Background(), method, symbols...)
	if err != nil {
		return err
	}

	if fetchJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	printResult(res)
	return nil
}

func printResult(res quotefetch.Result) {
	syms := make([]string, 0, len(res))
	for s := range res {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	for _, sym := range syms {
		rec := res[sym]
		fmt.Printf("%s:\n", sym)
		labels := make([]string, 0, len(rec))
		for l := range rec {
			labels = append(labels, l)
		}
		sort.Strings(labels)
		for _, l := range labels {
			fmt.Printf("  %-12s %s\n", l, rec[l])
		}
	}
}
