package cmd

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/spf13/cobra"
)

var (
	lookupCode    string
	lookupName    string
	lookupCountry string
	lookupNumber  string
)

var currenciesCmd = &cobra.Command{
	Use:   "currencies",
	Short: "Look up ISO 4217 currency metadata",
	Long: `List known currencies, optionally filtered by attribute. Filter
values are case-insensitive regular expressions.

Examples:
  quotefetch currencies
  quotefetch currencies --country "united states"
  quotefetch currencies --name krona`,
	Args: cobra.NoArgs,
	RunE: runCurrencies,
}

func init() {
	currenciesCmd.Flags().StringVar(&lookupCode, "code", "", "filter by alphabetic code")
	currenciesCmd.Flags().StringVar(&lookupName, "name", "", "filter by currency name")
	currenciesCmd.Flags().StringVar(&lookupCountry, "country", "", "filter by country")
	currenciesCmd.Flags().StringVar(&lookupNumber, "number", "", "filter by numeric code")
	rootCmd.AddCommand(currenciesCmd)
}

func runCurrencies(cmd *cobra.Command, args []string) error {
	session, err := newSession()
	if err != nil {
		return err
	}

	constraints := map[string]any{}
	for key, val := range map[string]string{
		"code":    lookupCode,
		"name":    lookupName,
		"country": lookupCountry,
		"number":  lookupNumber,
	} {
		if val == "" {
			continue
		}
		re, err := regexp.Compile("(?i)" + val)
		if err != nil {
			return fmt.Errorf("bad %s filter: %w", key, err)
		}
		constraints[key] = re
	}

	infos, err := session.CurrencyLookup(constraints)
	if err != nil {
		return err
	}
	codes := make([]string, 0, len(infos))
	for code := range infos {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	for _, code := range codes {
		info := infos[code]
		fmt.Printf("%s  %s  %-34s %s\n", code, info.Number, info.Name, strings.Join(info.Countries, ", "))
	}
	return nil
}
