package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var currencyCmd = &cobra.Command{
	Use:   "currency <amount-with-code> <target-code>",
	Short: "Convert an amount between currencies",
	Long: `Convert an amount like "15.95 USD" (amount optional, default 1) into
a target currency using the session's cached exchange rates.

Examples:
  quotefetch currency "15.95 USD" EUR
  quotefetch currency GBP USD`,
	Args: cobra.ExactArgs(2),
	RunE: runCurrency,
}

func init() {
	rootCmd.AddCommand(currencyCmd)
}

func runCurrency(cmd *cobra.Command, args []string) error {
	session, err := newSession()
	if err != nil {
		return err
	}
	amount, err := session.Currency(context.Background(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Printf("%s = %.4f %s\n", args[0], amount, args[1])
	return nil
}
