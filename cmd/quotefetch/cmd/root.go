package cmd

import (
	"github.com/spf13/cobra"

	"quotefetch"
)

var rootCmd = &cobra.Command{
	Use:   "quotefetch",
	Short: "Fetch financial quotes from heterogeneous data sources",
	Long: `Quotefetch aggregates stock, fund and currency quote data from a set
of pluggable data-source modules behind one uniform interface.

It provides commands for:
  - Fetching quotes for a list of symbols via a named source method
  - Converting amounts between currencies with cached exchange rates
  - Looking up ISO 4217 currency metadata by attribute
  - Listing the methods the loaded modules implement`,
}

var cfgFile string

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./config.json)")
}

// newSession builds a Session from the config file plus command flags.
func newSession(extra ...quotefetch.Option) (*quotefetch.Session, error) {
	cfg, err := quotefetch.LoadConfig(cfgFile)
	if err != nil {
		return nil, err
	}
	opts := append([]quotefetch.Option{quotefetch.FromConfig(cfg)}, extra...)
	return quotefetch.New(opts...)
}
