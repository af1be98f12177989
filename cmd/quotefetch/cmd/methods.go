package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"quotefetch"
)

var methodsCmd = &cobra.Command{
	Use:   "methods",
	Short: "List the quote methods the loaded modules implement",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession()
		if err != nil {
			return err
		}
		for _, m := range session.Methods() {
			fmt.Println(m)
		}
		if len(session.Methods()) == 0 {
			fmt.Printf("no modules loaded; registered modules: %v\n", quotefetch.RegisteredModules())
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(methodsCmd)
}
