package main

import (
	"os"

	"quotefetch/cmd/quotefetch/cmd"

	_ "quotefetch/modules/stooq"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
