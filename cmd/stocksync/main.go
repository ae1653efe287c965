// Package main is the entry point for the stocksync service.
package main

import (
	"os"

	"github.com/erp/stocksync/cmd/stocksync/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
