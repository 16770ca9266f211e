package main

import (
	"os"

	"github.com/rustyeddy/intraday/cmd/trader/cmd"
	"github.com/rustyeddy/intraday/internal/errs"
)

func main() {
	if err := cmd.Execute(); err != nil {
		if errs.KindOf(err) == errs.ConfigInvalid {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
