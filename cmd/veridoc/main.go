package main

import (
	"os"

	"github.com/dshills/veridoc/internal/cli"
)

func main() {
	os.Exit(cli.Run())
}
