package main

import (
	"os"

	"repoctx/internal/ui/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
