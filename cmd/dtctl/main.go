// Command dtctl manages dynamic tables from the command line.
package main

import (
	"os"

	"github.com/JonMunkholm/dynatable/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
