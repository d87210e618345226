// Command mongo2elastic replicates MongoDB collections into Elasticsearch.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/roach88/mongo2elastic/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		// Commands report their own ExitErrors; anything else is a usage error.
		var exitErr *cli.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintln(os.Stderr, "Error:", err)
			os.Exit(cli.ExitCommandError)
		}
		os.Exit(exitErr.Code)
	}
}
