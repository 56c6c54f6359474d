// Command uirun runs declarative UI scenarios against a web application.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/uirun/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
