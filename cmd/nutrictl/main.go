// Command nutrictl drives the decision engine against a profile store from
// the command line.
package main

import (
	"fmt"
	"os"

	"github.com/nutrimama/nutrimama/internal/config"
)

func main() {
	if err := config.Load(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
