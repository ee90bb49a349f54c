// Command fleetcron runs the scheduler worker, the HTTP API and the
// operational helpers around them.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
