// vaultctl is the administrative companion to the vault server: it checks
// directory connectivity, provisions and rotates the vault master secret and
// runs one-off directory synchronization passes.
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
