// Command vaultctl is the operator tool for a totpvault deployment: schema
// migrations, admin bootstrap and maintenance against the configured database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(openBackend).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
