// Command taskctl inspects and manages background tasks, runs database
// migrations and mints access tokens.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(defaultRuntime()).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
