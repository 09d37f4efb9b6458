// Command registrarctl is the operator tool for the registrar API: document
// digests, development tokens, verification calls and wallet imports.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := App().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
