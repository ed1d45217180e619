// partload-client walks a partload server's chunk protocol and prints the
// progress of every call.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
