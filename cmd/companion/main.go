package main

import (
	"fmt"
	"os"

	cerrors "companion/internal/errors"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", red("Error:"), err)
		if cerrors.IsFatal(err) {
			fmt.Fprintln(os.Stderr, gray("Is another companion already running on this port? Try --port."))
		}
		os.Exit(1)
	}
}
