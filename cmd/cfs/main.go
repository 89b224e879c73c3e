package main

import (
	"fmt"
	"os"

	"github.com/spf13/afero"
)

func main() {
	err := newRootCommand(afero.NewOsFs()).Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "cfs: %v\n", err)
		os.Exit(1)
	}
}
