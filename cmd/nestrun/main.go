package main

import (
	"errors"
	"fmt"
	"os"

	"nestrun/internal/cli"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}
	if !errors.Is(err, cli.ErrIncompleteRun) {
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	os.Exit(1)
}
