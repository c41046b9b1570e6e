package main

import (
	"fmt"
	"os"

	"github.com/w3c/attribution/internal/cli"
)

func main() {
	if err := cli.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
