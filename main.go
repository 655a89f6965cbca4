package main

import (
	"fmt"
	"os"

	"github.com/epam/syndicate-rule-engine-sub000/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	os.Exit(cmd.ExitCode(err))
}
