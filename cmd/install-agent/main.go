package main

import (
	"fmt"
	"os"

	"agent-resources/internal/cli"
	"agent-resources/internal/resource"
)

func main() {
	if err := cli.Run(os.Args, cli.Options{CommandName: "install-agent", Category: resource.CategoryAgent}); err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
}
