package main

import (
	"os"

	"github.com/paroxp/concourse-go-sdk/cmd/cctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
