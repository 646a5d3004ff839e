package main

import (
	"os"

	"github.com/nfarrar/ytscribe/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
