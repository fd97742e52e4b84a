package main

import (
	"os"

	"github.com/blacktop/lipost/cmd"
	"github.com/blacktop/lipost/internal/logutil"
)

func main() {
	if err := cmd.Execute(); err != nil {
		logutil.Errorf("%v", err)
		os.Exit(1)
	}
}
