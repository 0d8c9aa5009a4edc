package main

import (
	"os"

	"ragkit/pkg/logger"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("command failed", "error", err)
		logger.Sync()
		os.Exit(1)
	}
	logger.Sync()
}
