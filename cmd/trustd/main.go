// Package main is the entry point for the identity trust service.
package main

import (
	"os"

	"github.com/duydn-dev/identityserver/cmd/trustd/app"
	"github.com/duydn-dev/identityserver/pkg/logger"
)

func main() {
	// Initialize the logger
	logger.Initialize()

	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
