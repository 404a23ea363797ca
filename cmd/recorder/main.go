package main

import (
	"fmt"
	"os"

	"chorewalk/internal/cli"
	"chorewalk/internal/config"
	"chorewalk/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logOpts := cfg.Log
	logOpts.Service = "recorder"
	if err := logger.Init(logOpts); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Sync()

	return cli.NewRootCmd(&cli.Dependencies{Config: cfg}).Execute()
}
