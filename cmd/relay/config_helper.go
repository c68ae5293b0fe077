package main

import (
	"fmt"

	"mercator-hq/relay/pkg/config"
)

// loadConfigForCLI loads the config file for administrative subcommands
// (accounts, keys) that need the same DB paths the server uses but don't
// start the server itself.
func loadConfigForCLI() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
