package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oskarlin/rxcache/internal/rxconfig"
)

func newConfigValidateCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "config-validate",
		Short: "Load and validate a config file without starting the service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := rxconfig.Load(*configPath)
			if err != nil {
				return err
			}
			fmt.Printf("config OK: pattern_cache.ttl=%s result_cache.enabled=%t admin_server.addr=%s\n",
				cfg.PatternCache.TTL, cfg.ResultCache.Enabled, cfg.AdminServer.Addr)
			return nil
		},
	}
}
