// Command regexcachectl runs and inspects the pattern cache service.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "regexcachectl",
		Short: "Operate the regex pattern cache service",
		Long:  "regexcachectl runs the cache service and lets operators validate config, inspect state, and clear tiers against a running instance.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(
		newServeCommand(&configPath),
		newConfigValidateCommand(&configPath),
		newStatsCommand(),
		newClearCommand(),
	)
	return root
}
