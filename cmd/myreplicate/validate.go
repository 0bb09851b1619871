package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/myreplicate/pkg/config"
)

func init() {
	rootCmd.AddCommand(validateCmd)
}

var validateCmd = &cobra.Command{
	Use:   "validate <config>",
	Short: "Parse and validate a config file without starting the engine",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("config OK: %d source(s), %d target(s), %d mapping(s)\n",
			len(cfg.Sources), len(cfg.Targets), len(cfg.Mappings))
		return nil
	},
}
