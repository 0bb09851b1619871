// Command myreplicate runs the MySQL-to-MySQL CDC replication engine: a
// supervisor that reads binlog streams from one or more sources, fans
// events through filter and transform rules, and writes batched upserts
// to one or more targets, alongside an initial full-table snapshot pass
// per mapping.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	logLevel  string
	logFormat string
)

var rootCmd = &cobra.Command{
	Use:   "myreplicate",
	Short: "myreplicate streams MySQL binlog changes into one or more target databases",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log output format (json, console)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
