package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/user/myreplicate/internal/statusserver"
	"github.com/user/myreplicate/pkg/config"
	"github.com/user/myreplicate/pkg/logging"
	"github.com/user/myreplicate/pkg/supervisor"
)

const defaultStatusPort = 9090

func init() {
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <config>",
	Short: "Start the replication engine with the given config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEngine(args[0])
	},
}

func runEngine(configPath string) error {
	log := logging.New(logLevel, logFormat)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	sup, err := supervisor.New(cfg, log)
	if err != nil {
		return fmt.Errorf("building supervisor: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")
		cancel()
	}()

	port := cfg.Monitoring.Port
	if port == 0 {
		port = defaultStatusPort
	}
	status := statusserver.New(fmt.Sprintf(":%d", port), sup, log)

	statusErrCh := make(chan error, 1)
	go func() {
		statusErrCh <- status.Run(ctx)
	}()

	if err := sup.Run(ctx); err != nil {
		cancel()
		<-statusErrCh
		return fmt.Errorf("supervisor run: %w", err)
	}

	if err := <-statusErrCh; err != nil {
		return fmt.Errorf("status server: %w", err)
	}
	return nil
}
