package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pierreba/era/app"
	"github.com/pierreba/era/config"
	"github.com/pierreba/era/core/pipeline"
	"github.com/pierreba/era/infra/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the allocation service until interrupted",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()

	requests := make(chan pipeline.Request, 16)
	return svc.Run(ctx, requests)
}
