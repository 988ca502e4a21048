package cmd

import (
	"context"
	"encoding/json"
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

var eventPath string

var allocateCmd = &cobra.Command{
	Use:   "allocate",
	Short: "Run one allocation for an event file and print the result",
	RunE:  runAllocate,
}

func init() {
	allocateCmd.Flags().StringVarP(&eventPath, "event", "e", "", "event context file (yaml or json)")
	_ = allocateCmd.MarkFlagRequired("event")
}

func runAllocate(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	ev, err := app.LoadEvent(eventPath)
	if err != nil {
		return fmt.Errorf("load event: %w", err)
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

	res := svc.Pipeline.Allocate(ctx, pipeline.Request{Event: ev})
	out := map[string]any{
		"run_id":     res.RunID,
		"status":     res.Status,
		"rule_ids":   res.RuleIDs,
		"sequence":   res.Sequence,
		"violations": res.Violations,
	}
	if res.Plan != nil {
		out["plan"] = res.Plan
	}
	if res.Err != nil {
		out["error"] = res.Err.Error()
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return err
	}
	if res.Status == pipeline.StatusFailed {
		return res.Err
	}
	return nil
}
