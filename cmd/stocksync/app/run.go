package app

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	appintegration "github.com/erp/stocksync/internal/application/integration"
	"github.com/erp/stocksync/internal/infrastructure/telemetry"
)

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run one synchronization and exit",
		Long: `Run a single stock synchronization, print its summary and exit.
The exit status is non-zero when the run fails or another run holds the lock.`,
		RunE: runOnce,
	}
}

func runOnce(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := buildStack(ctx, cfg, log)
	if err != nil {
		log.Error("Startup failed", zap.Error(err))
		return err
	}
	defer st.close(context.Background())

	if cfg.Scheduler.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Scheduler.JobTimeout)
		defer cancel()
	}

	result, err := st.service.Run(telemetry.WithTrigger(ctx, telemetry.TriggerCLI))
	out := cmd.OutOrStdout()
	if err != nil {
		_, _ = fmt.Fprintln(out, appintegration.FailureMessage(err))
		return err
	}
	_, err = fmt.Fprintln(out, appintegration.Summary(result))
	return err
}
