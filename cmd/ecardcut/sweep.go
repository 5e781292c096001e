package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/aatumaykin/ecardcut/internal/cleanup"
	"github.com/aatumaykin/ecardcut/internal/constants"
	"github.com/spf13/cobra"
)

var sweepForce bool

// sweepCmd runs a single sweep outside the server
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep and exit",
	Long: `Delete every file older than the retention window from the storage
directories. With --force every file is deleted regardless of age.`,
	Args: cobra.NoArgs,
	RunE: sweepHandler,
}

func sweepHandler(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadValidConfig()
	if err != nil {
		return err
	}

	log, err := newLogger(cfg.Logging)
	if err != nil {
		return err
	}
	defer log.Close()

	store, err := newStore(cfg)
	if err != nil {
		return err
	}
	sweeper, err := newSweeper(cfg, store, log, nil)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var res cleanup.Result
	if sweepForce {
		res = sweeper.ForceSweep(ctx)
	} else {
		res = sweeper.RunSweep(ctx)
	}

	fmt.Fprintf(cmd.OutOrStdout(), constants.MsgSweepResult,
		res.Deleted, res.Errors, res.Skipped, formatBytes(res.BytesFreed), res.Duration.Round(time.Millisecond))

	if res.Errors > 0 {
		return fmt.Errorf("%d file(s) could not be deleted", res.Errors)
	}
	return nil
}

func init() {
	sweepCmd.Flags().BoolVarP(&sweepForce, "force", "f", false, "Delete all files regardless of age")
}
