package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gaspardpetit/findx/internal/config"
	"github.com/gaspardpetit/findx/internal/output"
	"github.com/gaspardpetit/findx/internal/watcher"
)

// reconcileInterval and retentionInterval govern how often watch mode
// runs its periodic housekeeping passes; both are cheap relative to the
// continuous scan/extract/mirror pipeline they run alongside.
const (
	reconcileInterval = 5 * time.Minute
	retentionInterval = 1 * time.Hour
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Watch the configured roots and keep the index continuously up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd.Context())
		},
	}
}

func runWatch(ctx context.Context) error {
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	w := output.New(cmdOut())

	if err := a.lock.Acquire(); err != nil {
		return err
	}
	defer a.lock.Release()

	watch, err := watcher.New(a.scanCfg, a.bus, cfg.Scan.DebounceWindow)
	if err != nil {
		return fmt.Errorf("building watcher: %w", err)
	}

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(sigCtx)
	g.Go(func() error { return runIgnoringCancel(gctx, watch.Run) })
	g.Go(func() error { return runIgnoringCancel(gctx, a.metadata.Run) })
	g.Go(func() error { return runIgnoringCancel(gctx, a.extract.Run) })
	g.Go(func() error { return runIgnoringCancel(gctx, a.mirror.Run) })
	g.Go(func() error { return runPeriodic(gctx, reconcileInterval, a.reconcile.Run) })
	g.Go(func() error { return runPeriodic(gctx, retentionInterval, a.retention.Run) })

	w.Status("", "watching for changes, press ctrl-c to stop")
	err = g.Wait()
	_ = watch.Stop()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	w.Success("watch stopped")
	return nil
}

// runPeriodic invokes fn on a fixed interval until ctx is cancelled,
// running it once immediately so the first pass happens without waiting
// out a full interval.
func runPeriodic(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil && ctx.Err() == nil {
				return err
			}
		}
	}
}
