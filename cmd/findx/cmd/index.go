package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/findx/internal/config"
	"github.com/gaspardpetit/findx/internal/output"
)

// drainTimeout bounds how long a one-shot index waits for the extraction
// and mirror pipeline to drain after a cold scan before reconciling and
// reindexing; the pipeline is bus-driven and has no natural "done" signal
// for a finite batch, so this is a quiescence window rather than a hard
// per-file deadline.
const drainTimeout = 30 * time.Second

func newIndexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Run one cold scan, extract, and mirror pass over the configured roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndex(cmd.Context())
		},
	}
	return cmd
}

// runIndex performs a single batch pass: acquire the lock, scan, run the
// pipeline until it drains, reconcile the mirror tree, and rebuild the
// search indices, then release the lock.
func runIndex(ctx context.Context) error {
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

	if err := runOneShotIndex(ctx, a, w); err != nil {
		return err
	}

	w.Success("index complete")
	return nil
}

// runOneShotIndex drives a cold scan through the pipeline to quiescence,
// then reconciles and reindexes. Shared by "index" and "oneshot".
func runOneShotIndex(ctx context.Context, a *app, w *output.Writer) error {
	pipelineCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 3)
	go func() { done <- runIgnoringCancel(pipelineCtx, a.metadata.Run) }()
	go func() { done <- runIgnoringCancel(pipelineCtx, a.extract.Run) }()
	go func() { done <- runIgnoringCancel(pipelineCtx, a.mirror.Run) }()

	w.Status("", "scanning roots")
	delta, changed, err := a.scanOnce(ctx)
	if err != nil {
		cancel()
		return fmt.Errorf("scanning: %w", err)
	}
	if changed {
		w.Statusf("", "found %d added, %d modified, %d moved, %d deleted",
			len(delta.Added), len(delta.Modified), len(delta.Moved), len(delta.Deleted))
		if err := a.publishDelta(ctx, delta); err != nil {
			cancel()
			return fmt.Errorf("publishing scan delta: %w", err)
		}

		select {
		case <-time.After(drainTimeout):
		case <-ctx.Done():
			cancel()
			return ctx.Err()
		}
	} else {
		w.Status("", "no files found under the configured roots")
	}
	cancel()
	for i := 0; i < 3; i++ {
		if err := <-done; err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}

	w.Status("", "reconciling mirror tree")
	if err := a.reconcile.Run(ctx); err != nil {
		return fmt.Errorf("reconciling: %w", err)
	}

	w.Status("", "rebuilding search indices")
	if err := a.search.ReindexAll(ctx); err != nil {
		return fmt.Errorf("reindexing: %w", err)
	}
	if err := a.search.RebuildVectorIndex(ctx); err != nil {
		return fmt.Errorf("rebuilding vector index: %w", err)
	}

	return nil
}

// runIgnoringCancel runs a service loop and swallows the error caused by
// the pipeline's own shutdown signal, surfacing only genuine failures.
func runIgnoringCancel(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
