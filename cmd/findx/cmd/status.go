package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/findx/internal/config"
	"github.com/gaspardpetit/findx/internal/output"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Report catalog and lock state for the configured roots",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatus(cmd.Context())
		},
	}
}

// runStatus is read-only, like query: it opens the existing catalog and
// reports on it without acquiring the index lock.
func runStatus(ctx context.Context) error {
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

	files, err := a.cat.ListActiveFiles(ctx)
	if err != nil {
		return fmt.Errorf("listing active files: %w", err)
	}
	docs, err := a.cat.ListActiveDocuments(ctx)
	if err != nil {
		return fmt.Errorf("listing active documents: %w", err)
	}
	chunks, err := a.cat.ListActiveChunks(ctx)
	if err != nil {
		return fmt.Errorf("listing active chunks: %w", err)
	}
	freelist, pages, err := a.cat.FreelistStats(ctx)
	if err != nil {
		return fmt.Errorf("reading freelist stats: %w", err)
	}

	w.Statusf("", "roots: %v", cfg.Roots)
	w.Statusf("", "catalog: %s", cfg.Catalog.Path)
	w.Statusf("", "lock held by this process: %v", a.lock.Held())
	w.Statusf("", "active files: %d", len(files))
	w.Statusf("", "documents: %d", len(docs))
	w.Statusf("", "chunks: %d", len(chunks))
	w.Statusf("", "catalog pages: %d (freelist: %d)", pages, freelist)

	return nil
}
