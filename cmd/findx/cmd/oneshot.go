package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/findx/internal/config"
	"github.com/gaspardpetit/findx/internal/output"
	"github.com/gaspardpetit/findx/internal/search"
)

func newOneshotCmd() *cobra.Command {
	var mode string
	var chunks bool
	var topK int

	cmd := &cobra.Command{
		Use:   "oneshot <text>",
		Short: "Index once, then run a single query against the fresh index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOneshot(cmd.Context(), strings.Join(args, " "), mode, chunks, topK)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "keyword", "search mode: keyword, semantic, or hybrid")
	cmd.Flags().BoolVar(&chunks, "chunks", false, "search at chunk granularity instead of document granularity")
	cmd.Flags().IntVar(&topK, "top-k", search.DefaultLimit, "maximum number of results to return")

	return cmd
}

// runOneshot composes index and query under a single lock hold, matching
// a caller that wants an up-to-date index and an answer in one process
// lifetime rather than two.
func runOneshot(ctx context.Context, query, mode string, chunks bool, topK int) error {
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

	switch mode {
	case "keyword":
		if chunks {
			results, err := a.search.SearchChunksKeyword(ctx, query, topK)
			if err != nil {
				return err
			}
			printChunkResults(w, results)
			return nil
		}
		results, err := a.search.SearchDocs(ctx, query, topK)
		if err != nil {
			return err
		}
		printDocResults(w, results)
	case "semantic":
		results, err := a.search.SearchChunksSemantic(ctx, query, topK)
		if err != nil {
			return err
		}
		printChunkResults(w, results)
	case "hybrid":
		results, err := a.search.SearchChunksHybrid(ctx, query, topK)
		if err != nil {
			return err
		}
		printChunkResults(w, results)
	default:
		return fmt.Errorf("unknown query mode %q (want keyword, semantic, or hybrid)", mode)
	}

	return nil
}
