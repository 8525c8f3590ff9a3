package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/gaspardpetit/findx/internal/config"
	findxerrors "github.com/gaspardpetit/findx/internal/errors"
	"github.com/gaspardpetit/findx/internal/output"
	"github.com/gaspardpetit/findx/internal/search"
)

func newQueryCmd() *cobra.Command {
	var mode string
	var chunks bool
	var topK int

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Search the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), strings.Join(args, " "), mode, chunks, topK)
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "keyword", "search mode: keyword, semantic, or hybrid")
	cmd.Flags().BoolVar(&chunks, "chunks", false, "search at chunk granularity instead of document granularity (ignored for semantic/hybrid, which are always chunk-granularity)")
	cmd.Flags().IntVar(&topK, "top-k", search.DefaultLimit, "maximum number of results to return")

	return cmd
}

// runQuery is not lock-serialized: it only reads from the catalog and
// search indices, so it can run concurrently with "watch" or another
// "query".
func runQuery(ctx context.Context, query, mode string, chunks bool, topK int) error {
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
		return findxerrors.NewConfigError(fmt.Sprintf("unknown query mode %q (want keyword, semantic, or hybrid)", mode), nil)
	}

	return nil
}

func printDocResults(w *output.Writer, results []search.DocResult) {
	if len(results) == 0 {
		w.Status("", "no matches")
		return
	}
	for _, r := range results {
		w.Statusf("", "%6.3f  %s", r.Score, r.Path)
	}
}

func printChunkResults(w *output.Writer, results []search.ChunkResult) {
	if len(results) == 0 {
		w.Status("", "no matches")
		return
	}
	for _, r := range results {
		w.Statusf("", "%6.3f  %s [%d:%d]", r.Score, r.Path, r.StartByte, r.EndByte)
	}
}
