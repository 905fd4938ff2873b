package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/rubiojr/logsearch/pkg/storage"
	"github.com/urfave/cli/v3"
)

// statsFacets are the fields counted for every collection.
var statsFacets = []string{core.FieldLevel, core.FieldHost}

// StatsCommand creates the stats command
func StatsCommand() *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show index statistics",
		Action: func(ctx context.Context, c *cli.Command) error {
			return showStats(ctx, c)
		},
	}
}

// showStats displays per-collection statistics of the embedded index and
// level and host counts from the search engine.
func showStats(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	idx, err := openIndex(cfg, true)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Printf("Warning: failed to close index: %v\n", err)
		}
	}()

	stats, err := idx.Stats(ctx)
	if err != nil {
		return fmt.Errorf("getting stats: %w", err)
	}

	facets, err := collectionFacets(ctx, idx, stats)
	if err != nil {
		return err
	}

	formatStats(os.Stdout, stats, facets)

	if last, err := idx.Metadata(ctx, lastImportKey); err == nil && last != "" {
		fmt.Printf("\nLast import: %s\n", last)
	}
	return nil
}

func collectionFacets(ctx context.Context, client query.Client, stats []storage.CollectionStats) (map[string]map[string]*query.FacetNode, error) {
	out := make(map[string]map[string]*query.FacetNode, len(stats))
	for _, s := range stats {
		engine := search.NewEngine(client, search.Config{Collection: s.Collection})
		facets, err := engine.Facets(ctx, core.SearchCriteria{}, statsFacets)
		if err != nil {
			return nil, fmt.Errorf("counting %s: %w", s.Collection, err)
		}
		out[s.Collection] = facets
	}
	return out, nil
}
