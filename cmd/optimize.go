package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/rubiojr/logsearch/pkg/storage"
	"github.com/urfave/cli/v3"
)

// OptimizeCommand creates the optimize command
func OptimizeCommand() *cli.Command {
	return &cli.Command{
		Name:  "optimize",
		Usage: "Index database optimization and maintenance commands",
		Commands: []*cli.Command{
			{
				Name:  "check",
				Usage: "Run integrity checks on the index",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "quick",
						Usage: "Skip the FTS5 consistency check",
						Value: false,
					},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					quick := c.Bool("quick")
					return withIndex(c, "Checking integrity", func(idx *storage.Index) error {
						if err := idx.IntegrityCheck(!quick); err != nil {
							return fmt.Errorf("%w\nTo fix FTS index corruption, run: logsearch optimize fts-rebuild", err)
						}
						return nil
					})
				},
			},
			{
				Name:  "fts-rebuild",
				Usage: "Rebuild the FTS5 message index",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withIndex(c, "Rebuilding FTS index", (*storage.Index).RebuildFTS)
				},
			},
			{
				Name:  "analyze",
				Usage: "Run ANALYZE to update query planner statistics",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withIndex(c, "Analyzing", (*storage.Index).Analyze)
				},
			},
			{
				Name:  "vacuum",
				Usage: "Run VACUUM to defragment the index",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withIndex(c, "Vacuuming", (*storage.Index).Vacuum)
				},
			},
			{
				Name:  "checkpoint",
				Usage: "Run WAL checkpoint to flush changes",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withIndex(c, "Checkpointing WAL", (*storage.Index).WALCheckpoint)
				},
			},
			{
				Name:  "all",
				Usage: "Run all optimization operations (analyze, checkpoint, optimize)",
				Action: func(ctx context.Context, c *cli.Command) error {
					return withIndex(c, "Optimizing", optimizeAll)
				},
			},
		},
	}
}

// optimizeAll runs all optimization operations
func optimizeAll(idx *storage.Index) error {
	steps := []struct {
		name string
		fn   func() error
	}{
		{"analyze", idx.Analyze},
		{"checkpoint", idx.WALCheckpoint},
		{"optimize", idx.Optimize},
	}
	for _, step := range steps {
		if err := step.fn(); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}
	return nil
}

// withIndex opens the embedded index, runs fn on it and reports the outcome.
func withIndex(c *cli.Command, action string, fn func(*storage.Index) error) error {
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

	fmt.Printf("%s %s... ", action, idx.Path())
	start := time.Now()
	if err := fn(idx); err != nil {
		fmt.Println("✗ FAILED")
		return err
	}
	fmt.Printf("✓ done in %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
