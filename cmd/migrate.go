package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rubiojr/logsearch/pkg/config"
	"github.com/rubiojr/logsearch/pkg/db"
	"github.com/urfave/cli/v3"
)

// MigrateCommand creates the migrate command
func MigrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Run index database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "status",
				Usage: "Show migration status without applying migrations",
				Value: false,
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "Read NNN_name.sql migrations from this directory instead of the built-in set",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}
			return RunMigrations(cfg, c.Bool("status"), c.String("dir"))
		},
	}
}

// RunMigrations shows or applies the pending migrations of the embedded index.
// A non-empty dir replaces the built-in migrations with the ones found there.
func RunMigrations(cfg *config.Config, statusOnly bool, dir string) error {
	if _, err := os.Stat(cfg.Index.Path); os.IsNotExist(err) {
		fmt.Printf("Index does not exist, it will be created on first use: %s\n", cfg.Index.Path)
		return nil
	}

	idx, err := openIndex(cfg, false)
	if err != nil {
		return err
	}
	defer func() {
		if err := idx.Close(); err != nil {
			fmt.Printf("Warning: failed to close index: %v\n", err)
		}
	}()

	manager := db.NewMigrationManager(idx.DB())
	if dir != "" {
		manager = db.NewMigrationManagerFromPath(idx.DB(), dir)
	}
	if statusOnly {
		if err := showMigrationStatus(manager); err != nil {
			return fmt.Errorf("showing migration status: %w", err)
		}
		return nil
	}

	applied, err := manager.ApplyPendingMigrations()
	if err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	if applied == 0 {
		fmt.Println("Index is up to date")
	} else {
		fmt.Printf("Applied %d migration(s) to %s\n", applied, cfg.Index.Path)
	}
	return nil
}

// showMigrationStatus displays the current migration status
func showMigrationStatus(manager *db.MigrationManager) error {
	status, err := manager.GetMigrationStatus()
	if err != nil {
		return err
	}

	fmt.Printf("Available migrations: %d\n", len(status.Available))
	fmt.Printf("Applied migrations: %d\n", len(status.Applied))
	for _, migration := range status.Applied {
		appliedTime := "unknown"
		if migration.AppliedAt != nil {
			appliedTime = migration.AppliedAt.Format("2006-01-02 15:04:05")
		}
		fmt.Printf("  ✓ %03d: %s (applied: %s)\n", migration.Version, migration.Name, appliedTime)
	}

	fmt.Printf("Pending migrations: %d\n", len(status.Pending))
	for _, migration := range status.Pending {
		fmt.Printf("  • %03d: %s\n", migration.Version, migration.Name)
	}

	if len(status.Pending) == 0 {
		fmt.Println("  (none - index is up to date)")
	}
	return nil
}
