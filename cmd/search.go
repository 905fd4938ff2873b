package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/urfave/cli/v3"
)

// SearchCommand creates the search command
func SearchCommand() *cli.Command {
	flags := append(criteriaFlags(),
		&cli.BoolFlag{
			Name:  "audit",
			Usage: "Search audit events instead of service logs",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Show record ids, files and extra fields",
		},
	)
	return &cli.Command{
		Name:  "search",
		Usage: "Show a page of log records",
		Description: `Resolves one page of records the way the API does: --last-page wins over
--source-log-id, which wins over --keyword, which wins over --page.`,
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return searchLogs(ctx, c)
		},
	}
}

func searchLogs(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	criteria, err := criteriaFromFlags(c, cfg.Search.DefaultRows)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	service, audit := newEngines(b.client, cfg)
	engine := service
	if c.Bool("audit") {
		engine = audit
	}

	if c.Bool("json") {
		var page any
		if c.Bool("audit") {
			page, err = search.NewAuditResolver(engine).Search(ctx, criteria)
		} else {
			page, err = search.NewServiceResolver(engine).Search(ctx, criteria)
		}
		if err != nil {
			return fmt.Errorf("searching %s: %w", engine.Collection(), err)
		}
		return printJSON(page)
	}

	page, err := search.NewResolver[core.LogRecord](engine, search.RecordMapper).Search(ctx, criteria)
	if err != nil {
		return fmt.Errorf("searching %s: %w", engine.Collection(), err)
	}
	printPage(os.Stdout, engine.Collection(), page, c.Bool("verbose"))
	return nil
}

// ScrollCommand creates the scroll command
func ScrollCommand() *cli.Command {
	flags := append(criteriaFlags(),
		&cli.StringFlag{
			Name:     "id",
			Usage:    "Anchor record id",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "scroll-type",
			Usage: "Neighbors to show: before, after, or both when unset",
		},
		&cli.IntFlag{
			Name:  "number-rows",
			Usage: "Neighbors per side",
		},
	)
	return &cli.Command{
		Name:  "scroll",
		Usage: "Show the records around a service log record",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return scrollLogs(ctx, c)
		},
	}
}

func scrollLogs(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	criteria, err := criteriaFromFlags(c, cfg.Search.DefaultRows)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	service, _ := newEngines(b.client, cfg)
	if c.Bool("json") {
		records, err := search.NewServiceResolver(service).Scroll(ctx, criteria)
		if err != nil {
			return fmt.Errorf("scrolling around %s: %w", criteria.ID, err)
		}
		return printJSON(records)
	}

	records, err := service.Scroll(ctx, criteria)
	if err != nil {
		return fmt.Errorf("scrolling around %s: %w", criteria.ID, err)
	}
	printRecords(os.Stdout, records, false)
	return nil
}

// TailCommand creates the tail command
func TailCommand() *cli.Command {
	flags := append(criteriaFlags(),
		&cli.IntFlag{
			Name:  "number-rows",
			Usage: "Number of lines to show",
		},
	)
	return &cli.Command{
		Name:  "tail",
		Usage: "Show the last lines of a log file",
		Flags: flags,
		Action: func(ctx context.Context, c *cli.Command) error {
			return tailLogs(ctx, c)
		},
	}
}

func tailLogs(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	criteria, err := criteriaFromFlags(c, cfg.Search.DefaultRows)
	if err != nil {
		return err
	}

	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	service, _ := newEngines(b.client, cfg)
	page, err := search.NewResolver[core.LogRecord](service, search.RecordMapper).Tail(ctx, criteria)
	if err != nil {
		if core.IsInvalidRequest(err) {
			return err
		}
		return fmt.Errorf("tailing %s: %w", criteria.Filter(core.FieldFile), err)
	}
	if c.Bool("json") {
		return printJSON(search.MapRecords[search.ServiceLog](page.Records, search.ServiceLogMapper))
	}
	printRecords(os.Stdout, page.Records, false)
	return nil
}
