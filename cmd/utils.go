package cmd

import (
	"context"
	"fmt"

	"github.com/rubiojr/logsearch/pkg/config"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/opensearch"
	"github.com/rubiojr/logsearch/pkg/query"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/rubiojr/logsearch/pkg/storage"
	"github.com/urfave/cli/v3"
)

// backend is the index the commands run against: the embedded SQLite index
// or a remote OpenSearch cluster.
type backend struct {
	client query.Client
	index  *storage.Index
	remote *opensearch.Client
}

// loadConfig loads the configuration named by --config and applies the
// logging settings, --debug forcing debug output on.
func loadConfig(c *cli.Command) (*config.Config, error) {
	cfg, err := config.LoadConfig(c.String("config"))
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	log.Configure(cfg.Debug || c.Bool("debug"), cfg.DebugServices)
	return cfg, nil
}

// openBackend opens the index configured in cfg.
func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Index.Backend {
	case config.BackendOpenSearch:
		client, err := opensearch.New(opensearch.Config{
			Addresses:          cfg.OpenSearch.Addresses,
			Username:           cfg.OpenSearch.Username,
			Password:           cfg.OpenSearch.Password,
			InsecureSkipVerify: cfg.OpenSearch.InsecureSkipVerify,
			Indices:            cfg.OpenSearch.Indices,
			FacetSize:          cfg.OpenSearch.FacetSize,
		})
		if err != nil {
			return nil, fmt.Errorf("creating opensearch client: %w", err)
		}
		return &backend{client: client, remote: client}, nil
	default:
		idx, err := storage.Open(cfg.Index.Path)
		if err != nil {
			return nil, fmt.Errorf("opening index %s: %w", cfg.Index.Path, err)
		}
		return &backend{client: idx, index: idx}, nil
	}
}

// openIndex opens the embedded index, failing for remote backends.
func openIndex(cfg *config.Config, migrate bool) (*storage.Index, error) {
	if cfg.Index.Backend != config.BackendSQLite {
		return nil, fmt.Errorf("command requires the %q index backend, configured backend is %q", config.BackendSQLite, cfg.Index.Backend)
	}
	open := storage.OpenWithoutMigrations
	if migrate {
		open = storage.Open
	}
	idx, err := open(cfg.Index.Path)
	if err != nil {
		return nil, fmt.Errorf("opening index %s: %w", cfg.Index.Path, err)
	}
	return idx, nil
}

func (b *backend) Close() error {
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// store writes records to the backend and returns how many were new.
func (b *backend) store(ctx context.Context, collection string, records []core.LogRecord) (int, error) {
	if b.index != nil {
		return b.index.StoreRecords(ctx, collection, records)
	}
	return b.remote.StoreRecords(ctx, collection, records)
}

// newEngines creates the service and audit engines over client. Both share
// one cancellation registry so scan tokens are unique across collections.
func newEngines(client query.Client, cfg *config.Config) (*search.Engine, *search.Engine) {
	registry := search.NewCancellationRegistry()
	service := search.NewEngine(client, search.Config{
		Collection:    core.CollectionService,
		TieGroupLimit: cfg.Search.TieGroupLimit,
		MaxTailRows:   cfg.Search.MaxTailRows,
		Registry:      registry,
	})
	audit := search.NewEngine(client, search.Config{
		Collection:    core.CollectionAudit,
		TieGroupLimit: cfg.Search.TieGroupLimit,
		MaxTailRows:   cfg.Search.MaxTailRows,
		Registry:      registry,
	})
	return service, audit
}

// flagParams maps command line flags onto search request parameters.
var flagParams = map[string]string{
	"keyword":       "keyword",
	"page":          "page",
	"rows":          "pageSize",
	"source-log-id": "sourceLogId",
	"from":          "from",
	"to":            "to",
	"sort-by":       "sortBy",
	"sort-type":     "sortType",
	"host":          "host",
	"component":     "component",
	"level":         "level",
	"file":          "file",
	"cluster":       "cluster",
	"user":          "user",
	"id":            "id",
	"scroll-type":   "scrollType",
	"number-rows":   "numberRows",
}

func criteriaFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "keyword", Aliases: []string{"k"}, Usage: "Find the next page containing this phrase"},
		&cli.BoolFlag{Name: "backward", Usage: "Search the keyword towards older pages"},
		&cli.IntFlag{Name: "page", Aliases: []string{"p"}, Usage: "Page number (0 based)"},
		&cli.IntFlag{Name: "rows", Aliases: []string{"n"}, Usage: "Page size"},
		&cli.BoolFlag{Name: "last-page", Usage: "Show the last page"},
		&cli.StringFlag{Name: "source-log-id", Usage: "Show the page containing this record id"},
		&cli.StringFlag{Name: "from", Usage: "Start time (RFC3339, date or epoch milliseconds)"},
		&cli.StringFlag{Name: "to", Usage: "End time (RFC3339, date or epoch milliseconds)"},
		&cli.StringFlag{Name: "sort-by", Usage: "Primary sort field"},
		&cli.StringFlag{Name: "sort-type", Usage: "Sort direction (asc or desc)"},
		&cli.StringSliceFlag{Name: "host", Usage: "Filter by host (repeatable)"},
		&cli.StringSliceFlag{Name: "component", Usage: "Filter by component (repeatable)"},
		&cli.StringSliceFlag{Name: "level", Usage: "Filter by level (repeatable)"},
		&cli.StringSliceFlag{Name: "file", Usage: "Filter by log file path (repeatable)"},
		&cli.StringSliceFlag{Name: "cluster", Usage: "Filter by cluster (repeatable)"},
		&cli.StringSliceFlag{Name: "user", Usage: "Filter audit events by user (repeatable)"},
		&cli.BoolFlag{Name: "json", Usage: "Output JSON"},
	}
}

// criteriaFromFlags builds search criteria from the flags set on c, with the
// same parsing and validation as API requests.
func criteriaFromFlags(c *cli.Command, defaultRows int) (core.SearchCriteria, error) {
	params := make(map[string][]string)
	for flag, param := range flagParams {
		if !c.IsSet(flag) {
			continue
		}
		switch v := c.Value(flag).(type) {
		case []string:
			params[param] = v
		default:
			params[param] = []string{fmt.Sprint(v)}
		}
	}
	if c.Bool("backward") {
		params["keywordType"] = []string{"0"}
	}
	if c.Bool("last-page") {
		params["isLastPage"] = []string{"true"}
	}
	return core.ParseCriteria(params, defaultRows)
}
