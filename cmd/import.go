package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/urfave/cli/v3"
	"github.com/valyala/fastjson"
)

const (
	lastImportKey   = "last_import"
	importBatchSize = 1000
	maxLineSize     = 4 * 1024 * 1024
)

// ImportCommand creates the import command
func ImportCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Index JSON lines log records",
		ArgsUsage: "[file ...]",
		Description: `Reads one JSON object per line from the given files, or stdin when none
are given. Files ending in .gz or .zst are decompressed. Records without an
id get a random one; records without a sequence number are numbered in
input order after the newest stored record.`,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "audit",
				Usage: "Import into the audit collection",
			},
			&cli.IntFlag{
				Name:  "batch-size",
				Usage: "Records per write",
				Value: importBatchSize,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return importRecords(ctx, c)
		},
	}
}

func importRecords(ctx context.Context, c *cli.Command) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	b, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer b.Close()

	collection := core.CollectionService
	if c.Bool("audit") {
		collection = core.CollectionAudit
	}
	imp := &importer{
		store: func(ctx context.Context, records []core.LogRecord) (int, error) {
			return b.store(ctx, collection, records)
		},
		batchSize: c.Int("batch-size"),
		logger:    log.ForService("import"),
	}

	files := c.Args().Slice()
	if len(files) == 0 {
		files = []string{"-"}
	}
	start := time.Now()
	for _, name := range files {
		if err := imp.importFile(ctx, name); err != nil {
			return err
		}
	}

	if b.index != nil {
		if err := b.index.SetMetadata(ctx, lastImportKey, time.Now().UTC().Format(time.RFC3339)); err != nil {
			imp.logger.Warnf("Failed to record import time: %v", err)
		}
	}
	fmt.Printf("Imported %d new records into %s (%d read, %d skipped) in %v\n",
		imp.stored, collection, imp.read, imp.skipped, time.Since(start).Round(time.Millisecond))
	return nil
}

// importer decodes JSON lines into records and stores them in batches.
type importer struct {
	store     func(context.Context, []core.LogRecord) (int, error)
	batchSize int
	parsers   fastjson.ParserPool
	logger    *log.Logger

	read    int
	stored  int
	skipped int
}

func (imp *importer) importFile(ctx context.Context, name string) error {
	r, closeFn, err := openInput(name)
	if err != nil {
		return err
	}
	defer closeFn()

	if err := imp.importReader(ctx, r); err != nil {
		return fmt.Errorf("importing %s: %w", name, err)
	}
	return nil
}

func (imp *importer) importReader(ctx context.Context, r io.Reader) error {
	if imp.batchSize <= 0 {
		imp.batchSize = importBatchSize
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	batch := make([]core.LogRecord, 0, imp.batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := imp.store(ctx, batch)
		if err != nil {
			return err
		}
		imp.stored += n
		imp.logger.Debugf("Stored %d of %d records", n, len(batch))
		batch = batch[:0]
		return nil
	}

	line := 0
	for scanner.Scan() {
		line++
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		imp.read++
		rec, err := imp.parseLine(raw)
		if err != nil {
			imp.skipped++
			imp.logger.Warnf("Skipping line %d: %v", line, err)
			continue
		}
		batch = append(batch, rec)
		if len(batch) >= imp.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading line %d: %w", line+1, err)
	}
	return flush()
}

// parseLine decodes one JSON object. Known keys fill the record; anything
// else is kept in Fields.
func (imp *importer) parseLine(raw string) (core.LogRecord, error) {
	p := imp.parsers.Get()
	defer imp.parsers.Put(p)

	v, err := p.Parse(raw)
	if err != nil {
		return core.LogRecord{}, err
	}
	obj, err := v.Object()
	if err != nil {
		return core.LogRecord{}, fmt.Errorf("not a JSON object")
	}

	var rec core.LogRecord
	var parseErr error
	obj.Visit(func(key []byte, val *fastjson.Value) {
		if parseErr != nil {
			return
		}
		switch k := string(key); k {
		case "id":
			rec.ID = jsonString(val)
		case "logtime", "evtTime", "timestamp":
			rec.LogTime, parseErr = jsonTime(val)
		case "seq_num", "sequenceNumber":
			rec.SequenceNumber, parseErr = val.Int64()
		case "host":
			rec.Host = jsonString(val)
		case "type", "component":
			rec.Component = jsonString(val)
		case "level":
			rec.Level = jsonString(val)
		case "path", "file":
			rec.File = jsonString(val)
		case "cluster":
			rec.Cluster = jsonString(val)
		case "log_message", "message":
			rec.Message = jsonString(val)
		default:
			if rec.Fields == nil {
				rec.Fields = make(map[string]any)
			}
			rec.Fields[k] = jsonValue(val)
		}
	})
	if parseErr != nil {
		return core.LogRecord{}, parseErr
	}
	if rec.LogTime.IsZero() {
		return core.LogRecord{}, fmt.Errorf("missing logtime")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	rec.LogTime = core.TruncateToMillis(rec.LogTime)
	return rec, nil
}

func jsonString(v *fastjson.Value) string {
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return strings.Trim(v.String(), `"`)
}

func jsonTime(v *fastjson.Value) (time.Time, error) {
	switch v.Type() {
	case fastjson.TypeNumber:
		ms, err := v.Int64()
		if err != nil {
			return time.Time{}, fmt.Errorf("logtime: %w", err)
		}
		return time.UnixMilli(ms).UTC(), nil
	case fastjson.TypeString:
		t, err := core.ParseTimestamp(string(v.GetStringBytes()))
		if err != nil {
			return time.Time{}, fmt.Errorf("logtime: %w", err)
		}
		return t, nil
	default:
		return time.Time{}, fmt.Errorf("logtime: unexpected %s", v.Type())
	}
}

func jsonValue(v *fastjson.Value) any {
	switch v.Type() {
	case fastjson.TypeString:
		return string(v.GetStringBytes())
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return n
		}
		return v.GetFloat64()
	case fastjson.TypeTrue:
		return true
	case fastjson.TypeFalse:
		return false
	case fastjson.TypeNull:
		return nil
	default:
		return v.String()
	}
}

// openInput opens name for reading, "-" meaning stdin, decompressing by
// file extension.
func openInput(name string) (io.Reader, func(), error) {
	if name == "-" {
		return os.Stdin, func() {}, nil
	}
	f, err := os.Open(name)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", name, err)
	}

	switch {
	case strings.HasSuffix(name, ".gz"):
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("opening gzip stream %s: %w", name, err)
		}
		return zr, func() { zr.Close(); f.Close() }, nil
	case strings.HasSuffix(name, ".zst"):
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, nil, fmt.Errorf("opening zstd stream %s: %w", name, err)
		}
		return zr, func() { zr.Close(); f.Close() }, nil
	default:
		return f, func() { f.Close() }, nil
	}
}
