// Package storage implements the embedded log index: a SQLite database with
// an FTS5 table over log messages. Index satisfies query.Client so the search
// engine can run against it exactly as it runs against a remote engine.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/db"
	"github.com/rubiojr/logsearch/pkg/log"
)

// Index is a SQLite-backed log index.
type Index struct {
	db     *sql.DB
	path   string
	logger *log.Logger
}

// Open opens (creating if needed) the index at path and applies pending
// migrations.
func Open(path string) (*Index, error) {
	return open(path, true)
}

// OpenWithoutMigrations opens the index leaving its schema untouched, for
// tools that inspect or apply migrations themselves.
func OpenWithoutMigrations(path string) (*Index, error) {
	return open(path, false)
}

func open(path string, migrate bool) (*Index, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating index directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -64000", // 64MB cache
		"PRAGMA temp_store = memory",
		"PRAGMA mmap_size = 268435456", // 256MB mmap
	}
	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma); err != nil {
			conn.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if migrate {
		if err := db.InitializeDatabase(conn); err != nil {
			conn.Close()
			return nil, fmt.Errorf("initializing index schema: %w", err)
		}
	}

	return &Index{db: conn, path: path, logger: log.ForService("storage")}, nil
}

// Close closes the database.
func (i *Index) Close() error {
	return i.db.Close()
}

// DB returns the underlying database connection for migrations.
func (i *Index) DB() *sql.DB {
	return i.db
}

// Path returns the database file path.
func (i *Index) Path() string {
	return i.path
}

// StoreRecords indexes records into collection and returns how many were new.
//
// Records are immutable once stored: a record whose id already exists in the
// collection is skipped. Records without a sequence number are assigned the
// next one in the collection, in slice order.
func (i *Index) StoreRecords(ctx context.Context, collection string, records []core.LogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("beginning transaction: %w", err)
	}

	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				i.logger.Warnf("failed to rollback transaction: %v", err)
			}
		}
	}()

	var seq int64
	if err := tx.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(seq_num), 0) FROM logs WHERE collection = ?", collection,
	).Scan(&seq); err != nil {
		return 0, fmt.Errorf("reading last sequence number: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR IGNORE INTO logs (collection, id, logtime, seq_num, host, component, level, path, cluster, message, fields)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	ftsStmt, err := tx.PrepareContext(ctx, "INSERT INTO logs_fts (rowid, message) VALUES (?, ?)")
	if err != nil {
		return 0, fmt.Errorf("preparing FTS statement: %w", err)
	}
	defer ftsStmt.Close()

	stored := 0
	for _, r := range records {
		if r.ID == "" {
			return 0, errors.New("record without id")
		}
		prev := seq
		if r.SequenceNumber == 0 {
			seq++
			r.SequenceNumber = seq
		} else if r.SequenceNumber > seq {
			seq = r.SequenceNumber
		}

		fields := "{}"
		if len(r.Fields) > 0 {
			b, err := json.Marshal(r.Fields)
			if err != nil {
				return 0, fmt.Errorf("marshaling fields for record %s: %w", r.ID, err)
			}
			fields = string(b)
		}

		res, err := stmt.ExecContext(ctx,
			collection, r.ID, r.LogTime.UnixMilli(), r.SequenceNumber,
			r.Host, r.Component, r.Level, r.File, r.Cluster, r.Message, fields,
		)
		if err != nil {
			return 0, fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			// Skipped records give their sequence number back.
			seq = prev
			i.logger.Debugf("record %s already indexed, skipping", r.ID)
			continue
		}
		rowid, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("reading rowid of record %s: %w", r.ID, err)
		}
		if _, err := ftsStmt.ExecContext(ctx, rowid, r.Message); err != nil {
			return 0, fmt.Errorf("inserting record %s into FTS: %w", r.ID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing records: %w", err)
	}
	committed = true
	return stored, nil
}

// CollectionStats summarizes one collection.
type CollectionStats struct {
	Collection string
	Records    int64
	Oldest     time.Time
	Newest     time.Time
	LastSeq    int64
}

// Stats returns per-collection statistics ordered by collection name.
func (i *Index) Stats(ctx context.Context) ([]CollectionStats, error) {
	rows, err := i.db.QueryContext(ctx, `
		SELECT collection, COUNT(*), MIN(logtime), MAX(logtime), MAX(seq_num)
		FROM logs
		GROUP BY collection
		ORDER BY collection
	`)
	if err != nil {
		return nil, fmt.Errorf("querying stats: %w", err)
	}
	defer rows.Close()

	var stats []CollectionStats
	for rows.Next() {
		var s CollectionStats
		var oldest, newest int64
		if err := rows.Scan(&s.Collection, &s.Records, &oldest, &newest, &s.LastSeq); err != nil {
			return nil, fmt.Errorf("scanning stats row: %w", err)
		}
		s.Oldest = time.UnixMilli(oldest).UTC()
		s.Newest = time.UnixMilli(newest).UTC()
		stats = append(stats, s)
	}
	return stats, rows.Err()
}

// SetMetadata stores a key/value pair, e.g. the last import time.
func (i *Index) SetMetadata(ctx context.Context, key, value string) error {
	_, err := i.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO index_metadata (key, value, updated_at)
		VALUES (?, ?, ?)
	`, key, value, time.Now().UTC())
	return err
}

// Metadata returns the value stored under key, or "" if unset.
func (i *Index) Metadata(ctx context.Context, key string) (string, error) {
	var value string
	err := i.db.QueryRowContext(ctx, "SELECT value FROM index_metadata WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

func (i *Index) Optimize() error {
	_, err := i.db.Exec("PRAGMA optimize")
	return err
}

func (i *Index) Analyze() error {
	_, err := i.db.Exec("ANALYZE")
	return err
}

func (i *Index) Vacuum() error {
	_, err := i.db.Exec("VACUUM")
	return err
}

// IntegrityCheck runs SQLite's integrity check and, when deep is set, the
// FTS5 consistency check of the message index.
func (i *Index) IntegrityCheck(deep bool) error {
	var result string
	if err := i.db.QueryRow("PRAGMA integrity_check").Scan(&result); err != nil {
		return fmt.Errorf("running integrity check: %w", err)
	}
	if result != "ok" {
		return fmt.Errorf("integrity check: %s", result)
	}
	if !deep {
		return nil
	}
	if _, err := i.db.Exec("INSERT INTO logs_fts(logs_fts) VALUES('integrity-check')"); err != nil {
		return fmt.Errorf("fts integrity check: %w", err)
	}
	return nil
}

// RebuildFTS rebuilds the message index from the logs table.
func (i *Index) RebuildFTS() error {
	if _, err := i.db.Exec("INSERT INTO logs_fts(logs_fts) VALUES('rebuild')"); err != nil {
		return fmt.Errorf("rebuilding fts index: %w", err)
	}
	return nil
}

func (i *Index) WALCheckpoint() error {
	_, err := i.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return err
}
