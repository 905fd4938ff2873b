package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

var base = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func openIndex(t *testing.T) *Index {
	t.Helper()
	idx, err := Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })
	return idx
}

func testRecords(n int) []core.LogRecord {
	records := make([]core.LogRecord, n)
	for i := range records {
		level := "INFO"
		if i%3 == 0 {
			level = "ERROR"
		}
		host := "c7401"
		if i%2 == 1 {
			host = "c7402"
		}
		records[i] = core.LogRecord{
			ID:        fmt.Sprintf("r%02d", i+1),
			LogTime:   base.Add(time.Duration(i) * time.Second),
			Host:      host,
			Component: "ambari_server",
			Level:     level,
			File:      "/var/log/ambari-server/ambari-server.log",
			Message:   fmt.Sprintf("message number %d", i+1),
		}
	}
	return records
}

func TestStoreRecordsAssignsSequence(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	stored, err := idx.StoreRecords(ctx, core.CollectionService, testRecords(5))
	if err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}
	if stored != 5 {
		t.Errorf("Expected 5 stored records, got %d", stored)
	}

	// Re-importing is a no-op; records are immutable.
	again := testRecords(6)
	again[0].Message = "changed"
	stored, err = idx.StoreRecords(ctx, core.CollectionService, again)
	if err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}
	if stored != 1 {
		t.Errorf("Expected only the new record to be stored, got %d", stored)
	}

	res, err := idx.Query(ctx, (&query.Query{Collection: core.CollectionService}).
		OrderBy(query.Sort{Field: core.FieldSeqNum, Direction: core.Ascending}).
		Window(0, 10))
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.Total != 6 {
		t.Fatalf("Expected 6 records, got %d", res.Total)
	}
	for i, r := range res.Records {
		if r.SequenceNumber != int64(i+1) {
			t.Errorf("Record %s: expected seq %d, got %d", r.ID, i+1, r.SequenceNumber)
		}
	}
	if res.Records[0].Message != "message number 1" {
		t.Errorf("Stored record was modified: %q", res.Records[0].Message)
	}
	if !res.Records[2].LogTime.Equal(base.Add(2 * time.Second)) {
		t.Errorf("LogTime round trip: got %v", res.Records[2].LogTime)
	}

	// A skipped duplicate does not move the sequence, even with its own number.
	dup := testRecords(1)[0]
	dup.SequenceNumber = 100
	next := testRecords(7)[6]
	if _, err := idx.StoreRecords(ctx, core.CollectionService, []core.LogRecord{dup, next}); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}
	res, err = idx.Query(ctx, (&query.Query{Collection: core.CollectionService}).
		Where(query.Eq(core.FieldID, "r07")).
		Window(0, 1))
	if err != nil || len(res.Records) != 1 {
		t.Fatalf("Query r07: %v", err)
	}
	if res.Records[0].SequenceNumber != 7 {
		t.Errorf("Expected r07 to get seq 7, got %d", res.Records[0].SequenceNumber)
	}
}

func TestQueryFilters(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()

	records := testRecords(12)
	records[4].Fields = map[string]any{"reqUser": "admin"}
	if _, err := idx.StoreRecords(ctx, core.CollectionService, records); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}
	if _, err := idx.StoreRecords(ctx, core.CollectionAudit, testRecords(3)); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}

	tests := []struct {
		name    string
		keyword string
		filters []query.Filter
		want    int64
	}{
		{name: "collection only", want: 12},
		{name: "equality", filters: []query.Filter{query.Eq(core.FieldLevel, "ERROR")}, want: 4},
		{name: "in", filters: []query.Filter{query.In(core.FieldID, "r01", "r02", "r99")}, want: 2},
		{name: "not in", filters: []query.Filter{query.NotIn(core.FieldID, "r01", "r02")}, want: 10},
		{name: "empty in", filters: []query.Filter{query.In(core.FieldID)}, want: 0},
		{name: "time range", filters: []query.Filter{query.Range(core.FieldLogTime, base.Add(2*time.Second), base.Add(5*time.Second))}, want: 4},
		{name: "open range", filters: []query.Filter{query.Range(core.FieldSeqNum, int64(10), nil)}, want: 3},
		{name: "extra field", filters: []query.Filter{query.Eq("reqUser", "admin")}, want: 1},
		{name: "keyword", keyword: "number 7", want: 1},
		{name: "keyword with quotes", keyword: `number "7"`, want: 1},
		{name: "keyword is a phrase", keyword: "7 number", want: 0},
		{name: "keyword and filter", keyword: "message", filters: []query.Filter{query.Eq(core.FieldHost, "c7402")}, want: 6},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := &query.Query{Collection: core.CollectionService, Keyword: tt.keyword}
			q.Where(tt.filters...)
			res, err := idx.Query(ctx, q)
			if err != nil {
				t.Fatalf("Query failed: %v", err)
			}
			if res.Total != tt.want {
				t.Errorf("Expected %d matches, got %d", tt.want, res.Total)
			}
			if len(res.Records) != 0 {
				t.Errorf("Rows=0 should only count, got %d records", len(res.Records))
			}
		})
	}
}

func TestQueryRejectsInvalidField(t *testing.T) {
	idx := openIndex(t)
	q := (&query.Query{Collection: core.CollectionService}).Where(query.Eq("x') OR 1=1 --", "y"))
	if _, err := idx.Query(context.Background(), q); err == nil {
		t.Fatal("Expected invalid field name to be rejected")
	}
}

func TestQuerySortAndWindow(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	if _, err := idx.StoreRecords(ctx, core.CollectionService, testRecords(10)); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}

	q := (&query.Query{Collection: core.CollectionService}).
		OrderBy(
			query.Sort{Field: core.FieldLogTime, Direction: core.Descending},
			query.Sort{Field: core.FieldSeqNum, Direction: core.Descending},
		).
		Window(3, 4)
	res, err := idx.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if res.Total != 10 || len(res.Records) != 4 {
		t.Fatalf("Expected 4 of 10 records, got %d of %d", len(res.Records), res.Total)
	}
	if res.Records[0].ID != "r07" || res.Records[3].ID != "r04" {
		t.Errorf("Unexpected window: %s..%s", res.Records[0].ID, res.Records[3].ID)
	}

	q.Window(20, 4)
	res, err = idx.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(res.Records) != 0 || res.Total != 10 {
		t.Errorf("Window past the end: %d records of %d", len(res.Records), res.Total)
	}
}

func TestQueryFacets(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	if _, err := idx.StoreRecords(ctx, core.CollectionService, testRecords(12)); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}

	q := &query.Query{Collection: core.CollectionService, Facets: []string{core.FieldLevel, "host,level"}}
	res, err := idx.Query(ctx, q)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}

	levels := res.Facets[core.FieldLevel]
	if levels.Count != 12 {
		t.Errorf("Facet root should count all records, got %d", levels.Count)
	}
	if got := levels.Counts(); got["ERROR"] != 4 || got["INFO"] != 8 {
		t.Errorf("Level counts: %v", got)
	}
	// Indexes 0, 6 are ERROR on c7401; 3, 9 are ERROR on c7402.
	if n, ok := res.Facets["host,level"].Find("c7401", "ERROR"); !ok || n.Count != 2 {
		t.Errorf("Pivot c7401/ERROR: %+v", n)
	}
	if levels.Children[0].Name != "INFO" {
		t.Errorf("Buckets should be sorted by count, got %s first", levels.Children[0].Name)
	}
}

func TestStatsAndMetadata(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	if _, err := idx.StoreRecords(ctx, core.CollectionService, testRecords(4)); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}

	stats, err := idx.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if len(stats) != 1 || stats[0].Records != 4 || stats[0].LastSeq != 4 {
		t.Fatalf("Unexpected stats: %+v", stats)
	}
	if !stats[0].Oldest.Equal(base) || !stats[0].Newest.Equal(base.Add(3*time.Second)) {
		t.Errorf("Unexpected time range: %v - %v", stats[0].Oldest, stats[0].Newest)
	}

	if v, err := idx.Metadata(ctx, "last_import"); err != nil || v != "" {
		t.Errorf("Expected empty metadata, got %q (%v)", v, err)
	}
	if err := idx.SetMetadata(ctx, "last_import", "2024-03-01"); err != nil {
		t.Fatalf("SetMetadata failed: %v", err)
	}
	if v, _ := idx.Metadata(ctx, "last_import"); v != "2024-03-01" {
		t.Errorf("Metadata: got %q", v)
	}

	if err := idx.Optimize(); err != nil {
		t.Errorf("Optimize failed: %v", err)
	}
	if err := idx.WALCheckpoint(); err != nil {
		t.Errorf("WALCheckpoint failed: %v", err)
	}
}

func TestMaintenance(t *testing.T) {
	idx := openIndex(t)
	ctx := context.Background()
	if _, err := idx.StoreRecords(ctx, core.CollectionService, testRecords(6)); err != nil {
		t.Fatalf("StoreRecords failed: %v", err)
	}

	if err := idx.IntegrityCheck(true); err != nil {
		t.Fatalf("IntegrityCheck failed: %v", err)
	}
	if err := idx.RebuildFTS(); err != nil {
		t.Fatalf("RebuildFTS failed: %v", err)
	}
	if err := idx.Analyze(); err != nil {
		t.Errorf("Analyze failed: %v", err)
	}
	if err := idx.Vacuum(); err != nil {
		t.Errorf("Vacuum failed: %v", err)
	}

	res, err := idx.Query(ctx, &query.Query{Collection: core.CollectionService, Keyword: "message", Rows: 10})
	if err != nil {
		t.Fatalf("Query after rebuild failed: %v", err)
	}
	if res.Total != 6 {
		t.Errorf("Expected 6 keyword hits after rebuild, got %d", res.Total)
	}
}

func TestOpenWithoutMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.db")
	idx, err := OpenWithoutMigrations(path)
	if err != nil {
		t.Fatalf("OpenWithoutMigrations failed: %v", err)
	}
	defer idx.Close()

	var n int
	if err := idx.DB().QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE name = 'logs'").Scan(&n); err != nil {
		t.Fatalf("Querying schema failed: %v", err)
	}
	if n != 0 {
		t.Errorf("Expected no logs table before migrations, got %d", n)
	}
}

func TestEscapeFTS5Query(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{input: "ERROR", expected: `"ERROR"`},
		{input: "connection refused", expected: `"connection refused"`},
		{input: `say "hi"`, expected: `"say ""hi"""`},
		{input: "host:c7401 AND level:*", expected: `"host:c7401 AND level:*"`},
	}
	for _, tt := range tests {
		if got := escapeFTS5Query(tt.input); got != tt.expected {
			t.Errorf("escapeFTS5Query(%q) = %s, expected %s", tt.input, got, tt.expected)
		}
	}
}
