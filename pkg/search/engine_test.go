package search

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
	"github.com/rubiojr/logsearch/pkg/query/querytest"
)

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// record builds a service log line one second after t0 per sequence number.
func record(seq int64, message string) core.LogRecord {
	return core.LogRecord{
		ID:             fmt.Sprintf("log-%03d", seq),
		LogTime:        t0.Add(time.Duration(seq) * time.Second),
		SequenceNumber: seq,
		Host:           "h1",
		Component:      "ambari_server",
		Level:          "INFO",
		File:           "/var/log/ambari-server.log",
		Message:        message,
	}
}

// sequence returns records 1..n with the given messages by sequence number.
func sequence(n int, messages map[int64]string) []core.LogRecord {
	records := make([]core.LogRecord, 0, n)
	for seq := int64(1); seq <= int64(n); seq++ {
		msg := fmt.Sprintf("line %d", seq)
		if m, ok := messages[seq]; ok {
			msg = m
		}
		records = append(records, record(seq, msg))
	}
	return records
}

func criteria(page, rows int) core.SearchCriteria {
	return core.SearchCriteria{
		Page:        page,
		MaxRows:     rows,
		NumberRows:  core.DefaultRows,
		KeywordType: core.KeywordForward,
		Filters:     map[string][]string{},
	}
}

func seqs(records []core.LogRecord) []int64 {
	out := make([]int64, len(records))
	for i, r := range records {
		out[i] = r.SequenceNumber
	}
	return out
}

func seqRange(from, to int64) []int64 {
	var out []int64
	if from <= to {
		for s := from; s <= to; s++ {
			out = append(out, s)
		}
		return out
	}
	for s := from; s >= to; s-- {
		out = append(out, s)
	}
	return out
}

func expectKind(t *testing.T, err error, kind core.ErrorKind) {
	t.Helper()
	if err == nil {
		t.Fatalf("Expected %v error, got nil", kind)
	}
	if got := core.KindOf(err); got != kind {
		t.Fatalf("Expected %v error, got %v (%v)", kind, got, err)
	}
}

func TestResolvePageWindow(t *testing.T) {
	client := querytest.NewMemoryClient(sequence(25, nil)...)
	engine := NewEngine(client, Config{})

	tests := []struct {
		name string
		page int
		sort core.SortDirection
		want []int64
	}{
		{name: "first page newest first", page: 0, want: seqRange(25, 16)},
		{name: "second page", page: 1, want: seqRange(15, 6)},
		{name: "partial page", page: 2, want: seqRange(5, 1)},
		{name: "past the end", page: 7, want: []int64{}},
		{name: "ascending", page: 1, sort: core.Ascending, want: seqRange(11, 20)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := criteria(tt.page, 10)
			c.SortType = tt.sort
			page, err := engine.ResolvePage(context.Background(), c)
			if err != nil {
				t.Fatalf("ResolvePage failed: %v", err)
			}
			if len(page.Records) > page.PageSize {
				t.Errorf("page holds %d records, more than page size %d", len(page.Records), page.PageSize)
			}
			if page.StartIndex != c.Start() {
				t.Errorf("StartIndex: expected %d, got %d", c.Start(), page.StartIndex)
			}
			if page.TotalCount != 25 {
				t.Errorf("TotalCount: expected 25, got %d", page.TotalCount)
			}
			if got := seqs(page.Records); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("records: expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolvePageFilters(t *testing.T) {
	records := sequence(20, nil)
	for i := range records {
		if records[i].SequenceNumber%2 == 0 {
			records[i].Level = "ERROR"
		}
	}
	client := querytest.NewMemoryClient(records...)
	engine := NewEngine(client, Config{})

	c := criteria(0, 3).WithFilter(core.FieldLevel, "ERROR")
	from := t0.Add(5 * time.Second)
	to := t0.Add(15 * time.Second)
	c.From, c.To = &from, &to

	page, err := engine.ResolvePage(context.Background(), c)
	if err != nil {
		t.Fatalf("ResolvePage failed: %v", err)
	}
	if page.TotalCount != 5 {
		t.Errorf("TotalCount: expected 5 even records in [5,15], got %d", page.TotalCount)
	}
	if got, want := seqs(page.Records), []int64{14, 12, 10}; !reflect.DeepEqual(got, want) {
		t.Errorf("records: expected %v, got %v", want, got)
	}
}

func TestResolvePageFailure(t *testing.T) {
	backend := errors.New("index unavailable")
	client := querytest.NewMemoryClient(sequence(5, nil)...)
	client.Intercept = func(int, *query.Query) error { return backend }
	engine := NewEngine(client, Config{})

	_, err := engine.ResolvePage(context.Background(), criteria(0, 10))
	expectKind(t, err, core.KindSearchFailure)
	if !errors.Is(err, backend) {
		t.Errorf("backend error should be wrapped, got %v", err)
	}
	if client.Calls() != 1 {
		t.Errorf("expected a single query without retry, got %d", client.Calls())
	}
}

func TestResolvePageRejectsInvalidCriteria(t *testing.T) {
	client := querytest.NewMemoryClient(sequence(5, nil)...)
	engine := NewEngine(client, Config{})

	_, err := engine.ResolvePage(context.Background(), criteria(0, 0))
	expectKind(t, err, core.KindInvalidRequest)
	if client.Calls() != 0 {
		t.Errorf("invalid criteria must not reach the index, got %d queries", client.Calls())
	}
}

func TestResolveLastPage(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		rows      int
		sort      core.SortDirection
		wantStart int64
		want      []int64
	}{
		{name: "partial last page ascending", total: 25, rows: 10, sort: core.Ascending, wantStart: 20, want: seqRange(21, 25)},
		{name: "partial last page descending", total: 25, rows: 10, sort: core.Descending, wantStart: 20, want: seqRange(5, 1)},
		{name: "default direction is descending", total: 25, rows: 10, wantStart: 20, want: seqRange(5, 1)},
		{name: "exact multiple", total: 20, rows: 10, sort: core.Ascending, wantStart: 10, want: seqRange(11, 20)},
		{name: "single short page", total: 3, rows: 10, sort: core.Ascending, wantStart: 0, want: seqRange(1, 3)},
		{name: "page size one", total: 4, rows: 1, sort: core.Ascending, wantStart: 3, want: []int64{4}},
		{name: "empty", total: 0, rows: 10, sort: core.Ascending, wantStart: 0, want: []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := querytest.NewMemoryClient(sequence(tt.total, nil)...)
			engine := NewEngine(client, Config{})

			c := criteria(0, tt.rows)
			c.SortType = tt.sort
			page, err := engine.ResolveLastPage(context.Background(), c, core.FieldLogTime)
			if err != nil {
				t.Fatalf("ResolveLastPage failed: %v", err)
			}
			if page.StartIndex != tt.wantStart {
				t.Errorf("StartIndex: expected %d, got %d", tt.wantStart, page.StartIndex)
			}
			if page.TotalCount != int64(tt.total) || page.PageSize != tt.rows {
				t.Errorf("metadata: total=%d size=%d", page.TotalCount, page.PageSize)
			}
			got := seqs(page.Records)
			if len(tt.want) == 0 && len(got) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("records: expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestResolveLastPageMatchesForwardPaging(t *testing.T) {
	client := querytest.NewMemoryClient(sequence(47, nil)...)
	engine := NewEngine(client, Config{})
	ctx := context.Background()

	for _, dir := range []core.SortDirection{core.Ascending, core.Descending} {
		c := criteria(0, 10)
		c.SortType = dir
		last, err := engine.ResolveLastPage(ctx, c, "")
		if err != nil {
			t.Fatalf("ResolveLastPage failed: %v", err)
		}
		c.Page = int(last.StartIndex) / c.MaxRows
		page, err := engine.ResolvePage(ctx, c)
		if err != nil {
			t.Fatalf("ResolvePage failed: %v", err)
		}
		if !reflect.DeepEqual(seqs(last.Records), seqs(page.Records)) {
			t.Errorf("%s: last page %v differs from page %d %v", dir, seqs(last.Records), c.Page, seqs(page.Records))
		}
	}
}

func TestTail(t *testing.T) {
	records := sequence(150, nil)
	for seq := int64(151); seq <= 160; seq++ {
		r := record(seq, "other file")
		r.File = "/var/log/other.log"
		records = append(records, r)
	}
	client := querytest.NewMemoryClient(records...)
	engine := NewEngine(client, Config{})
	ctx := context.Background()

	tail := criteria(0, 10).
		WithFilter(core.FieldHost, "h1").
		WithFilter(core.FieldFile, "/var/log/ambari-server.log")

	t.Run("missing host", func(t *testing.T) {
		c := criteria(0, 10).WithFilter(core.FieldFile, "/var/log/ambari-server.log")
		_, err := engine.Tail(ctx, c)
		expectKind(t, err, core.KindInvalidRequest)
		var se *core.SearchError
		if errors.As(err, &se) && se.Param != "host" {
			t.Errorf("expected host parameter, got %q", se.Param)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		c := criteria(0, 10).WithFilter(core.FieldHost, "h1")
		_, err := engine.Tail(ctx, c)
		var se *core.SearchError
		if !errors.As(err, &se) || se.Kind != core.KindInvalidRequest || se.Param != "file" {
			t.Fatalf("expected invalid file parameter, got %v", err)
		}
	})

	if client.Calls() != 0 {
		t.Fatalf("invalid tail requests issued %d queries", client.Calls())
	}

	t.Run("default rows", func(t *testing.T) {
		c := tail
		c.NumberRows = 0
		page, err := engine.Tail(ctx, c)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if got, want := seqs(page.Records), seqRange(141, 150); !reflect.DeepEqual(got, want) {
			t.Errorf("records: expected %v, got %v", want, got)
		}
	})

	t.Run("capped rows", func(t *testing.T) {
		c := tail
		c.NumberRows = 500
		page, err := engine.Tail(ctx, c)
		if err != nil {
			t.Fatalf("Tail failed: %v", err)
		}
		if len(page.Records) != DefaultMaxTailRows {
			t.Fatalf("expected %d records, got %d", DefaultMaxTailRows, len(page.Records))
		}
		if first, last := page.Records[0].SequenceNumber, page.Records[len(page.Records)-1].SequenceNumber; first != 51 || last != 150 {
			t.Errorf("expected records 51..150 in order, got %d..%d", first, last)
		}
	})
}

func TestFacets(t *testing.T) {
	records := sequence(6, nil)
	records[0].Level = "ERROR"
	records[1].Level = "ERROR"
	records[2].Host = "h2"
	client := querytest.NewMemoryClient(records...)
	engine := NewEngine(client, Config{})

	facets, err := engine.Facets(context.Background(), criteria(0, 10), []string{core.FieldLevel, "host,level"})
	if err != nil {
		t.Fatalf("Facets failed: %v", err)
	}
	levels := facets[core.FieldLevel].Counts()
	if levels["ERROR"] != 2 || levels["INFO"] != 4 {
		t.Errorf("level counts: %v", levels)
	}
	if n, ok := facets["host,level"].Find("h1", "INFO"); !ok || n.Count != 3 {
		t.Errorf("pivot h1/INFO: %+v", n)
	}

	_, err = engine.Facets(context.Background(), criteria(0, 10), nil)
	expectKind(t, err, core.KindInvalidRequest)
}

func TestSince(t *testing.T) {
	client := querytest.NewMemoryClient(sequence(30, nil)...)
	engine := NewEngine(client, Config{})

	records, err := engine.Since(context.Background(), criteria(0, 10), 25, 3)
	if err != nil {
		t.Fatalf("Since failed: %v", err)
	}
	if got, want := seqs(records), []int64{26, 27, 28}; !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestLastSequence(t *testing.T) {
	client := querytest.NewMemoryClient()
	engine := NewEngine(client, Config{})

	seq, err := engine.LastSequence(context.Background())
	if err != nil || seq != 0 {
		t.Fatalf("Expected 0 on an empty collection, got %d (%v)", seq, err)
	}

	client.Add(core.CollectionService, sequence(12, nil)...)
	if seq, _ = engine.LastSequence(context.Background()); seq != 12 {
		t.Errorf("Expected last sequence 12, got %d", seq)
	}
}
