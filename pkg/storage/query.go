package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

// columns maps logical fields to first-class columns. Any other field is
// read from the JSON fields column.
var columns = map[string]string{
	core.FieldID:        "l.id",
	core.FieldLogTime:   "l.logtime",
	core.FieldSeqNum:    "l.seq_num",
	core.FieldHost:      "l.host",
	core.FieldComponent: "l.component",
	core.FieldLevel:     "l.level",
	core.FieldFile:      "l.path",
	core.FieldCluster:   "l.cluster",
	core.FieldMessage:   "l.message",
}

var extraField = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

const selectColumns = "l.id, l.logtime, l.seq_num, l.host, l.component, l.level, l.path, l.cluster, l.message, l.fields"

func column(field string) (string, error) {
	if c, ok := columns[field]; ok {
		return c, nil
	}
	if !extraField.MatchString(field) {
		return "", fmt.Errorf("invalid field name %q", field)
	}
	return fmt.Sprintf("json_extract(l.fields, '$.%s')", field), nil
}

// sqlValue converts a filter value to what the column stores.
func sqlValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case int:
		return int64(t)
	}
	return v
}

// where is a translated filter set.
type where struct {
	from string
	cond []string
	args []any
}

func (w *where) clause() string {
	return " FROM " + w.from + " WHERE " + strings.Join(w.cond, " AND ")
}

func translate(q *query.Query) (*where, error) {
	w := &where{from: "logs l", cond: []string{"l.collection = ?"}, args: []any{q.Collection}}
	if q.Keyword != "" {
		w.from = "logs l JOIN logs_fts ON logs_fts.rowid = l.rowid"
		w.cond = append(w.cond, "logs_fts MATCH ?")
		w.args = append(w.args, escapeFTS5Query(q.Keyword))
	}

	for _, f := range q.Filters {
		col, err := column(f.Field)
		if err != nil {
			return nil, err
		}
		switch f.Op {
		case query.OpEq:
			w.cond = append(w.cond, col+" = ?")
			w.args = append(w.args, sqlValue(f.Values[0]))
		case query.OpIn, query.OpNotIn:
			if len(f.Values) == 0 {
				if f.Op == query.OpIn {
					w.cond = append(w.cond, "0")
				}
				continue
			}
			op := " IN ("
			if f.Op == query.OpNotIn {
				op = " NOT IN ("
			}
			w.cond = append(w.cond, col+op+placeholders(len(f.Values))+")")
			for _, v := range f.Values {
				w.args = append(w.args, sqlValue(v))
			}
		case query.OpRange:
			if f.Low != nil {
				w.cond = append(w.cond, col+" >= ?")
				w.args = append(w.args, sqlValue(f.Low))
			}
			if f.High != nil {
				w.cond = append(w.cond, col+" <= ?")
				w.args = append(w.args, sqlValue(f.High))
			}
		default:
			return nil, fmt.Errorf("unsupported filter operator %v", f.Op)
		}
	}
	return w, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Query runs a structured query against the index.
func (i *Index) Query(ctx context.Context, q *query.Query) (*query.Result, error) {
	w, err := translate(q)
	if err != nil {
		return nil, err
	}

	res := &query.Result{}
	if err := i.db.QueryRowContext(ctx, "SELECT COUNT(*)"+w.clause(), w.args...).Scan(&res.Total); err != nil {
		return nil, fmt.Errorf("counting records: %w", err)
	}

	if q.Rows > 0 && res.Total > q.Start {
		res.Records, err = i.fetch(ctx, q, w)
		if err != nil {
			return nil, err
		}
	}

	if len(q.Facets) > 0 {
		res.Facets = make(map[string]*query.FacetNode, len(q.Facets))
		for _, spec := range q.Facets {
			node, err := i.facet(ctx, spec, w)
			if err != nil {
				return nil, err
			}
			res.Facets[spec] = node
		}
	}
	return res, nil
}

func (i *Index) fetch(ctx context.Context, q *query.Query, w *where) ([]core.LogRecord, error) {
	var order []string
	for _, s := range q.Sort {
		col, err := column(s.Field)
		if err != nil {
			return nil, err
		}
		dir := "ASC"
		if s.Direction == core.Descending {
			dir = "DESC"
		}
		order = append(order, col+" "+dir)
	}

	stmt := "SELECT " + selectColumns + w.clause()
	if len(order) > 0 {
		stmt += " ORDER BY " + strings.Join(order, ", ")
	}
	stmt += " LIMIT ? OFFSET ?"
	args := append(append([]any(nil), w.args...), q.Rows, q.Start)

	rows, err := i.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			i.logger.Warnf("failed to close rows: %v", err)
		}
	}()

	var records []core.LogRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func scanRecord(rows *sql.Rows) (core.LogRecord, error) {
	var r core.LogRecord
	var logtime int64
	var fields string
	if err := rows.Scan(&r.ID, &logtime, &r.SequenceNumber, &r.Host, &r.Component,
		&r.Level, &r.File, &r.Cluster, &r.Message, &fields); err != nil {
		return r, fmt.Errorf("scanning row: %w", err)
	}
	r.LogTime = time.UnixMilli(logtime).UTC()
	if fields != "" && fields != "{}" {
		if err := json.Unmarshal([]byte(fields), &r.Fields); err != nil {
			return r, fmt.Errorf("unmarshaling fields for record %s: %w", r.ID, err)
		}
	}
	return r, nil
}

// facet counts records grouped by the comma separated fields of spec.
func (i *Index) facet(ctx context.Context, spec string, w *where) (*query.FacetNode, error) {
	var cols []string
	for _, f := range strings.Split(spec, ",") {
		col, err := column(strings.TrimSpace(f))
		if err != nil {
			return nil, err
		}
		cols = append(cols, col)
	}
	group := strings.Join(cols, ", ")

	rows, err := i.db.QueryContext(ctx, "SELECT "+group+", COUNT(*)"+w.clause()+" GROUP BY "+group, w.args...)
	if err != nil {
		return nil, fmt.Errorf("counting facet %s: %w", spec, err)
	}
	defer rows.Close()

	root := &query.FacetNode{Name: spec}
	for rows.Next() {
		values := make([]sql.NullString, len(cols))
		dest := make([]any, len(cols)+1)
		for n := range values {
			dest[n] = &values[n]
		}
		var count int64
		dest[len(cols)] = &count
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scanning facet row: %w", err)
		}
		path := make([]string, len(values))
		for n, v := range values {
			path[n] = v.String
		}
		root.Add(count, path...)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	root.SortChildren()
	return root, nil
}

// escapeFTS5Query turns a keyword into a single FTS5 phrase so punctuation in
// log messages never parses as query syntax.
func escapeFTS5Query(keyword string) string {
	return `"` + strings.ReplaceAll(keyword, `"`, `""`) + `"`
}
