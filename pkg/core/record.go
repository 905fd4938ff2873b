package core

import (
	"fmt"
	"strings"
	"time"
)

// Logical field names shared by every index backend. Backends map them onto
// their own columns or document properties.
const (
	FieldID        = "id"
	FieldLogTime   = "logtime"
	FieldSeqNum    = "seq_num"
	FieldHost      = "host"
	FieldComponent = "type"
	FieldLevel     = "level"
	FieldFile      = "path"
	FieldCluster   = "cluster"
	FieldMessage   = "log_message"
)

// Collections held by the index.
const (
	CollectionService = "service_logs"
	CollectionAudit   = "audit_logs"
)

// Cursor is the (logTime, sequenceNumber) pair that totally orders records
// sharing the same primary sort field.
type Cursor struct {
	LogTime        time.Time
	SequenceNumber int64
}

// Compare returns -1, 0 or +1 comparing c and o lexicographically.
func (c Cursor) Compare(o Cursor) int {
	switch {
	case c.LogTime.Before(o.LogTime):
		return -1
	case c.LogTime.After(o.LogTime):
		return 1
	case c.SequenceNumber < o.SequenceNumber:
		return -1
	case c.SequenceNumber > o.SequenceNumber:
		return 1
	}
	return 0
}

// Less reports whether c sorts before o.
func (c Cursor) Less(o Cursor) bool {
	return c.Compare(o) < 0
}

// LogRecord is a single indexed log document. Records are written by an
// external ingestion pipeline and never mutated by the search layer.
//
// LogTime has millisecond resolution and is not unique; SequenceNumber breaks
// ties between records sharing a LogTime.
type LogRecord struct {
	ID             string
	LogTime        time.Time
	SequenceNumber int64
	Host           string
	Component      string
	Level          string
	File           string
	Cluster        string
	Message        string
	Fields         map[string]any
}

// Cursor returns the record's position in the canonical order.
func (r LogRecord) Cursor() Cursor {
	return Cursor{LogTime: r.LogTime, SequenceNumber: r.SequenceNumber}
}

// Field returns the value of a logical field, falling back to Fields for
// anything that is not a first-class attribute.
func (r LogRecord) Field(name string) (any, bool) {
	switch name {
	case FieldID:
		return r.ID, true
	case FieldLogTime:
		return r.LogTime, true
	case FieldSeqNum:
		return r.SequenceNumber, true
	case FieldHost:
		return r.Host, true
	case FieldComponent:
		return r.Component, true
	case FieldLevel:
		return r.Level, true
	case FieldFile:
		return r.File, true
	case FieldCluster:
		return r.Cluster, true
	case FieldMessage:
		return r.Message, true
	}
	v, ok := r.Fields[name]
	return v, ok
}

// Summary returns a one-line rendering of the record.
func (r LogRecord) Summary() string {
	return fmt.Sprintf("%s %-5s [%s@%s] %s",
		r.LogTime.UTC().Format("2006-01-02 15:04:05.000"), r.Level, r.Component, r.Host, firstLine(r.Message))
}

// PrettyText returns a multi-line rendering including extra fields.
func (r LogRecord) PrettyText() string {
	return fmt.Sprintf("%s\n  ID: %s  Seq: %d\n  File: %s%s",
		r.Summary(), r.ID, r.SequenceNumber, r.File, FormatFields(r.Fields))
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}

// TruncateToMillis drops sub-millisecond precision, matching what the index stores.
func TruncateToMillis(t time.Time) time.Time {
	return time.UnixMilli(t.UnixMilli()).UTC()
}

// SortDirection is the direction of a sort clause.
type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

// Flip returns the opposite direction.
func (d SortDirection) Flip() SortDirection {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// LogPage is a window of records from a larger result set.
//
// TotalCount is a best-effort snapshot: the index is live and may grow between
// the sub-queries that produced the page.
type LogPage struct {
	Records    []LogRecord
	StartIndex int64
	TotalCount int64
	PageSize   int
}

// Empty reports whether the page has no records.
func (p *LogPage) Empty() bool {
	return p == nil || len(p.Records) == 0
}
