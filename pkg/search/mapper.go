package search

import (
	"fmt"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
)

// ResultMapper turns an indexed record into the view returned to clients.
type ResultMapper[T any] interface {
	Map(r core.LogRecord) T
}

// MapperFunc adapts a function to ResultMapper.
type MapperFunc[T any] func(r core.LogRecord) T

func (f MapperFunc[T]) Map(r core.LogRecord) T {
	return f(r)
}

// ServiceLog is the client view of a service log line.
type ServiceLog struct {
	ID             string         `json:"id"`
	LogTime        time.Time      `json:"logtime"`
	SequenceNumber int64          `json:"seq_num"`
	Cluster        string         `json:"cluster,omitempty"`
	Host           string         `json:"host"`
	Component      string         `json:"type"`
	Level          string         `json:"level"`
	File           string         `json:"path,omitempty"`
	Message        string         `json:"log_message"`
	Fields         map[string]any `json:"fields,omitempty"`
}

// AuditLog is the client view of an audit event.
type AuditLog struct {
	ID             string    `json:"id"`
	EventTime      time.Time `json:"evtTime"`
	SequenceNumber int64     `json:"seq_num"`
	Cluster        string    `json:"cluster,omitempty"`
	Host           string    `json:"host,omitempty"`
	Component      string    `json:"type"`
	Repo           string    `json:"repo,omitempty"`
	User           string    `json:"reqUser,omitempty"`
	Action         string    `json:"action,omitempty"`
	Resource       string    `json:"resource,omitempty"`
	Result         string    `json:"result,omitempty"`
	Message        string    `json:"log_message,omitempty"`
}

// RecordMapper passes records through unchanged, for callers that render
// records themselves.
var RecordMapper = MapperFunc[core.LogRecord](func(r core.LogRecord) core.LogRecord { return r })

// ServiceLogMapper maps records to ServiceLog.
var ServiceLogMapper = MapperFunc[ServiceLog](func(r core.LogRecord) ServiceLog {
	return ServiceLog{
		ID:             r.ID,
		LogTime:        r.LogTime,
		SequenceNumber: r.SequenceNumber,
		Cluster:        r.Cluster,
		Host:           r.Host,
		Component:      r.Component,
		Level:          r.Level,
		File:           r.File,
		Message:        r.Message,
		Fields:         r.Fields,
	}
})

// AuditLogMapper maps records to AuditLog. Audit attributes live in the
// record's extra fields.
var AuditLogMapper = MapperFunc[AuditLog](func(r core.LogRecord) AuditLog {
	return AuditLog{
		ID:             r.ID,
		EventTime:      r.LogTime,
		SequenceNumber: r.SequenceNumber,
		Cluster:        r.Cluster,
		Host:           r.Host,
		Component:      r.Component,
		Repo:           stringField(r, "repo"),
		User:           stringField(r, "reqUser"),
		Action:         stringField(r, "action"),
		Resource:       stringField(r, "resource"),
		Result:         stringField(r, "result"),
		Message:        r.Message,
	}
})

func stringField(r core.LogRecord, name string) string {
	v, ok := r.Field(name)
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// Page is a LogPage with its records mapped to a client view.
type Page[T any] struct {
	Records    []T   `json:"logList"`
	StartIndex int64 `json:"startIndex"`
	TotalCount int64 `json:"totalCount"`
	PageSize   int   `json:"pageSize"`
}

// MapPage converts p with m. A nil page maps to an empty one.
func MapPage[T any](p *core.LogPage, m ResultMapper[T]) *Page[T] {
	out := &Page[T]{Records: []T{}}
	if p == nil {
		return out
	}
	out.StartIndex = p.StartIndex
	out.TotalCount = p.TotalCount
	out.PageSize = p.PageSize
	out.Records = MapRecords(p.Records, m)
	return out
}

// MapRecords converts records with m, never returning nil.
func MapRecords[T any](records []core.LogRecord, m ResultMapper[T]) []T {
	out := make([]T, len(records))
	for i, r := range records {
		out[i] = m.Map(r)
	}
	return out
}
