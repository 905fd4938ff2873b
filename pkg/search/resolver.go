package search

import (
	"context"

	"github.com/rubiojr/logsearch/pkg/core"
)

// Resolver exposes an Engine through a client view. One resolver serves
// service logs and another audit logs; both share the same algorithms and
// only differ in their mapper and collection.
type Resolver[T any] struct {
	engine *Engine
	mapper ResultMapper[T]
}

// NewResolver binds engine to mapper.
func NewResolver[T any](engine *Engine, mapper ResultMapper[T]) *Resolver[T] {
	return &Resolver[T]{engine: engine, mapper: mapper}
}

// NewServiceResolver returns a resolver over service logs.
func NewServiceResolver(engine *Engine) *Resolver[ServiceLog] {
	return NewResolver[ServiceLog](engine, ServiceLogMapper)
}

// NewAuditResolver returns a resolver over audit logs.
func NewAuditResolver(engine *Engine) *Resolver[AuditLog] {
	return NewResolver[AuditLog](engine, AuditLogMapper)
}

// Engine returns the underlying engine.
func (r *Resolver[T]) Engine() *Engine {
	return r.engine
}

// Search picks the resolution strategy for c: the last page when
// IsLastPage is set, then the page holding SourceLogID, then the page
// holding the next keyword match, and otherwise the requested page.
func (r *Resolver[T]) Search(ctx context.Context, c core.SearchCriteria) (*Page[T], error) {
	var (
		page *core.LogPage
		err  error
	)
	switch {
	case c.IsLastPage:
		page, err = r.engine.ResolveLastPage(ctx, c, r.engine.TimeField())
	case c.SourceLogID != "":
		page, err = r.engine.ResolveSourceLogPage(ctx, c)
	case c.Keyword != "":
		page, err = r.engine.ResolveKeywordPage(ctx, c)
	default:
		page, err = r.engine.ResolvePage(ctx, c)
	}
	if err != nil {
		return nil, err
	}
	return MapPage(page, r.mapper), nil
}

// Scroll returns the neighbors of the anchor named by c.ID.
func (r *Resolver[T]) Scroll(ctx context.Context, c core.SearchCriteria) ([]T, error) {
	records, err := r.engine.Scroll(ctx, c)
	if err != nil {
		return nil, err
	}
	return MapRecords(records, r.mapper), nil
}

// Tail returns the last lines of one file.
func (r *Resolver[T]) Tail(ctx context.Context, c core.SearchCriteria) (*Page[T], error) {
	page, err := r.engine.Tail(ctx, c)
	if err != nil {
		return nil, err
	}
	return MapPage(page, r.mapper), nil
}

// Scan runs a cancellable page-by-page keyword scan.
//
// Deprecated: use Search with a keyword.
func (r *Resolver[T]) Scan(ctx context.Context, c core.SearchCriteria, token string) (*Page[T], error) {
	page, err := r.engine.Scan(ctx, c, token)
	if err != nil {
		return nil, err
	}
	return MapPage(page, r.mapper), nil
}
