package search

import (
	"context"

	"github.com/rubiojr/logsearch/pkg/core"
)

// Scan walks the result set page by page from the current page, forward or
// backward, until a page holds a record the index matches against the
// keyword.
//
// Deprecated: Scan issues one query per page. Use ResolveKeywordPage, which
// resolves the target page with a fixed number of queries. Scan is kept for
// clients of the old scan endpoint.
//
// The scan is registered under token in the engine's CancellationRegistry
// and checks it before every page query, so a concurrent Cancel stops it
// after the in-flight query. A cancelled scan returns a not found error.
func (e *Engine) Scan(ctx context.Context, c core.SearchCriteria, token string) (*core.LogPage, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if c.Keyword == "" {
		return nil, core.InvalidRequest("keyword", "is required")
	}
	if token == "" {
		return nil, core.InvalidRequest("token", "is required")
	}
	reg, ok := e.registry.Register(token)
	if !ok {
		return nil, core.InvalidRequest("token", "scan %q is already running", token)
	}
	defer e.registry.Done(token, reg)

	step := 1
	if c.KeywordType == core.KeywordBackward {
		step = -1
	}
	primary := e.primary(c)

	for page := c.Page + step; page >= 0; page += step {
		if !e.registry.holds(token, reg) {
			e.logger.Infof("scan %s cancelled before page %d", token, page)
			return nil, core.NotFound("scan %q was cancelled", token)
		}
		if err := ctx.Err(); err != nil {
			return nil, core.SearchFailure("scan interrupted", err)
		}

		p, err := e.pageAt(ctx, c, primary, int64(page)*int64(c.MaxRows))
		if err != nil {
			return nil, err
		}
		reg.SetProgress(page)

		hits, err := e.Matching(ctx, c, p.Records)
		if err != nil {
			return nil, err
		}
		if len(hits) > 0 {
			return p, nil
		}
		if step > 0 && (len(p.Records) == 0 || p.StartIndex+int64(len(p.Records)) >= p.TotalCount) {
			break
		}
	}
	return nil, core.NotFound("keyword %q not found", c.Keyword)
}
