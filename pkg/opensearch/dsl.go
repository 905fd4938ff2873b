package opensearch

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/query"
)

// aggPrefix names facet aggregations; the facet spec follows it.
const aggPrefix = "facet:"

type object = map[string]any

// termValue converts filter values to what the index stores.
func termValue(v any) any {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case int:
		return int64(t)
	}
	return v
}

func termValues(values []any) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = termValue(v)
	}
	return out
}

// buildRequest translates q into a _search body.
func buildRequest(q *query.Query, facetSize int) object {
	var filter, mustNot []any
	for _, f := range q.Filters {
		switch f.Op {
		case query.OpEq:
			filter = append(filter, object{"term": object{f.Field: termValue(f.Values[0])}})
		case query.OpIn:
			filter = append(filter, object{"terms": object{f.Field: termValues(f.Values)}})
		case query.OpNotIn:
			if len(f.Values) > 0 {
				mustNot = append(mustNot, object{"terms": object{f.Field: termValues(f.Values)}})
			}
		case query.OpRange:
			r := object{}
			if f.Low != nil {
				r["gte"] = termValue(f.Low)
			}
			if f.High != nil {
				r["lte"] = termValue(f.High)
			}
			filter = append(filter, object{"range": object{f.Field: r}})
		}
	}

	boolQuery := object{}
	if len(filter) > 0 {
		boolQuery["filter"] = filter
	}
	if len(mustNot) > 0 {
		boolQuery["must_not"] = mustNot
	}
	if q.Keyword != "" {
		boolQuery["must"] = []any{object{"match_phrase": object{core.FieldMessage: q.Keyword}}}
	}

	body := object{
		"query":            object{"bool": boolQuery},
		"from":             q.Start,
		"size":             q.Rows,
		"track_total_hits": true,
	}

	if len(q.Sort) > 0 {
		sorts := make([]any, len(q.Sort))
		for i, s := range q.Sort {
			sorts[i] = object{s.Field: object{"order": string(s.Direction)}}
		}
		body["sort"] = sorts
	}

	if len(q.Facets) > 0 {
		aggs := object{}
		for _, spec := range q.Facets {
			aggs[aggPrefix+spec] = pivotAgg(splitFacet(spec), facetSize)
		}
		body["aggs"] = aggs
	}
	return body
}

func splitFacet(spec string) []string {
	parts := strings.Split(spec, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// pivotAgg nests one terms aggregation per pivot level under "sub".
func pivotAgg(fields []string, size int) object {
	agg := object{"terms": object{"field": fields[0], "size": size}}
	if len(fields) > 1 {
		agg["aggs"] = object{"sub": pivotAgg(fields[1:], size)}
	}
	return agg
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int64 `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations map[string]bucketAgg `json:"aggregations"`
}

type bucketAgg struct {
	Buckets []bucket `json:"buckets"`
}

type bucket struct {
	Key      any        `json:"key"`
	DocCount int64      `json:"doc_count"`
	Sub      *bucketAgg `json:"sub"`
}

func decodeResponse(r io.Reader, q *query.Query) (*query.Result, error) {
	var resp searchResponse
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("decoding search response: %w", err)
	}

	res := &query.Result{Total: resp.Hits.Total.Value}
	for _, hit := range resp.Hits.Hits {
		rec, err := fromDocument(hit.Source)
		if err != nil {
			return nil, err
		}
		if rec.ID == "" {
			rec.ID = hit.ID
		}
		res.Records = append(res.Records, rec)
	}

	if len(q.Facets) > 0 {
		res.Facets = make(map[string]*query.FacetNode, len(q.Facets))
		for _, spec := range q.Facets {
			root := &query.FacetNode{Name: spec}
			if agg, ok := resp.Aggregations[aggPrefix+spec]; ok {
				for _, b := range agg.Buckets {
					root.Children = append(root.Children, facetNode(b))
					root.Count += b.DocCount
				}
			}
			root.SortChildren()
			res.Facets[spec] = root
		}
	}
	return res, nil
}

func facetNode(b bucket) *query.FacetNode {
	n := &query.FacetNode{Name: fmt.Sprint(b.Key), Count: b.DocCount}
	if b.Sub != nil {
		for _, c := range b.Sub.Buckets {
			n.Children = append(n.Children, facetNode(c))
		}
	}
	return n
}

// toDocument renders a record as an index document.
func toDocument(r core.LogRecord) object {
	doc := object{}
	for k, v := range r.Fields {
		doc[k] = v
	}
	doc[core.FieldID] = r.ID
	doc[core.FieldLogTime] = r.LogTime.UnixMilli()
	doc[core.FieldSeqNum] = r.SequenceNumber
	doc[core.FieldHost] = r.Host
	doc[core.FieldComponent] = r.Component
	doc[core.FieldLevel] = r.Level
	doc[core.FieldFile] = r.File
	doc[core.FieldCluster] = r.Cluster
	doc[core.FieldMessage] = r.Message
	return doc
}

// fromDocument maps a _source document back to a record. Unknown
// properties land in Fields.
func fromDocument(src map[string]any) (core.LogRecord, error) {
	var r core.LogRecord
	for k, v := range src {
		switch k {
		case core.FieldID:
			r.ID = fmt.Sprint(v)
		case core.FieldLogTime:
			t, err := parseTime(v)
			if err != nil {
				return r, err
			}
			r.LogTime = t
		case core.FieldSeqNum:
			n, err := parseInt(v)
			if err != nil {
				return r, fmt.Errorf("invalid %s: %w", core.FieldSeqNum, err)
			}
			r.SequenceNumber = n
		case core.FieldHost:
			r.Host = str(v)
		case core.FieldComponent:
			r.Component = str(v)
		case core.FieldLevel:
			r.Level = str(v)
		case core.FieldFile:
			r.File = str(v)
		case core.FieldCluster:
			r.Cluster = str(v)
		case core.FieldMessage:
			r.Message = str(v)
		default:
			if r.Fields == nil {
				r.Fields = make(map[string]any)
			}
			if n, ok := v.(json.Number); ok {
				if i, err := n.Int64(); err == nil {
					v = i
				} else if f, err := n.Float64(); err == nil {
					v = f
				}
			}
			r.Fields[k] = v
		}
	}
	return r, nil
}

func str(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

func parseInt(v any) (int64, error) {
	switch t := v.(type) {
	case json.Number:
		return t.Int64()
	case string:
		return strconv.ParseInt(t, 10, 64)
	case float64:
		return int64(t), nil
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

// parseTime accepts epoch milliseconds or an RFC 3339 date.
func parseTime(v any) (time.Time, error) {
	if s, ok := v.(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.UTC(), nil
		}
	}
	ms, err := parseInt(v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s %v: %w", core.FieldLogTime, v, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
