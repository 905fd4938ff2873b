package core

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// KeywordDirection selects which way a keyword search moves from the current page.
type KeywordDirection int

const (
	KeywordBackward KeywordDirection = 0
	KeywordForward  KeywordDirection = 1
)

// ScrollType selects which neighbors of an anchor record are returned.
type ScrollType string

const (
	ScrollBoth   ScrollType = ""
	ScrollBefore ScrollType = "before"
	ScrollAfter  ScrollType = "after"
)

// DefaultRows is the page size used when a request does not name one.
const DefaultRows = 10

// filterParams maps request parameters to the logical fields they filter on.
// Values may be comma separated to match any of several values.
var filterParams = map[string]string{
	"host":      FieldHost,
	"component": FieldComponent,
	"type":      FieldComponent,
	"level":     FieldLevel,
	"file":      FieldFile,
	"cluster":   FieldCluster,
	"repo":      "repo",
	"user":      "reqUser",
	"action":    "action",
	"result":    "result",
	"resource":  "resource",
}

// SearchCriteria describes one inbound search request. It is built once per
// request and treated as read-only afterwards.
type SearchCriteria struct {
	Keyword     string
	KeywordType KeywordDirection
	SourceLogID string
	IsLastPage  bool

	From *time.Time
	To   *time.Time

	SortBy   string
	SortType SortDirection

	Page    int
	MaxRows int

	ID         string
	ScrollType ScrollType
	NumberRows int

	// Token identifies a cancellable scan.
	Token string

	// Filters holds field equality filters; several values mean "any of".
	Filters map[string][]string
}

// Start is the absolute offset of the requested page.
func (c SearchCriteria) Start() int64 {
	return int64(c.Page) * int64(c.MaxRows)
}

// Filter returns the first value of a filter field.
func (c SearchCriteria) Filter(field string) string {
	if vs := c.Filters[field]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

// WithFilter returns a copy of c with field set to values.
func (c SearchCriteria) WithFilter(field string, values ...string) SearchCriteria {
	filters := make(map[string][]string, len(c.Filters)+1)
	for k, v := range c.Filters {
		filters[k] = v
	}
	filters[field] = values
	c.Filters = filters
	return c
}

// FilterFields returns the filtered field names in a stable order.
func (c SearchCriteria) FilterFields() []string {
	fields := make([]string, 0, len(c.Filters))
	for f, vs := range c.Filters {
		if len(vs) > 0 {
			fields = append(fields, f)
		}
	}
	sort.Strings(fields)
	return fields
}

// Validate checks the invariants every resolver relies on.
func (c SearchCriteria) Validate() error {
	if c.MaxRows <= 0 {
		return InvalidRequest("maxRows", "must be greater than zero")
	}
	if c.Page < 0 {
		return InvalidRequest("page", "must not be negative")
	}
	if c.From != nil && c.To != nil && c.From.After(*c.To) {
		return InvalidRequest("from", "is after 'to'")
	}
	switch c.SortType {
	case "", Ascending, Descending:
	default:
		return InvalidRequest("sortType", "must be %q or %q", Ascending, Descending)
	}
	return nil
}

// ParseCriteria builds SearchCriteria from HTTP query parameters.
//
// Supported parameters:
//   - keyword, keywordType ("0" searches backward, anything else forward)
//   - sourceLogId, isLastPage
//   - id, scrollType ("before", "after", absent for both), numberRows
//   - page (>= 0), maxRows or pageSize (> 0, defaults to defaultRows)
//   - from, to (RFC3339 or epoch milliseconds)
//   - sortBy, sortType ("asc" or "desc")
//   - token
//   - host, component|type, level, file, cluster and the audit fields
//     repo, user, action, result, resource
func ParseCriteria(params map[string][]string, defaultRows int) (SearchCriteria, error) {
	if defaultRows <= 0 {
		defaultRows = DefaultRows
	}
	get := func(name string) string {
		if v := params[name]; len(v) > 0 {
			return strings.TrimSpace(v[0])
		}
		return ""
	}

	c := SearchCriteria{
		Keyword:     get("keyword"),
		KeywordType: KeywordForward,
		SourceLogID: get("sourceLogId"),
		SortBy:      get("sortBy"),
		SortType:    SortDirection(strings.ToLower(get("sortType"))),
		ID:          get("id"),
		ScrollType:  ScrollType(strings.ToLower(get("scrollType"))),
		Token:       get("token"),
		MaxRows:     defaultRows,
		Filters:     make(map[string][]string),
	}

	if get("keywordType") == "0" {
		c.KeywordType = KeywordBackward
	}

	if s := get("isLastPage"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return c, InvalidRequest("isLastPage", "not a boolean: %q", s)
		}
		c.IsLastPage = v
	}

	var err error
	if c.Page, err = parseInt(get("page"), "page", 0); err != nil {
		return c, err
	}

	rows := get("maxRows")
	if rows == "" {
		rows = get("pageSize")
	}
	if c.MaxRows, err = parseInt(rows, "maxRows", defaultRows); err != nil {
		return c, err
	}
	if c.NumberRows, err = parseInt(get("numberRows"), "numberRows", defaultRows); err != nil {
		return c, err
	}

	if c.From, err = parseTime(get("from"), "from"); err != nil {
		return c, err
	}
	if c.To, err = parseTime(get("to"), "to"); err != nil {
		return c, err
	}

	switch c.ScrollType {
	case ScrollBoth, ScrollBefore, ScrollAfter:
	default:
		return c, InvalidRequest("scrollType", "must be %q or %q", ScrollBefore, ScrollAfter)
	}

	for param, field := range filterParams {
		for _, raw := range params[param] {
			for _, v := range strings.Split(raw, ",") {
				if v = strings.TrimSpace(v); v != "" {
					c.Filters[field] = append(c.Filters[field], v)
				}
			}
		}
	}

	return c, c.Validate()
}

func parseInt(s, param string, def int) (int, error) {
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, InvalidRequest(param, "not an integer: %q", s)
	}
	return v, nil
}

// ParseTimestamp accepts RFC3339 (with optional fractional seconds), a bare
// date, or epoch milliseconds.
func ParseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseTime(s, param string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := ParseTimestamp(s)
	if err != nil {
		return nil, InvalidRequest(param, "not a timestamp: %q", s)
	}
	// A bare end date covers the whole day.
	if param == "to" && len(s) == len("2006-01-02") && strings.Count(s, "-") == 2 {
		t = t.Add(24*time.Hour - time.Millisecond)
	}
	return &t, nil
}
