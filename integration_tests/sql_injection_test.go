package integration_tests

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rubiojr/logsearch/pkg/core"
)

func TestSQLInjectionProtectionIntegration(t *testing.T) {
	// The oldest record carries SQL in its message so it can be searched for.
	records := append(ServiceRecords(20), core.LogRecord{
		ID:        "log-sql",
		LogTime:   Base.Add(-time.Minute),
		Host:      "c7401",
		Component: "ambari_server",
		Level:     "WARN",
		File:      "/var/log/ambari-server/ambari-server.log",
		Message:   "DROP TABLE users",
	})
	idx, h := setupStack(t, records)

	type attempt struct {
		name   string
		params url.Values
		status int
		total  int64
	}
	var attempts []attempt
	for _, payload := range InjectionPayloads {
		attempts = append(attempts,
			attempt{
				name:   "keyword " + payload,
				params: url.Values{"keyword": {payload}, "pageSize": {"3"}},
				status: http.StatusNotFound,
			},
			attempt{
				name:   "host filter " + payload,
				params: url.Values{"host": {payload}},
				status: http.StatusOK,
			},
			attempt{
				name:   "extra field filter " + payload,
				params: url.Values{"component": {"ambari_server"}, "level": {payload}},
				status: http.StatusOK,
			},
			attempt{
				name:   "sort field " + payload,
				params: url.Values{"sortBy": {payload}},
				status: http.StatusInternalServerError,
			},
		)
	}
	attempts = append(attempts, attempt{
		name:   "literal sql in keyword",
		params: url.Values{"keyword": {"DROP TABLE users"}, "pageSize": {"3"}},
		status: http.StatusOK,
		total:  21,
	})

	for _, a := range attempts {
		t.Run(a.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/service/logs?"+a.params.Encode(), nil))
			if w.Code != a.status {
				t.Fatalf("Expected status %d, got %d: %s", a.status, w.Code, w.Body.String())
			}
			body := w.Body.String()
			if w.Code == http.StatusInternalServerError {
				if !strings.Contains(body, core.KindSearchFailure.String()) {
					t.Errorf("Expected a search failure, got %s", body)
				}
				if strings.Contains(body, "sqlite") || strings.Contains(body, a.params.Get("sortBy")) {
					t.Errorf("Error response leaks backend detail: %s", body)
				}
			}
			if w.Code == http.StatusOK && !strings.Contains(body, `"totalCount":`+strconv.FormatInt(a.total, 10)) {
				t.Errorf("Expected totalCount %d, got %s", a.total, body)
			}
		})
	}

	t.Run("literal sql record page", func(t *testing.T) {
		q := url.Values{"keyword": {"DROP TABLE users"}, "pageSize": {"3"}}
		code, p := getPage(t, h, "/api/v1/service/logs?"+q.Encode())
		if code != http.StatusOK {
			t.Fatalf("Expected 200, got %d", code)
		}
		if p.StartIndex != 18 || len(p.Records) != 3 || p.Records[2].ID != "log-sql" {
			t.Errorf("Expected the last page to hold log-sql, got start %d %v", p.StartIndex, seqs(p))
		}
	})

	t.Run("database_integrity_check", func(t *testing.T) {
		stats, err := idx.Stats(context.Background())
		if err != nil {
			t.Fatalf("Stats failed after injection attempts: %v", err)
		}
		if len(stats) != 1 || stats[0].Records != int64(len(records)) {
			t.Errorf("Expected %d records to survive, got %+v", len(records), stats)
		}
		if err := idx.IntegrityCheck(true); err != nil {
			t.Errorf("Integrity check failed: %v", err)
		}
	})
}
