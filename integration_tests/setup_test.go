package integration_tests

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rubiojr/logsearch/pkg/api"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/rubiojr/logsearch/pkg/storage"
)

// setupStack indexes records in a fresh SQLite index and returns it with the
// API handler serving it.
func setupStack(t *testing.T, records []core.LogRecord) (*storage.Index, http.Handler) {
	t.Helper()
	idx, err := storage.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("Failed to open index: %v", err)
	}
	t.Cleanup(func() { idx.Close() })

	if n, err := idx.StoreRecords(context.Background(), core.CollectionService, records); err != nil || n != len(records) {
		t.Fatalf("Failed to store records: stored %d, %v", n, err)
	}

	registry := search.NewCancellationRegistry()
	service := search.NewEngine(idx, search.Config{Registry: registry})
	audit := search.NewEngine(idx, search.Config{Collection: core.CollectionAudit, Registry: registry})
	return idx, api.NewServer(service, audit, api.Options{}).Handler()
}

func getPage(t *testing.T, h http.Handler, target string) (int, search.Page[search.ServiceLog]) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", target, nil))
	var page search.Page[search.ServiceLog]
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &page); err != nil {
			t.Fatalf("Failed to decode %s response %q: %v", target, w.Body.String(), err)
		}
	}
	return w.Code, page
}

func seqs(page search.Page[search.ServiceLog]) []int64 {
	out := make([]int64, len(page.Records))
	for i, r := range page.Records {
		out[i] = r.SequenceNumber
	}
	return out
}
