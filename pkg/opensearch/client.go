// Package opensearch runs structured log queries against an OpenSearch
// cluster. Client satisfies query.Client; documents use the logical field
// names of package core as their property names.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/opensearch-project/opensearch-go"
	"github.com/opensearch-project/opensearch-go/opensearchapi"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/query"
)

// Config configures a Client.
type Config struct {
	Addresses          []string
	Username           string
	Password           string
	InsecureSkipVerify bool
	// Indices maps collections to index names or patterns. Collections not
	// listed use their own name.
	Indices map[string]string
	// FacetSize is the maximum number of buckets per facet level.
	FacetSize int
}

// Client is an OpenSearch backed query.Client.
type Client struct {
	os        *opensearch.Client
	indices   map[string]string
	facetSize int
	logger    *log.Logger
}

// New creates a client. It does not contact the cluster.
func New(cfg Config) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("no opensearch addresses configured")
	}
	if cfg.FacetSize <= 0 {
		cfg.FacetSize = 100
	}

	osClient, err := opensearch.NewClient(opensearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				InsecureSkipVerify: cfg.InsecureSkipVerify,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("creating opensearch client: %w", err)
	}

	return &Client{
		os:        osClient,
		indices:   cfg.Indices,
		facetSize: cfg.FacetSize,
		logger:    log.ForService("opensearch"),
	}, nil
}

func (c *Client) index(collection string) string {
	if idx, ok := c.indices[collection]; ok && idx != "" {
		return idx
	}
	return collection
}

// Query executes q as a single _search request.
func (c *Client) Query(ctx context.Context, q *query.Query) (*query.Result, error) {
	body, err := json.Marshal(buildRequest(q, c.facetSize))
	if err != nil {
		return nil, fmt.Errorf("encoding search request: %w", err)
	}

	index := c.index(q.Collection)
	c.logger.Debugf("search %s: %s", index, body)
	res, err := c.os.Search(
		c.os.Search.WithContext(ctx),
		c.os.Search.WithIndex(index),
		c.os.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("search response error: %s", res.String())
	}
	return decodeResponse(res.Body, q)
}

// StoreRecords bulk-indexes records into the collection's index, using the
// record id as document id so re-imports do not duplicate documents.
func (c *Client) StoreRecords(ctx context.Context, collection string, records []core.LogRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	index := c.index(collection)
	for _, r := range records {
		meta, err := json.Marshal(map[string]any{
			"create": map[string]any{"_index": index, "_id": r.ID},
		})
		if err != nil {
			return 0, err
		}
		doc, err := json.Marshal(toDocument(r))
		if err != nil {
			return 0, fmt.Errorf("encoding record %s: %w", r.ID, err)
		}
		buf.Write(meta)
		buf.WriteByte('\n')
		buf.Write(doc)
		buf.WriteByte('\n')
	}

	req := opensearchapi.BulkRequest{Body: &buf, Refresh: "wait_for"}
	res, err := req.Do(ctx, c.os)
	if err != nil {
		return 0, fmt.Errorf("bulk request: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, fmt.Errorf("bulk response error: %s", res.String())
	}
	return countCreated(res.Body)
}

// countCreated reads a bulk response and returns the number of documents
// created. Conflicts on existing ids are expected and skipped.
func countCreated(r io.Reader) (int, error) {
	var resp struct {
		Items []map[string]struct {
			Status int `json:"status"`
			Error  *struct {
				Type   string `json:"type"`
				Reason string `json:"reason"`
			} `json:"error"`
		} `json:"items"`
	}
	if err := json.NewDecoder(r).Decode(&resp); err != nil {
		return 0, fmt.Errorf("decoding bulk response: %w", err)
	}

	created := 0
	for _, item := range resp.Items {
		for _, result := range item {
			switch {
			case result.Status == http.StatusCreated:
				created++
			case result.Status == http.StatusConflict:
			case result.Error != nil:
				return created, fmt.Errorf("bulk item failed: %s: %s", result.Error.Type, result.Error.Reason)
			}
		}
	}
	return created, nil
}
