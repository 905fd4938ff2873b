package api

import (
	"time"

	"github.com/rubiojr/logsearch/pkg/query"
	"github.com/rubiojr/logsearch/pkg/search"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

type ScrollResponse struct {
	LogList []search.ServiceLog `json:"logList"`
	Count   int                 `json:"count"`
}

type FacetsResponse struct {
	Facets map[string]*query.FacetNode `json:"facets"`
}

type ScanResponse struct {
	Token string                          `json:"token"`
	Page  *search.Page[search.ServiceLog] `json:"page"`
}

type ScanStatusResponse struct {
	Token     string `json:"token"`
	Page      int    `json:"page"`
	Cancelled bool   `json:"cancelled,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// FollowMessage is sent over the live follow WebSocket. The first message
// has type "init" and carries the most recent records; later messages have
// type "records".
type FollowMessage struct {
	Type    string              `json:"type"`
	Mode    string              `json:"mode,omitempty"`
	Records []search.ServiceLog `json:"records"`
	Count   int                 `json:"count"`
	LastSeq int64               `json:"last_seq"`
}
