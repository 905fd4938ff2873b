package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/service/logs", s.HandleServiceLogs)
	mux.HandleFunc("GET /api/v1/service/logs/scroll", s.HandleScroll)
	mux.HandleFunc("GET /api/v1/service/logs/tail", s.HandleTail)
	mux.HandleFunc("GET /api/v1/service/logs/facets", s.HandleFacets)
	mux.HandleFunc("GET /api/v1/service/logs/scan", s.HandleScan)
	mux.HandleFunc("GET /api/v1/audit/logs", s.HandleAuditLogs)
	mux.HandleFunc("GET /api/v1/scans/{token}", s.HandleScanProgress)
	mux.HandleFunc("DELETE /api/v1/scans/{token}", s.HandleCancelScan)
	mux.HandleFunc("GET /health", s.HandleHealth)
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", s.opts.Metrics.Handler())
	}
}
