package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/search"
	"github.com/rubiojr/logsearch/pkg/version"
)

func (s *Server) criteria(w http.ResponseWriter, r *http.Request) (core.SearchCriteria, bool) {
	c, err := core.ParseCriteria(r.URL.Query(), int(s.defaultRows.Load()))
	if err != nil {
		s.writeSearchError(w, r, err)
		return c, false
	}
	return c, true
}

func (s *Server) HandleServiceLogs(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	page, err := s.service.Search(r.Context(), c)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) HandleAuditLogs(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	page, err := s.audit.Search(r.Context(), c)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) HandleScroll(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	logs, err := s.service.Scroll(r.Context(), c)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ScrollResponse{LogList: logs, Count: len(logs)})
}

func (s *Server) HandleTail(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	page, err := s.service.Tail(r.Context(), c)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, page)
}

func (s *Server) HandleFacets(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}

	facets, err := s.service.Engine().Facets(r.Context(), c, r.URL.Query()["field"])
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, FacetsResponse{Facets: facets})
}

// HandleScan runs the page-by-page keyword scan. Clients that want to
// cancel it must pass their own token; otherwise one is generated.
//
// Deprecated: keyword searches on /api/v1/service/logs resolve the page
// directly.
func (s *Server) HandleScan(w http.ResponseWriter, r *http.Request) {
	c, ok := s.criteria(w, r)
	if !ok {
		return
	}
	token := c.Token
	if token == "" {
		token = uuid.NewString()
	}

	page, err := s.service.Scan(r.Context(), c, token)
	if err != nil {
		s.writeSearchError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ScanResponse{Token: token, Page: page})
}

func (s *Server) HandleScanProgress(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	page, ok := s.registry.Progress(token)
	if !ok && !s.registry.Active(token) {
		s.writeError(w, http.StatusNotFound, core.KindNotFound.String(), "no running scan with this token")
		return
	}
	s.writeJSON(w, http.StatusOK, ScanStatusResponse{Token: token, Page: page})
}

func (s *Server) HandleCancelScan(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	if !s.registry.Cancel(token) {
		s.writeError(w, http.StatusNotFound, core.KindNotFound.String(), "no running scan with this token")
		return
	}
	s.logger.Infof("Scan %s cancelled", token)
	s.writeJSON(w, http.StatusAccepted, ScanStatusResponse{Token: token, Cancelled: true})
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
	}

	s.writeJSON(w, http.StatusOK, health)
}

func serviceLogs(records []core.LogRecord) []search.ServiceLog {
	return search.MapRecords(records, search.ServiceLogMapper)
}
