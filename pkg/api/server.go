package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/NYTimes/gziphandler"
	"github.com/rubiojr/logsearch/pkg/core"
	"github.com/rubiojr/logsearch/pkg/log"
	"github.com/rubiojr/logsearch/pkg/metrics"
	"github.com/rubiojr/logsearch/pkg/realtime"
	"github.com/rubiojr/logsearch/pkg/search"
)

// Options tunes a Server. Zero values select defaults.
type Options struct {
	// DefaultRows is the page size used when a request names none.
	DefaultRows int
	// FollowInterval is how often polling followers check for new records.
	FollowInterval time.Duration
	Metrics        *metrics.Metrics
	// Hub, when set, switches live following from per-connection polling
	// to push delivery.
	Hub *realtime.Hub
}

type Server struct {
	service  *search.Resolver[search.ServiceLog]
	audit    *search.Resolver[search.AuditLog]
	registry *search.CancellationRegistry
	opts     Options
	logger   *log.Logger

	defaultRows atomic.Int64
}

// NewServer serves service logs from service and audit logs from audit.
// Both engines should share one CancellationRegistry.
func NewServer(service, audit *search.Engine, opts Options) *Server {
	if opts.DefaultRows <= 0 {
		opts.DefaultRows = core.DefaultRows
	}
	if opts.FollowInterval <= 0 {
		opts.FollowInterval = 2 * time.Second
	}
	s := &Server{
		service:  search.NewServiceResolver(service),
		audit:    search.NewAuditResolver(audit),
		registry: service.Registry(),
		opts:     opts,
		logger:   log.ForService("api"),
	}
	s.defaultRows.Store(int64(opts.DefaultRows))
	return s
}

// SetDefaultRows changes the page size used when a request names none.
// Safe to call while serving.
func (s *Server) SetDefaultRows(n int) {
	if n <= 0 {
		n = core.DefaultRows
	}
	s.defaultRows.Store(int64(n))
}

// Handler returns the complete HTTP handler: routes with compression,
// instrumentation and CORS. The live follow route bypasses compression
// since it hijacks the connection.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()
	s.RegisterRoutes(api)

	root := http.NewServeMux()
	root.HandleFunc("GET /api/v1/service/logs/follow", s.HandleFollow)
	root.Handle("/", s.instrument(gziphandler.GzipHandler(api)))
	return CorsMiddleware(root)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// writeSearchError maps search errors to HTTP responses. Backend detail is
// logged, never returned to the client.
func (s *Server) writeSearchError(w http.ResponseWriter, r *http.Request, err error) {
	var se *core.SearchError
	if !errors.As(err, &se) {
		se = &core.SearchError{Kind: core.KindSearchFailure, Err: err}
	}

	switch se.Kind {
	case core.KindNotFound:
		s.writeError(w, http.StatusNotFound, se.Kind.String(), se.Message)
	case core.KindInvalidRequest:
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   se.Kind.String(),
			Message: se.Message,
			Param:   se.Param,
		})
	default:
		s.logger.Errorf("%s %s: %v", r.Method, r.URL.Path, err)
		s.writeError(w, http.StatusInternalServerError, se.Kind.String(), "search backend error")
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) instrument(next http.Handler) http.Handler {
	if s.opts.Metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		route := r.Pattern
		if route == "" {
			route = "unmatched"
		}
		s.opts.Metrics.ObserveRequest(route, rec.status)
	})
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
