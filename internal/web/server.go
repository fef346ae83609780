// Package web provides the HTTP status server: an HTML page, a JSON API
// described by OpenAPI, and the Prometheus scrape endpoint.
package web

import (
	"context"
	"net"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/sweeney/button-blinker/internal/status"
)

// Version is reported in the OpenAPI document.
const Version = "1.0.0"

// StatusResponse is the body of GET /api/status.
type StatusResponse struct {
	Body status.StatusJSON
}

// HealthResponse is the body of GET /api/health.
type HealthResponse struct {
	Body struct {
		OK            bool  `json:"ok" doc:"Always true while the daemon serves requests"`
		UptimeSeconds int64 `json:"uptime_seconds" doc:"Seconds since startup"`
	}
}

// Server serves the status page over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
	api        huma.API
}

// New creates a Server that reads state from tracker. metrics, if non-nil,
// is mounted at /metrics.
func New(addr string, tracker *status.Tracker, metrics http.Handler) *Server {
	s := &Server{tracker: tracker}

	mux := http.NewServeMux()
	s.api = humago.New(mux, huma.DefaultConfig("Button Blinker", Version))

	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Get status",
		Description: "Channel, debounce, ADC and connectivity state at the time of the request.",
		Tags:        []string{"status"},
	}, func(ctx context.Context, input *struct{}) (*StatusResponse, error) {
		return &StatusResponse{Body: status.StatusJSON{Status: status.Build(s.tracker.Snapshot())}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-health",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health check",
		Tags:        []string{"status"},
	}, func(ctx context.Context, input *struct{}) (*HealthResponse, error) {
		resp := &HealthResponse{}
		resp.Body.OK = true
		resp.Body.UptimeSeconds = int64(s.tracker.Snapshot().Uptime().Seconds())
		return resp, nil
	})

	if metrics != nil {
		mux.Handle("GET /metrics", metrics)
	}
	mux.HandleFunc("GET /index.json", s.handleJSON)
	mux.HandleFunc("/", s.handleIndex)

	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: mux,
	}
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// ListenAndServe starts listening. It blocks until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on the given listener. Useful for tests.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}
