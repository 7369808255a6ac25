// Package server exposes the inliner over HTTP.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"inliner/inline"
)

const defaultIndexHTML = `<!DOCTYPE html>
<html><body>
<h1>Inliner</h1>
<form action="/inline" method="get">
<h3>Inline a page into a single document</h3>
URL: <input name="url" size="60"><br>
<label><input type="checkbox" name="pretty" value="1"> Pretty print</label><br>
<button type="submit">Inline</button>
</form>
</body></html>`

const (
	defaultCacheTTL = 10 * time.Minute
	defaultTimeout  = 2 * time.Minute
)

// Config describes server wiring and runtime behaviour.
type Config struct {
	IndexHTML string
	Logger    *log.Logger
	Clock     func() time.Time
	// Fetcher loads documents and their resources; required. References
	// other than http, https and data are refused before reaching it.
	Fetcher inline.Fetcher
	// Options are applied to every inlining run; Pretty is taken from the
	// request.
	Options  inline.Options
	CacheTTL time.Duration
	// Timeout bounds one /inline request.
	Timeout time.Duration
}

// Server exposes the HTTP handlers.
type Server struct {
	cfg     Config
	mux     *http.ServeMux
	handler http.Handler
	logger  *log.Logger
	cache   *resultCache
}

// New wires a server with the provided configuration.
func New(cfg Config) *Server {
	if cfg.IndexHTML == "" {
		cfg.IndexHTML = defaultIndexHTML
	}
	if cfg.Logger == nil {
		cfg.Logger = log.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	cfg.Options.Logger = cfg.Logger
	cfg.Fetcher = remoteOnly(cfg.Fetcher)
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: cfg.Logger,
		cache:  newResultCache(cfg.Clock, cfg.CacheTTL),
	}
	s.registerRoutes()
	s.handler = withLogging(s.logger, s.mux)
	return s
}

// Handler exposes the HTTP handler with middleware applied.
func (s *Server) Handler() http.Handler { return s }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/inline", s.handleInline)
	s.mux.HandleFunc("/ping", s.handlePing)
}

// remoteOnly keeps pages fetched on behalf of a client from reaching the
// server's own filesystem or any other local scheme.
func remoteOnly(f inline.Fetcher) inline.Fetcher {
	return inline.FetcherFunc(func(ctx context.Context, ref string) (*inline.Resource, error) {
		scheme, _, _ := strings.Cut(ref, ":")
		switch strings.ToLower(scheme) {
		case "http", "https", "data":
			return f.Fetch(ctx, ref)
		}
		return nil, fmt.Errorf("scheme %q is not served", scheme)
	})
}
