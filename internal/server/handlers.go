package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"inliner/inline"
)

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, s.cfg.IndexHTML)
}

func (s *Server) handlePing(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Connection", "close")
	io.WriteString(w, "pong\n")
}

func (s *Server) handleInline(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	q := r.URL.Query()
	target := strings.TrimSpace(q.Get("url"))
	if target == "" {
		http.Error(w, "missing url parameter", http.StatusBadRequest)
		return
	}
	if !isAbsoluteHTTP(target) {
		http.Error(w, "url must be an absolute http or https URL", http.StatusBadRequest)
		return
	}
	pretty, _ := parseBool(q.Get("pretty"))

	key := cacheKey(target, pretty)
	if doc, ok := s.cache.Get(key); ok {
		s.writeDocument(w, doc, "HIT")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.Timeout)
	defer cancel()
	doc, diags, err := s.inline(ctx, target, pretty)
	if err != nil {
		s.logger.Printf("INLINE %s: %v", target, err)
		http.Error(w, err.Error(), statusFor(err))
		return
	}
	s.cache.Store(key, doc)
	w.Header().Set("X-Inline-Diagnostics", strconv.Itoa(diags))
	s.writeDocument(w, doc, "MISS")
}

func (s *Server) inline(ctx context.Context, target string, pretty bool) (string, int, error) {
	base, ref, err := inline.NewBaseContext(target)
	if err != nil {
		return "", 0, err
	}
	res, err := s.cfg.Fetcher.Fetch(ctx, ref)
	if err != nil {
		return "", 0, &inline.FetchError{Ref: ref, Err: err}
	}
	opts := s.cfg.Options
	opts.Pretty = pretty
	in := inline.New(s.cfg.Fetcher, base, opts)
	doc, err := in.InlineResource(ctx, res)
	if err != nil {
		return "", 0, err
	}
	return doc, in.Diagnostics().Len(), nil
}

func (s *Server) writeDocument(w http.ResponseWriter, doc, cache string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Content-Length", strconv.Itoa(len(doc)))
	w.Header().Set("X-Cache", cache)
	io.WriteString(w, doc)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, inline.ErrMalformedReference):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, inline.ErrResourceUnavailable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func isAbsoluteHTTP(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

func parseBool(v string) (bool, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "":
		return false, false
	case "1", "true", "yes", "on":
		return true, true
	case "0", "false", "no", "off":
		return false, true
	}
	return false, false
}
