package server

import (
	"bytes"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inliner/inline"
	"inliner/internal/fetch"
)

func newUpstream(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		switch r.URL.Path {
		case "/index.html":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, `<html><head><link rel="stylesheet" href="/s.css"></head><body><p>hi</p></body></html>`)
		case "/broken.html":
			w.Header().Set("Content-Type", "text/html")
			io.WriteString(w, `<html><head><link rel="stylesheet" href="/missing.css"></head></html>`)
		case "/s.css":
			w.Header().Set("Content-Type", "text/css")
			io.WriteString(w, "body{color:red}")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestServer(clock func() time.Time) (*Server, *syncBuffer) {
	logs := &syncBuffer{}
	return New(Config{
		Logger:  log.New(logs, "", 0),
		Clock:   clock,
		Fetcher: fetch.New(fetch.Options{}),
	}), logs
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func inlinePath(target string, extra string) string {
	return "/inline?url=" + url.QueryEscape(target) + extra
}

func TestPingAndRoot(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(nil)

	rec := get(t, s, "/ping")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pong\n", rec.Body.String())

	rec = get(t, s, "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `<form action="/inline"`)

	rec = get(t, s, "/favicon.ico")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInlineBadRequests(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(nil)
	tests := []struct {
		name string
		path string
		code int
	}{
		{"missing url", "/inline", http.StatusBadRequest},
		{"relative url", inlinePath("page.html", ""), http.StatusBadRequest},
		{"file url", inlinePath("file:///etc/passwd", ""), http.StatusBadRequest},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec := get(t, s, tc.path)
			assert.Equal(t, tc.code, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/inline", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestInlineDocument(t *testing.T) {
	t.Parallel()
	upstream, hits := newUpstream(t)
	s, logs := newTestServer(nil)

	rec := get(t, s, inlinePath(upstream.URL+"/index.html", ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, "0", rec.Header().Get("X-Inline-Diagnostics"))
	assert.Contains(t, rec.Body.String(), "<style>body{color:red}</style>")
	assert.NotContains(t, rec.Body.String(), "<link")
	assert.EqualValues(t, 2, hits.Load())

	rec = get(t, s, inlinePath(upstream.URL+"/index.html", ""))
	assert.Equal(t, "HIT", rec.Header().Get("X-Cache"))
	assert.EqualValues(t, 2, hits.Load())

	rec = get(t, s, inlinePath(upstream.URL+"/index.html", "&pretty=1"))
	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Contains(t, rec.Body.String(), "\n <head>\n")

	assert.Contains(t, logs.String(), "REQ ")
	assert.Contains(t, logs.String(), "RES ")
}

func TestInlineUpstreamFailures(t *testing.T) {
	t.Parallel()
	upstream, _ := newUpstream(t)
	s, _ := newTestServer(nil)

	rec := get(t, s, inlinePath(upstream.URL+"/nope.html", ""))
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	rec = get(t, s, inlinePath(upstream.URL+"/broken.html", ""))
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing.css")
}

func TestInlineRefusesLocalFiles(t *testing.T) {
	t.Parallel()
	secret := filepath.Join(t.TempDir(), "s.js")
	require.NoError(t, os.WriteFile(secret, []byte("TOPSECRET"), 0o644))
	ref := "file://" + filepath.ToSlash(secret)
	if !strings.HasPrefix(filepath.ToSlash(secret), "/") {
		ref = "file:///" + filepath.ToSlash(secret)
	}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, `<html><body><script src="`+ref+`"></script></body></html>`)
	}))
	t.Cleanup(upstream.Close)

	tests := []struct {
		name    string
		fetcher inline.Fetcher
		policy  inline.Policy
		code    int
	}{
		{"default fetcher", fetch.New(fetch.Options{}), inline.PolicyAbort, http.StatusBadGateway},
		{"file-enabled fetcher", fetch.New(fetch.Options{AllowFile: true}), inline.PolicyAbort, http.StatusBadGateway},
		{"degrade", fetch.New(fetch.Options{AllowFile: true}), inline.PolicyDegrade, http.StatusOK},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			s := New(Config{
				Logger:  log.New(io.Discard, "", 0),
				Fetcher: tc.fetcher,
				Options: inline.Options{Policy: tc.policy},
			})
			rec := get(t, s, inlinePath(upstream.URL+"/", ""))
			assert.Equal(t, tc.code, rec.Code, rec.Body.String())
			assert.NotContains(t, rec.Body.String(), "TOPSECRET")
			if tc.code == http.StatusOK {
				assert.Equal(t, "1", rec.Header().Get("X-Inline-Diagnostics"))
			}
		})
	}
}

func TestRequestID(t *testing.T) {
	t.Parallel()
	s, logs := newTestServer(nil)

	rec := get(t, s, "/ping")
	id := rec.Header().Get("X-Request-Id")
	assert.Len(t, id, 36)
	assert.Contains(t, logs.String(), id)

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-Id", "abc")
	rec = httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-Id"))
}

func TestResultCacheExpires(t *testing.T) {
	t.Parallel()
	now := time.Unix(1000, 0)
	c := newResultCache(func() time.Time { return now }, time.Minute)
	c.Store("a", "doc")

	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, "doc", got)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)

	c.Store("b", "doc")
	assert.Len(t, c.data, 1)

	off := newResultCache(nil, -1)
	off.Store("a", "doc")
	_, ok = off.Get("a")
	assert.False(t, ok)
}

func TestParseBool(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want bool
		ok   bool
	}{
		{"", false, false},
		{"1", true, true},
		{"on", true, true},
		{"false", false, true},
		{"maybe", false, false},
	}
	for _, tc := range cases {
		got, ok := parseBool(tc.in)
		if ok != tc.ok || got != tc.want {
			t.Fatalf("parseBool(%q) = (%v,%v), want (%v,%v)", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}
