// Package fetch turns absolute references into inline.Resources over HTTP,
// from the local filesystem or from data: URIs.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"inliner/inline"
)

const (
	DefaultUserAgent = "inliner/1.0 (+https://github.com/inliner)"
	DefaultTimeout   = 30 * time.Second
	DefaultMaxBytes  = 64 << 20
)

// Options configure the fetcher stack returned by New.
type Options struct {
	UserAgent string
	Timeout   time.Duration
	// Retries is the number of extra attempts for transient HTTP failures.
	Retries  int
	MaxBytes int64
	// CacheDir enables the on-disk response cache when set.
	CacheDir   string
	CacheBytes int64
	// Headers returns extra request headers for a host; may be nil.
	Headers func(host string) http.Header
	Logger  *log.Logger
	Client  *http.Client
	// AllowFile registers the file:// fetcher. Leave it off whenever the
	// document comes from someone else, as in the daemon.
	AllowFile bool
}

// New assembles the default fetcher: a scheme mux over HTTP(S), data and,
// with AllowFile, file fetchers. HTTP gets retries and an optional disk
// cache in front.
func New(opts Options) inline.Fetcher {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	var remote inline.Fetcher = NewHTTP(opts)
	if opts.Retries > 0 {
		remote = NewRetry(remote, opts.Retries, opts.Logger)
	}
	if opts.CacheDir != "" {
		remote = NewDiskCache(remote, opts.CacheDir, opts.CacheBytes, opts.Logger)
	}
	mux := Mux{
		"http":  remote,
		"https": remote,
		"data":  Data{},
	}
	if opts.AllowFile {
		mux["file"] = File{}
	}
	return mux
}

// Mux dispatches a reference to the fetcher registered for its scheme.
type Mux map[string]inline.Fetcher

func (m Mux) Fetch(ctx context.Context, ref string) (*inline.Resource, error) {
	scheme := ""
	if i := strings.IndexByte(ref, ':'); i > 0 {
		scheme = strings.ToLower(ref[:i])
	}
	f, ok := m[scheme]
	if !ok {
		return nil, fmt.Errorf("unsupported scheme %q", scheme)
	}
	return f.Fetch(ctx, ref)
}

// Data serves data: URIs without any I/O.
type Data struct{}

func (Data) Fetch(_ context.Context, ref string) (*inline.Resource, error) {
	ct, data, err := inline.DecodeInlineReference(ref)
	if err != nil {
		return nil, err
	}
	return &inline.Resource{ContentType: ct, Data: data}, nil
}
