// Package inline turns an HTML document with external stylesheets,
// scripts, fonts and images into a single self-contained document.
//
// The Inliner resolves every reference against a BaseContext, fetches it
// through a Fetcher and embeds the result: stylesheets are flattened
// (imports spliced in place, fonts embedded as data: URIs), scripts get
// their source as text, raster images become data: URIs and SVG images are
// embedded as markup.
package inline

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
)

// Resource is the content-type and payload of one fetched reference.
type Resource struct {
	ContentType string
	// Charset is the charset parameter the transport declared, if any.
	Charset string
	Data    []byte
}

// Fetcher turns an absolute reference into a Resource. Implementations
// report unreachable references with an error; the inliner wraps it in a
// FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, ref string) (*Resource, error)
}

// FetcherFunc adapts a function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, ref string) (*Resource, error)

func (f FetcherFunc) Fetch(ctx context.Context, ref string) (*Resource, error) { return f(ctx, ref) }

// Policy decides what happens when a reference cannot be inlined.
type Policy int

const (
	// PolicyAbort fails the whole run on the first unavailable reference.
	PolicyAbort Policy = iota
	// PolicyDegrade keeps the original reference, records a diagnostic and
	// continues.
	PolicyDegrade
)

func (p Policy) String() string {
	if p == PolicyDegrade {
		return "degrade"
	}
	return "abort"
}

// ParsePolicy accepts "abort" or "degrade"; empty means abort.
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "abort":
		return PolicyAbort, nil
	case "degrade":
		return PolicyDegrade, nil
	}
	return PolicyAbort, fmt.Errorf("unknown failure policy %q (want abort or degrade)", s)
}

// Options tune an Inliner.
type Options struct {
	Pretty bool
	Policy Policy
	// Workers > 1 prefetches the document's direct references concurrently
	// before the rewrite pass.
	Workers int
	// MemoBytes bounds the fetch memo; 0 selects 256 MiB.
	MemoBytes int64
	Logger    *log.Logger
	Verbose   bool
}

// Inliner performs inlining runs against one base context. Fetches are
// memoized for the Inliner's lifetime, so use a fresh one per document.
type Inliner struct {
	base  BaseContext
	fetch *memo
	opts  Options
	diag  *Diagnostics
}

// New returns an Inliner fetching through f.
func New(f Fetcher, base BaseContext, opts Options) *Inliner {
	return &Inliner{
		base:  base,
		fetch: newMemo(f, opts.MemoBytes),
		opts:  opts,
		diag:  NewDiagnostics(opts.Logger, opts.Verbose),
	}
}

// Inline is the one-shot form of New(...).Inline.
func Inline(ctx context.Context, f Fetcher, document []byte, base BaseContext, pretty bool) (string, error) {
	return New(f, base, Options{Pretty: pretty}).Inline(ctx, document)
}

// Diagnostics returns the sink collecting this Inliner's non-fatal problems.
func (in *Inliner) Diagnostics() *Diagnostics { return in.diag }

// Base returns the base context references are resolved against.
func (in *Inliner) Base() BaseContext { return in.base }

// FetchCalls reports how many fetches reached the underlying Fetcher.
func (in *Inliner) FetchCalls() int { return in.fetch.Calls() }

// resource resolves name and fetches it through the memo.
func (in *Inliner) resource(ctx context.Context, name string) (*Resource, string, error) {
	ref, err := in.base.Resolve(name)
	if err != nil {
		return nil, "", err
	}
	res, err := in.fetch.Fetch(ctx, ref)
	if err != nil {
		return nil, ref, err
	}
	return res, ref, nil
}

// tolerate returns nil when the policy lets the run continue past err,
// recording it under tag first.
func (in *Inliner) tolerate(tag, origin string, err error) error {
	if in.opts.Policy != PolicyDegrade {
		return err
	}
	in.diag.Add(tag, Diagnostic{Origin: origin, Err: err})
	return nil
}

// decodeDocument converts an HTML document to UTF-8. The encoding comes
// from a byte order mark, the declared charset or a <meta> prescan. Without
// a byte order mark or declaration, valid UTF-8 is taken as is.
func decodeDocument(data []byte, declared string) string {
	contentType := ""
	if declared != "" {
		contentType = "text/html; charset=" + declared
	}
	enc, name, certain := charset.DetermineEncoding(data, contentType)
	if name == "utf-8" || (!certain && utf8.Valid(data)) {
		return decodeText(data)
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return decodeText(data)
	}
	return strings.TrimPrefix(string(out), "\ufeff")
}

// decodeText treats data as UTF-8, dropping a byte order mark.
func decodeText(data []byte) string {
	s := strings.TrimPrefix(string(data), "\ufeff")
	return strings.ToValidUTF8(s, "\ufffd")
}
