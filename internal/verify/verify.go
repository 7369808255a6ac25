// Package verify loads a produced document in headless Chrome and reports
// every request it makes outside of itself.
package verify

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	defaultTimeout = 30 * time.Second
	defaultSettle  = 500 * time.Millisecond
)

// Checker owns one headless browser allocator and can check several
// documents with it.
type Checker struct {
	allocator context.Context
	cancel    context.CancelFunc
	logger    *log.Logger
	// Settle is how long to keep listening after the page is ready.
	Settle  time.Duration
	Timeout time.Duration
}

// New starts an allocator for headless Chrome. The browser itself is
// launched lazily by the first Check.
func New(logger *log.Logger) *Checker {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
		chromedp.Flag("disable-background-networking", true),
		chromedp.Flag("disable-sync", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("allow-file-access-from-files", true),
	)
	allocCtx, cancel := chromedp.NewExecAllocator(context.Background(), opts...)
	return &Checker{
		allocator: allocCtx,
		cancel:    cancel,
		logger:    logger,
		Settle:    defaultSettle,
		Timeout:   defaultTimeout,
	}
}

func (c *Checker) Close() {
	if c.cancel != nil {
		c.cancel()
	}
}

// Check is the one-shot form of New(nil).Check.
func Check(ctx context.Context, path string) ([]string, error) {
	c := New(nil)
	defer c.Close()
	return c.Check(ctx, path)
}

// Check opens the document at path and returns the sorted, distinct URLs
// it tried to load that are not embedded in it.
func (c *Checker) Check(ctx context.Context, path string) ([]string, error) {
	docURL, err := fileURL(path)
	if err != nil {
		return nil, err
	}
	taskCtx, cancelBrowser := chromedp.NewContext(c.allocator)
	defer cancelBrowser()
	taskCtx, cancel := context.WithTimeout(taskCtx, c.Timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var mu sync.Mutex
	seen := map[string]bool{}
	chromedp.ListenTarget(taskCtx, func(ev any) {
		if e, ok := ev.(*network.EventRequestWillBeSent); ok && e.Request != nil {
			if external(e.Request.URL, docURL) {
				mu.Lock()
				seen[e.Request.URL] = true
				mu.Unlock()
			}
		}
	})

	err = chromedp.Run(taskCtx,
		network.Enable(),
		chromedp.Navigate(docURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(c.Settle),
	)
	if err != nil {
		return nil, fmt.Errorf("verify %s: %w", path, err)
	}

	mu.Lock()
	defer mu.Unlock()
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	if c.logger != nil && len(out) > 0 {
		c.logger.Printf("VERIFY %s requested %d external resources", path, len(out))
	}
	return out, nil
}

func fileURL(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	p := filepath.ToSlash(abs)
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return "file://" + p, nil
}

// external reports whether a request URL leaves the document.
func external(u, doc string) bool {
	lower := strings.ToLower(u)
	for _, prefix := range []string{"data:", "blob:", "about:", "javascript:", "chrome:", "devtools:"} {
		if strings.HasPrefix(lower, prefix) {
			return false
		}
	}
	base, _, _ := strings.Cut(u, "#")
	return base != doc
}
