package inline

import (
	"context"
	"fmt"
	"sync"
)

// mapFetcher serves resources from memory and counts calls per reference.
type mapFetcher struct {
	mu    sync.Mutex
	res   map[string]*Resource
	calls map[string]int
}

func newMapFetcher() *mapFetcher {
	return &mapFetcher{res: map[string]*Resource{}, calls: map[string]int{}}
}

func (f *mapFetcher) add(ref, contentType, body string) *mapFetcher {
	f.res[ref] = &Resource{ContentType: contentType, Data: []byte(body)}
	return f
}

func (f *mapFetcher) Fetch(_ context.Context, ref string) (*Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[ref]++
	r, ok := f.res[ref]
	if !ok {
		return nil, fmt.Errorf("no such resource %s", ref)
	}
	return r, nil
}

func (f *mapFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *mapFetcher) count(ref string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[ref]
}

const testBase = "http://x.com"
