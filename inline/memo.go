package inline

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/singleflight"
)

const defaultMemoBytes = 256 << 20

type memoEntry struct {
	ref        string
	res        *Resource
	prev, next *memoEntry
}

// memo is a byte-bounded LRU of fetched resources keyed by absolute
// reference. Concurrent fetches of one reference share a single call to the
// underlying fetcher and failures are remembered for the memo's lifetime.
type memo struct {
	next  Fetcher
	group singleflight.Group

	mu     sync.Mutex
	max    int64
	size   int64
	m      map[string]*memoEntry
	failed map[string]error
	head   *memoEntry
	tail   *memoEntry
	calls  int
}

func newMemo(next Fetcher, max int64) *memo {
	if max <= 0 {
		max = defaultMemoBytes
	}
	return &memo{next: next, max: max, m: map[string]*memoEntry{}, failed: map[string]error{}}
}

func (c *memo) Fetch(ctx context.Context, ref string) (*Resource, error) {
	if res, ok, err := c.lookup(ref); ok {
		return res, err
	}
	v, err, _ := c.group.Do(ref, func() (any, error) {
		if res, ok, err := c.lookup(ref); ok {
			return res, err
		}
		c.mu.Lock()
		c.calls++
		c.mu.Unlock()
		res, err := c.next.Fetch(ctx, ref)
		if err == nil && res == nil {
			err = errors.New("fetcher returned no resource")
		}
		if err != nil {
			var fe *FetchError
			if !errors.As(err, &fe) {
				err = &FetchError{Ref: ref, Err: err}
			}
			if !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
				c.mu.Lock()
				c.failed[ref] = err
				c.mu.Unlock()
			}
			return nil, err
		}
		c.put(ref, res)
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Resource), nil
}

// Calls returns how many fetches reached the underlying fetcher.
func (c *memo) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *memo) lookup(ref string) (*Resource, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failed[ref]; ok {
		return nil, true, err
	}
	if e, ok := c.m[ref]; ok {
		c.moveFront(e)
		return e.res, true, nil
	}
	return nil, false, nil
}

func (c *memo) moveFront(e *memoEntry) {
	if c.head == e {
		return
	}
	if e.prev != nil {
		e.prev.next = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	}
	if c.tail == e {
		c.tail = e.prev
	}
	e.prev = nil
	e.next = c.head
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *memo) put(ref string, res *Resource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[ref]; ok {
		c.size -= int64(len(e.res.Data))
		e.res = res
		c.size += int64(len(res.Data))
		c.moveFront(e)
	} else {
		e := &memoEntry{ref: ref, res: res}
		e.next = c.head
		if c.head != nil {
			c.head.prev = e
		}
		c.head = e
		if c.tail == nil {
			c.tail = e
		}
		c.m[ref] = e
		c.size += int64(len(res.Data))
	}
	for c.size > c.max && c.tail != nil && c.tail != c.head {
		old := c.tail
		delete(c.m, old.ref)
		c.size -= int64(len(old.res.Data))
		c.tail = old.prev
		if c.tail != nil {
			c.tail.next = nil
		} else {
			c.head = nil
		}
	}
}
