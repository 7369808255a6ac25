package fetch

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"io"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"inliner/inline"
)

const defaultCacheBytes = 512 << 20

// DiskCache keeps successful responses of the wrapped fetcher on disk,
// sharded by the sha1 of the reference. Entries are written to a temporary
// file and renamed into place; the least recently used files are pruned
// once the directory exceeds its budget.
type DiskCache struct {
	next   inline.Fetcher
	dir    string
	max    int64
	logger *log.Logger
	mu     sync.Mutex
}

// NewDiskCache wraps next with a cache rooted at dir. max <= 0 selects
// 512 MiB.
func NewDiskCache(next inline.Fetcher, dir string, max int64, logger *log.Logger) *DiskCache {
	if max <= 0 {
		max = defaultCacheBytes
	}
	return &DiskCache{next: next, dir: dir, max: max, logger: logger}
}

func (c *DiskCache) Fetch(ctx context.Context, ref string) (*inline.Resource, error) {
	if res, ok := c.get(ref); ok {
		return res, nil
	}
	res, err := c.next.Fetch(ctx, ref)
	if err != nil {
		return nil, err
	}
	if err := c.put(ref, res); err != nil && c.logger != nil {
		c.logger.Printf("FETCH cache write %s: %v", ref, err)
	}
	return res, nil
}

func (c *DiskCache) key(ref string) (string, string) {
	sum := sha1.Sum([]byte(ref))
	h := hex.EncodeToString(sum[:])
	dir := filepath.Join(c.dir, h[:1], h[1:2])
	return dir, filepath.Join(dir, h+".bin")
}

// An entry is the reference and the content type (with any charset) on one
// line each, then the payload.
func (c *DiskCache) get(ref string) (*inline.Resource, bool) {
	_, p := c.key(ref)
	f, err := os.Open(p)
	if err != nil {
		return nil, false
	}
	defer f.Close()
	r := bufio.NewReader(f)
	stored, err := r.ReadString('\n')
	if err != nil || strings.TrimSuffix(stored, "\n") != ref {
		return nil, false
	}
	ct, err := r.ReadString('\n')
	if err != nil {
		return nil, false
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, false
	}
	now := time.Now()
	_ = os.Chtimes(p, now, now)
	ct = strings.TrimSuffix(ct, "\n")
	return &inline.Resource{ContentType: mediaType(ct), Charset: Charset(ct), Data: data}, true
}

func (c *DiskCache) put(ref string, res *inline.Resource) error {
	if strings.ContainsAny(ref, "\r\n") {
		return nil
	}
	dir, p := c.key(ref)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".entry-*")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(tmp)
	ct := res.ContentType
	if res.Charset != "" {
		ct += "; charset=" + res.Charset
	}
	_, _ = w.WriteString(ref + "\n" + ct + "\n")
	_, _ = w.Write(res.Data)
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	c.prune()
	return nil
}

func (c *DiskCache) prune() {
	c.mu.Lock()
	defer c.mu.Unlock()
	type entry struct {
		p  string
		sz int64
		mt time.Time
	}
	var files []entry
	var total int64
	_ = filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(p, ".bin") {
			return nil
		}
		if info, e := d.Info(); e == nil {
			files = append(files, entry{p, info.Size(), info.ModTime()})
			total += info.Size()
		}
		return nil
	})
	if total <= c.max {
		return
	}
	sort.Slice(files, func(i, j int) bool { return files[i].mt.Before(files[j].mt) })
	for _, f := range files {
		if total <= c.max {
			break
		}
		_ = os.Remove(f.p)
		total -= f.sz
	}
}
