package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"inliner/inline"
)

// File reads file:// references from the local filesystem. Query strings
// and fragments are ignored.
type File struct{}

func (File) Fetch(ctx context.Context, ref string) (*inline.Resource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p, err := filePath(ref)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, err
	}
	return &inline.Resource{ContentType: ContentType("", p, data), Data: data}, nil
}

func filePath(ref string) (string, error) {
	rest, ok := strings.CutPrefix(ref, "file://")
	if !ok {
		return "", fmt.Errorf("not a file reference: %q", ref)
	}
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	if p, err := url.PathUnescape(rest); err == nil {
		rest = p
	}
	// file:///C:/site -> C:/site
	if len(rest) > 2 && rest[0] == '/' && rest[2] == ':' {
		rest = rest[1:]
	}
	return filepath.FromSlash(rest), nil
}
