package verify

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExternal(t *testing.T) {
	t.Parallel()
	doc := "file:///tmp/out/index.html"
	tests := []struct {
		url  string
		want bool
	}{
		{"data:image/png;base64,AAAA", false},
		{"DATA:text/css,a", false},
		{"blob:null/1234", false},
		{"about:blank", false},
		{doc, false},
		{doc + "#top", false},
		{"file:///tmp/out/style.css", true},
		{"https://cdn.example/app.js", true},
	}
	for _, tc := range tests {
		if got := external(tc.url, doc); got != tc.want {
			t.Fatalf("external(%q) = %v, want %v", tc.url, got, tc.want)
		}
	}
}

func TestFileURL(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := fileURL(filepath.Join(dir, "a.html"))
	require.NoError(t, err)
	assert.Contains(t, got, "file:///")
	assert.Contains(t, got, "/a.html")
}

func TestCheckInChrome(t *testing.T) {
	if os.Getenv("INLINER_CHROME") != "1" {
		t.Skip("set INLINER_CHROME=1 to run headless Chrome tests")
	}
	dir := t.TempDir()
	self := filepath.Join(dir, "self.html")
	require.NoError(t, os.WriteFile(self, []byte(`<html><body><img src="data:image/gif;base64,R0lGODlhAQABAAAAACw="></body></html>`), 0o644))
	leaky := filepath.Join(dir, "leaky.html")
	require.NoError(t, os.WriteFile(leaky, []byte(`<html><head><link rel="stylesheet" href="missing.css"></head><body></body></html>`), 0o644))

	c := New(nil)
	defer c.Close()

	urls, err := c.Check(context.Background(), self)
	require.NoError(t, err)
	assert.Empty(t, urls)

	urls, err = c.Check(context.Background(), leaky)
	require.NoError(t, err)
	require.Len(t, urls, 1)
	assert.Contains(t, urls[0], "missing.css")
}
