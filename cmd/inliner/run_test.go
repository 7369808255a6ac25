package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inliner/inline"
	"inliner/internal/config"
)

func writeSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		p := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	}
	return dir
}

func testApp() (*app, *bytes.Buffer) {
	var stderr bytes.Buffer
	a := newApp(io.Discard, &stderr)
	a.verify = func(context.Context, string) ([]string, error) { return nil, nil }
	return a, &stderr
}

func TestRunLocalSite(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{
		"index.html": `<html><head><link rel="stylesheet" href="css/site.css"></head>` +
			`<body><script src="app.js"></script></body></html>`,
		"css/site.css": `@import url(css/base.css); p{color:red}`,
		"css/base.css": `body{margin:0}`,
		"app.js":       `console.log("hi")`,
	})
	out := filepath.Join(dir, "out.html")
	a, _ := testApp()

	err := a.run(context.Background(), []string{"-q", "-o", out, filepath.Join(dir, "index.html")})
	require.NoError(t, err)

	got, err := os.ReadFile(out)
	require.NoError(t, err)
	doc := string(got)
	assert.Contains(t, doc, "body{margin:0}")
	assert.Contains(t, doc, "p{color:red}")
	assert.Contains(t, doc, `console.log("hi")`)
	assert.NotContains(t, doc, "<link")
	assert.NotContains(t, doc, `src="app.js"`)

	leftovers, _ := filepath.Glob(filepath.Join(dir, ".inliner-*"))
	assert.Empty(t, leftovers)
}

func TestRunMissingResource(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{
		"index.html": `<link rel="stylesheet" href="missing.css">`,
	})
	out := filepath.Join(dir, "out.html")
	a, _ := testApp()

	err := a.run(context.Background(), []string{"-q", "-o", out, filepath.Join(dir, "index.html")})
	require.ErrorIs(t, err, inline.ErrResourceUnavailable)
	assert.Equal(t, ExitIO, exitCodeFor(err))
	_, statErr := os.Stat(out)
	assert.True(t, errors.Is(statErr, os.ErrNotExist), "output must not be written on failure")

	err = a.run(context.Background(), []string{"-q", "--policy", "degrade", "-o", out, filepath.Join(dir, "index.html")})
	require.NoError(t, err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(got), "missing.css")
}

func TestRunMissingSource(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	a, _ := testApp()
	err := a.run(context.Background(), []string{"-q", "-o", filepath.Join(dir, "out.html"), filepath.Join(dir, "nope.html")})
	assert.Equal(t, ExitIO, exitCodeFor(err))
}

func TestRunUnwritableOutput(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{"index.html": `<p>hi</p>`})
	a, _ := testApp()
	out := filepath.Join(dir, "no", "such", "dir", "out.html")
	err := a.run(context.Background(), []string{"-q", "-o", out, filepath.Join(dir, "index.html")})
	require.ErrorIs(t, err, ErrWriteOutput)
	assert.Equal(t, ExitIO, exitCodeFor(err))
}

func TestRunVerify(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{"index.html": `<p>hi</p>`})
	a, _ := testApp()
	var checked string
	a.verify = func(_ context.Context, path string) ([]string, error) {
		checked = path
		return []string{"https://cdn.example.com/a.png"}, nil
	}
	out := filepath.Join(dir, "out.html")
	err := a.run(context.Background(), []string{"-q", "--verify", "-o", out, filepath.Join(dir, "index.html")})
	require.ErrorIs(t, err, ErrNotSelfContained)
	assert.Equal(t, ExitVerify, exitCodeFor(err))
	assert.Equal(t, out, checked)
	assert.Contains(t, err.Error(), "cdn.example.com")
}

func TestRunConfigOverrides(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{
		"index.html":   `<link rel="stylesheet" href="missing.css">`,
		"inliner.yaml": "policy: degrade\npretty: true\n",
	})
	out := filepath.Join(dir, "out.html")
	a, _ := testApp()

	err := a.run(context.Background(), []string{"-q", "-c", filepath.Join(dir, "inliner.yaml"), "-o", out, filepath.Join(dir, "index.html")})
	require.NoError(t, err)

	err = a.run(context.Background(), []string{"-q", "-c", filepath.Join(dir, "inliner.yaml"), "--policy", "abort", "-o", out, filepath.Join(dir, "index.html")})
	require.ErrorIs(t, err, inline.ErrResourceUnavailable)
}

func TestRunBadConfig(t *testing.T) {
	t.Parallel()
	dir := writeSite(t, map[string]string{
		"index.html": `<p>hi</p>`,
		"bad.yaml":   "nope: 1\n",
	})
	a, _ := testApp()
	err := a.run(context.Background(), []string{"-q", "-c", filepath.Join(dir, "bad.yaml"), "-o", filepath.Join(dir, "out.html"), filepath.Join(dir, "index.html")})
	require.ErrorIs(t, err, config.ErrConfigParse)
	assert.Equal(t, ExitUsage, exitCodeFor(err))
}

func TestRunVersion(t *testing.T) {
	t.Parallel()
	var stdout bytes.Buffer
	a := newApp(&stdout, io.Discard)
	require.NoError(t, a.run(context.Background(), []string{"--version"}))
	assert.True(t, strings.HasPrefix(stdout.String(), "inliner "))
}

func TestRelevant(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	out := filepath.Join(dir, "out.html")
	assert.True(t, relevant(fsEvent(filepath.Join(dir, "index.html")), out))
	assert.False(t, relevant(fsEvent(out), out))
	assert.False(t, relevant(fsEvent(filepath.Join(dir, ".inliner-123")), out))
}
