package main

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFlags(t *testing.T) {
	t.Parallel()
	f, err := parseFlags([]string{"-o", "out.html", "--pretty", "--timeout", "5s", "-w", "3", "--policy", "degrade", "page.html"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "page.html", f.source)
	assert.Equal(t, "out.html", f.output)
	assert.True(t, f.pretty)
	assert.Equal(t, 5*time.Second, f.timeout)
	assert.Equal(t, 3, f.workers)
	assert.Equal(t, "degrade", f.policy)
	assert.True(t, f.changed("workers"))
	assert.False(t, f.changed("retries"))
}

func TestParseFlagsDefaults(t *testing.T) {
	t.Parallel()
	f, err := parseFlags([]string{"https://example.com/"}, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, "index.html", f.output)
	assert.False(t, f.pretty)
	assert.False(t, f.changed("pretty"))
}

func TestParseFlagsErrors(t *testing.T) {
	t.Parallel()
	cases := []struct {
		name string
		args []string
	}{
		{"no source", nil},
		{"two sources", []string{"a.html", "b.html"}},
		{"verbose and quiet", []string{"-v", "-q", "a.html"}},
		{"unknown flag", []string{"--nope", "a.html"}},
		{"empty output", []string{"-o", "", "a.html"}},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := parseFlags(tc.args, io.Discard)
			if !errors.Is(err, ErrUsage) {
				t.Fatalf("parseFlags(%q) error = %v, want ErrUsage", tc.args, err)
			}
		})
	}
}

func TestParseFlagsHelpAndVersion(t *testing.T) {
	t.Parallel()
	_, err := parseFlags([]string{"--help"}, io.Discard)
	assert.ErrorIs(t, err, errHelp)

	f, err := parseFlags([]string{"--version"}, io.Discard)
	require.NoError(t, err)
	assert.True(t, f.version)
}
