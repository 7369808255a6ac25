package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inliner/inline"
)

func TestParse(t *testing.T) {
	t.Parallel()
	cfg, err := Parse([]byte(`
userAgent: test/1.0
timeout: 5s
retries: 2
workers: 4
policy: degrade
cacheDir: /tmp/cache
maxBytes: 1024
pretty: true
hosts:
  example.com:
    headers:
      Authorization: Bearer abc
`))
	require.NoError(t, err)
	assert.Equal(t, "test/1.0", cfg.UserAgent)
	d, err := cfg.TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, d)
	assert.Equal(t, 2, cfg.Retries)
	assert.Equal(t, 4, cfg.ResolveWorkers())
	assert.Equal(t, inline.PolicyDegrade, cfg.PolicyValue())
	assert.Equal(t, "/tmp/cache", cfg.CacheDir)
	assert.EqualValues(t, 1024, cfg.MaxBytes)
	assert.True(t, cfg.Pretty)
	assert.Equal(t, "Bearer abc", cfg.HeadersFor("cdn.example.com").Get("Authorization"))
}

func TestParseDefaults(t *testing.T) {
	t.Parallel()
	cfg, err := Parse(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, cfg.Timeout)
	assert.Equal(t, inline.PolicyAbort, cfg.PolicyValue())
	assert.EqualValues(t, DefaultMaxBytes, cfg.MaxBytes)
	want := min(max(runtime.GOMAXPROCS(0)*2, 1), 16)
	assert.Equal(t, want, cfg.ResolveWorkers())
	assert.Nil(t, cfg.HeadersFor("example.com"))
}

func TestParseErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"unknown key", "colour: red\n", ErrConfigParse},
		{"bad yaml", "retries: [\n", ErrConfigParse},
		{"bad policy", "policy: retry\n", ErrInvalid},
		{"bad timeout", "timeout: soon\n", ErrInvalid},
		{"negative timeout", "timeout: -1s\n", ErrInvalid},
		{"too many retries", "retries: 99\n", ErrInvalid},
		{"negative workers", "workers: -1\n", ErrInvalid},
		{"host with scheme", "hosts:\n  https://x.com:\n    headers: {}\n", ErrInvalid},
		{"too large", "# " + strings.Repeat("x", MaxInputSize), ErrConfigParse},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tc.yaml))
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	p := filepath.Join(dir, "inliner.yaml")
	require.NoError(t, os.WriteFile(p, []byte("pretty: true\n"), 0o644))

	cfg, err := Load(p)
	require.NoError(t, err)
	assert.True(t, cfg.Pretty)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, ErrConfigNotFound)
}

func TestHeaderStoreFind(t *testing.T) {
	t.Parallel()
	s := NewHeaderStore(map[string]HostConfig{
		"example.com":     {Headers: map[string]string{"X-Site": "root"}},
		"api.example.com": {Headers: map[string]string{"X-Site": "api"}},
		"empty.org":       {},
	})
	tests := []struct {
		host string
		want string
	}{
		{"example.com", "root"},
		{"www.example.com", "root"},
		{"v2.api.example.com", "api"},
		{"API.Example.com.", "api"},
		{"example.org", ""},
		{"empty.org", ""},
		{"", ""},
	}
	for _, tc := range tests {
		for i := 0; i < 2; i++ {
			if got := s.Find(tc.host).Get("X-Site"); got != tc.want {
				t.Fatalf("Find(%q) = %q, want %q", tc.host, got, tc.want)
			}
		}
	}

	h := s.Find("example.com")
	h.Set("X-Site", "mutated")
	assert.Equal(t, "root", s.Find("example.com").Get("X-Site"))
}
