package inline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSrcset(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []srcsetCandidate
	}{
		{"single", "a.png", []srcsetCandidate{{URL: "a.png"}}},
		{"descriptors", "a.png 1x,  b.png   2x", []srcsetCandidate{{"a.png", "1x"}, {"b.png", "2x"}}},
		{"trailing commas", "a.png, b.png,", []srcsetCandidate{{URL: "a.png"}, {URL: "b.png"}}},
		{"comma inside url", "a.png,b.png 2x", []srcsetCandidate{{"a.png,b.png", "2x"}}},
		{"data uri with comma", "data:image/png;base64,AAAA 1x, b.png 480w", []srcsetCandidate{{"data:image/png;base64,AAAA", "1x"}, {"b.png", "480w"}}},
		{"empty", " , ", nil},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, parseSrcset(tc.in))
		})
	}
}

func TestFormatSrcset(t *testing.T) {
	t.Parallel()
	got := formatSrcset([]srcsetCandidate{{URL: "a.png"}, {"b.png", "2x"}})
	assert.Equal(t, "a.png, b.png 2x", got)
}
