package inline

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

const dataScheme = "data:"

// ToInlineReference encodes data as a base64 data: URI of contentType.
func ToInlineReference(data []byte, contentType string) string {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	var b strings.Builder
	b.Grow(len(dataScheme) + len(contentType) + len(";base64,") + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString(dataScheme)
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}

// IsInlineReference reports whether s already embeds its content.
func IsInlineReference(s string) bool {
	s = strings.TrimSpace(s)
	return len(s) >= len(dataScheme) && strings.EqualFold(s[:len(dataScheme)], dataScheme)
}

// DecodeInlineReference returns the media type and payload of a data: URI.
// Both base64 and percent-encoded payloads are accepted.
func DecodeInlineReference(uri string) (string, []byte, error) {
	// data:[<mediatype>][;base64],<data>
	uri = strings.TrimSpace(uri)
	comma := strings.IndexByte(uri, ',')
	if !IsInlineReference(uri) || comma == -1 {
		return "", nil, malformed(uri, "not a data URI")
	}
	meta := uri[len(dataScheme):comma]
	payload := uri[comma+1:]

	params := strings.Split(meta, ";")
	contentType := strings.ToLower(strings.TrimSpace(params[0]))
	if contentType == "" {
		contentType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if !isBase64 {
		raw, err := url.PathUnescape(payload)
		if err != nil {
			return "", nil, malformed(uri[:min(len(uri), 64)], err.Error())
		}
		return contentType, []byte(raw), nil
	}
	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '\f':
			return -1
		}
		return r
	}, payload)
	if unescaped, err := url.PathUnescape(payload); err == nil {
		payload = unescaped
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: bad base64 payload: %v", ErrMalformedReference, err)
	}
	return contentType, raw, nil
}
