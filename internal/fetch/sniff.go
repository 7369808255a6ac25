package fetch

import (
	"bytes"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"mime"
	"net/http"
	"path"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var extraTypes = map[string]string{
	".css":   "text/css",
	".js":    "text/javascript",
	".mjs":   "text/javascript",
	".svg":   "image/svg+xml",
	".webp":  "image/webp",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".otf":   "font/otf",
	".eot":   "application/vnd.ms-fontobject",
	".ico":   "image/x-icon",
}

// ContentType picks the bare media type of a resource from the declared
// header value, the file extension of p and finally the bytes themselves.
// Vague declarations are refined when the payload is a recognizable image.
func ContentType(declared, p string, data []byte) string {
	ct := mediaType(declared)
	if ct == "" {
		ct = typeByExtension(p)
	}
	if vague(ct) {
		if img := sniffImage(data); img != "" {
			return img
		}
	}
	if ct == "" {
		ct = mediaType(http.DetectContentType(data))
	}
	return ct
}

// Charset returns the lower-cased charset parameter of a declared
// Content-Type, or "".
func Charset(declared string) string {
	_, params, err := mime.ParseMediaType(strings.TrimSpace(declared))
	if err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(params["charset"]))
}

func mediaType(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return ""
	}
	if mt, _, err := mime.ParseMediaType(v); err == nil {
		return mt
	}
	mt, _, _ := strings.Cut(v, ";")
	return strings.ToLower(strings.TrimSpace(mt))
}

func typeByExtension(p string) string {
	ext := strings.ToLower(path.Ext(p))
	if ext == "" {
		return ""
	}
	if ct, ok := extraTypes[ext]; ok {
		return ct
	}
	return mediaType(mime.TypeByExtension(ext))
}

func vague(ct string) bool {
	switch ct {
	case "", "application/octet-stream", "binary/octet-stream", "text/plain", "text/xml", "application/xml":
		return true
	}
	return false
}

// sniffImage identifies raster images by decoding their header and SVG by
// its root element.
func sniffImage(data []byte) string {
	if _, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return "image/" + format
	}
	if looksLikeSVG(data) {
		return "image/svg+xml"
	}
	return ""
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if len(head) == 0 || head[0] != '<' {
		return false
	}
	return bytes.Contains(bytes.ToLower(head), []byte("<svg"))
}
