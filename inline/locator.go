package inline

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"
)

// BaseContext is the authority relative resource names are resolved
// against: scheme and host for remote documents, or a file:// directory for
// local ones. The zero value has an empty authority.
type BaseContext struct {
	authority string
}

// NewBase returns a BaseContext for an explicit authority such as
// "https://example.com" or "file:///srv/site".
func NewBase(authority string) BaseContext {
	return BaseContext{authority: strings.TrimRight(authority, "/")}
}

// NewBaseContext derives the base context from the document source given on
// the command line and returns it together with the absolute reference of
// the document itself.
func NewBaseContext(source string) (BaseContext, string, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return BaseContext{}, "", malformed(source, "empty source")
	}
	if hasScheme(source) {
		u, err := url.Parse(source)
		if err != nil {
			return BaseContext{}, "", malformed(source, err.Error())
		}
		if strings.EqualFold(u.Scheme, "file") {
			return NewBase("file://" + path.Dir(u.Path)), source, nil
		}
		if u.Host == "" {
			return BaseContext{}, "", malformed(source, "missing host")
		}
		return NewBase(u.Scheme + "://" + u.Host), source, nil
	}
	abs, err := filepath.Abs(source)
	if err != nil {
		return BaseContext{}, "", malformed(source, err.Error())
	}
	dir := filepath.ToSlash(filepath.Dir(abs))
	if !strings.HasPrefix(dir, "/") {
		// C:/site -> /C:/site
		dir = "/" + dir
	}
	base := NewBase("file://" + dir)
	return base, base.authority + "/" + filepath.Base(abs), nil
}

// Authority returns the scheme+host or file:// root of the context.
func (b BaseContext) Authority() string { return b.authority }

func (b BaseContext) scheme() string {
	if i := strings.Index(b.authority, ":"); i > 0 {
		return b.authority[:i]
	}
	return ""
}

// Resolve turns name into an absolute reference. Names with a scheme are
// returned unchanged, root-relative names are appended to the authority and
// anything else is joined to it with a single slash. Dot segments are not
// collapsed.
func (b BaseContext) Resolve(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", malformed(name, "empty name")
	}
	if _, err := url.Parse(name); err != nil {
		return "", malformed(name, err.Error())
	}
	switch {
	case hasScheme(name):
		return name, nil
	case strings.HasPrefix(name, "//"):
		if s := b.scheme(); s != "" {
			return s + ":" + name, nil
		}
		return "https:" + name, nil
	case strings.HasPrefix(name, "/"):
		return b.authority + name, nil
	default:
		return b.authority + "/" + name, nil
	}
}

// Resolve is the free-function form of BaseContext.Resolve.
func Resolve(name string, base BaseContext) (string, error) {
	return base.Resolve(name)
}

// hasScheme reports whether s starts with an RFC 3986 scheme followed by
// ':'. One-letter schemes are Windows drive letters and do not count.
func hasScheme(s string) bool {
	i := strings.IndexByte(s, ':')
	if i < 2 {
		return false
	}
	for j := 0; j < i; j++ {
		c := s[j]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case j > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}
