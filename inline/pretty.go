package inline

import (
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// verbatim elements are rendered exactly as html.Render would, since
// reindenting their content changes what they mean.
var verbatim = map[atom.Atom]bool{
	atom.Script:    true,
	atom.Style:     true,
	atom.Pre:       true,
	atom.Textarea:  true,
	atom.Title:     true,
	atom.Xmp:       true,
	atom.Iframe:    true,
	atom.Noembed:   true,
	atom.Noframes:  true,
	atom.Plaintext: true,
	atom.Listing:   true,
}

var void = map[atom.Atom]bool{
	atom.Area:   true,
	atom.Base:   true,
	atom.Br:     true,
	atom.Col:    true,
	atom.Embed:  true,
	atom.Hr:     true,
	atom.Img:    true,
	atom.Input:  true,
	atom.Keygen: true,
	atom.Link:   true,
	atom.Meta:   true,
	atom.Param:  true,
	atom.Source: true,
	atom.Track:  true,
	atom.Wbr:    true,
}

// renderPretty writes n with one element per line, children indented by
// one space per level and whitespace in text collapsed.
func renderPretty(w io.Writer, n *html.Node) error {
	p := &prettyPrinter{w: w}
	p.node(n, 0)
	return p.err
}

type prettyPrinter struct {
	w   io.Writer
	err error
}

func (p *prettyPrinter) line(depth int, s string) {
	if p.err != nil {
		return
	}
	_, p.err = io.WriteString(p.w, strings.Repeat(" ", depth)+s+"\n")
}

func (p *prettyPrinter) node(n *html.Node, depth int) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			p.node(c, depth)
		}
	case html.TextNode:
		if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
			p.line(depth, html.EscapeString(text))
		}
	case html.ElementNode:
		p.element(n, depth)
	default:
		p.raw(n, depth)
	}
}

func (p *prettyPrinter) raw(n *html.Node, depth int) {
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		p.err = err
		return
	}
	p.line(depth, b.String())
}

func (p *prettyPrinter) element(n *html.Node, depth int) {
	if verbatim[n.DataAtom] || n.Namespace != "" {
		p.raw(n, depth)
		return
	}
	open := "<" + n.Data + attrString(n.Attr)
	if void[n.DataAtom] {
		p.line(depth, open+"/>")
		return
	}
	if text, ok := onlyText(n); ok {
		p.line(depth, open+">"+html.EscapeString(text)+"</"+n.Data+">")
		return
	}
	p.line(depth, open+">")
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		p.node(c, depth+1)
	}
	p.line(depth, "</"+n.Data+">")
}

// onlyText reports whether n has no element children, returning its
// collapsed text.
func onlyText(n *html.Node) (string, bool) {
	var parts []string
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.TextNode {
			return "", false
		}
		parts = append(parts, c.Data)
	}
	return strings.Join(strings.Fields(strings.Join(parts, "")), " "), true
}

func attrString(attrs []html.Attribute) string {
	var b strings.Builder
	for _, a := range attrs {
		b.WriteByte(' ')
		if a.Namespace != "" {
			b.WriteString(a.Namespace + ":")
		}
		b.WriteString(a.Key + `="` + html.EscapeString(a.Val) + `"`)
	}
	return b.String()
}
