package inline

import (
	"bytes"
	"context"
	"regexp"
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/sync/errgroup"
)

var (
	stylesheetLink = cascadia.MustCompile("link[rel~=stylesheet]")
	prefetchable   = cascadia.MustCompile("img[src], img[srcset], source[srcset], script[src], link[rel~=stylesheet]")
	scriptCloser   = regexp.MustCompile(`(?i)</script`)
)

// elementHandler rewrites one element. It reports whether the traversal
// should continue into the element's children; handlers that remove or
// replace the element return false.
type elementHandler func(in *Inliner, ctx context.Context, n *html.Node) (bool, error)

var handlers = map[atom.Atom]elementHandler{
	atom.Noscript: (*Inliner).dropNoscript,
	atom.Style:    (*Inliner).inlineStyle,
	atom.Link:     (*Inliner).inlineLink,
	atom.Script:   (*Inliner).inlineScript,
	atom.Img:      (*Inliner).inlineImage,
	atom.Source:   (*Inliner).inlineSource,
	atom.Meta:     (*Inliner).markUTF8,
}

// Inline parses document, embeds every external stylesheet, script, font
// and image it references and returns the serialized result. The result
// is always UTF-8; the input encoding is taken from a byte order mark or a
// <meta> charset and defaults to UTF-8.
func (in *Inliner) Inline(ctx context.Context, document []byte) (string, error) {
	return in.InlineResource(ctx, &Resource{Data: document})
}

// InlineResource is Inline for a fetched document, honouring the charset
// its transport declared.
func (in *Inliner) InlineResource(ctx context.Context, document *Resource) (string, error) {
	doc, err := html.Parse(strings.NewReader(decodeDocument(document.Data, document.Charset)))
	if err != nil {
		return "", err
	}
	if in.opts.Workers > 1 {
		in.prefetch(ctx, doc)
	}
	if err := in.rewrite(ctx, doc); err != nil {
		return "", err
	}
	var b strings.Builder
	if in.opts.Pretty {
		err = renderPretty(&b, doc)
	} else {
		err = html.Render(&b, doc)
	}
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// prefetch warms the memo with the document's direct references. Errors
// are left in the memo and surface during the rewrite.
func (in *Inliner) prefetch(ctx context.Context, doc *html.Node) {
	seen := map[string]bool{}
	var refs []string
	add := func(name string) {
		if name == "" || IsInlineReference(name) {
			return
		}
		ref, err := in.base.Resolve(name)
		if err != nil || seen[ref] {
			return
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	for _, n := range cascadia.QueryAll(doc, prefetchable) {
		if n.Namespace != "" {
			continue
		}
		switch n.DataAtom {
		case atom.Link:
			if name, ok := linkTarget(n); ok {
				add(name)
			}
		case atom.Img, atom.Script:
			src, _ := getAttr(n, "src")
			add(src)
		}
		if srcset, ok := getAttr(n, "srcset"); ok {
			for _, c := range parseSrcset(srcset) {
				add(c.URL)
			}
		}
	}
	if len(refs) == 0 {
		return
	}
	in.diag.Tracef("FETCH", "prefetching %d references with %d workers", len(refs), in.opts.Workers)
	var g errgroup.Group
	g.SetLimit(in.opts.Workers)
	for _, ref := range refs {
		ref := ref
		g.Go(func() error {
			_, _ = in.fetch.Fetch(ctx, ref)
			return nil
		})
	}
	_ = g.Wait()
}

// rewrite walks the children of n in document order. The child list is
// copied first because handlers remove and replace nodes.
func (in *Inliner) rewrite(ctx context.Context, n *html.Node) error {
	var children []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		children = append(children, c)
	}
	for _, c := range children {
		if err := ctx.Err(); err != nil {
			return err
		}
		switch c.Type {
		case html.CommentNode:
			n.RemoveChild(c)
			continue
		case html.ElementNode:
			// Handlers only see HTML elements. Foreign content such as an
			// inline svg is still walked so its comments are dropped too.
			if h, ok := handlers[c.DataAtom]; ok && c.Namespace == "" {
				descend, err := h(in, ctx, c)
				if err != nil {
					return err
				}
				if !descend {
					continue
				}
			}
		}
		if err := in.rewrite(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

// markUTF8 keeps charset declarations in step with the UTF-8 output.
func (in *Inliner) markUTF8(_ context.Context, n *html.Node) (bool, error) {
	if cs, ok := getAttr(n, "charset"); ok && !strings.EqualFold(strings.TrimSpace(cs), "utf-8") {
		in.diag.Tracef("META", "charset %s rewritten to utf-8", cs)
		setAttr(n, "charset", "utf-8")
	}
	equiv, _ := getAttr(n, "http-equiv")
	content, _ := getAttr(n, "content")
	if strings.EqualFold(strings.TrimSpace(equiv), "content-type") && !strings.Contains(strings.ToLower(content), "utf-8") {
		setAttr(n, "content", "text/html; charset=utf-8")
	}
	return false, nil
}

func (in *Inliner) dropNoscript(_ context.Context, n *html.Node) (bool, error) {
	n.Parent.RemoveChild(n)
	return false, nil
}


func (in *Inliner) inlineStyle(ctx context.Context, n *html.Node) (bool, error) {
	sheet, err := in.flatten(ctx, textContent(n), "inline", nil)
	if err != nil {
		return false, err
	}
	setText(n, sheet.Serialize(in.opts.Pretty))
	return false, nil
}

func linkTarget(n *html.Node) (string, bool) {
	if !stylesheetLink.Match(n) {
		return "", false
	}
	if href, ok := getAttr(n, "href"); ok {
		return href, true
	}
	return getAttr(n, "data-href")
}

func (in *Inliner) inlineLink(ctx context.Context, n *html.Node) (bool, error) {
	name, ok := linkTarget(n)
	if !ok {
		return false, nil
	}
	in.diag.Tracef("LINK", "inlining stylesheet %s", name)
	sheet, err := in.FlattenResource(ctx, name)
	if err != nil {
		return false, in.tolerate("LINK", name, err)
	}
	style := &html.Node{Type: html.ElementNode, Data: "style", DataAtom: atom.Style}
	if media, ok := getAttr(n, "media"); ok {
		style.Attr = append(style.Attr, html.Attribute{Key: "media", Val: media})
	}
	setText(style, sheet.Serialize(in.opts.Pretty))
	replaceNode(n, style)
	return false, nil
}

func (in *Inliner) inlineScript(ctx context.Context, n *html.Node) (bool, error) {
	src, ok := getAttr(n, "src")
	if !ok {
		return false, nil
	}
	if IsInlineReference(src) {
		in.diag.Tracef("SCRIPT", "leaving data: script in place")
		return false, nil
	}
	res, ref, err := in.resource(ctx, src)
	if err != nil {
		return false, in.tolerate("SCRIPT", src, err)
	}
	in.diag.Tracef("SCRIPT", "inlining %s", ref)
	removeAttr(n, "src")
	setText(n, escapeScript(decodeText(res.Data)))
	return false, nil
}

// escapeScript keeps inlined source from closing its script element early.
func escapeScript(s string) string {
	return scriptCloser.ReplaceAllStringFunc(s, func(m string) string {
		return `<\/` + m[2:]
	})
}

func (in *Inliner) inlineImage(ctx context.Context, n *html.Node) (bool, error) {
	if src, ok := getAttr(n, "src"); ok && !IsInlineReference(src) {
		res, ref, err := in.resource(ctx, src)
		if err != nil {
			if err := in.tolerate("IMG", src, err); err != nil {
				return false, err
			}
		} else {
			in.diag.Tracef("IMG", "inlining %s (%s)", ref, res.ContentType)
			if res.ContentType == "image/svg+xml" {
				if nodes := parseSVG(res.Data); len(nodes) > 0 {
					for _, s := range nodes {
						n.Parent.InsertBefore(s, n)
					}
					n.Parent.RemoveChild(n)
					return false, nil
				}
				in.diag.Tracef("IMG", "%s has no SVG element, embedding as data", ref)
			}
			setAttr(n, "src", ToInlineReference(res.Data, res.ContentType))
		}
	} else if ok {
		in.diag.Tracef("IMG", "found already-inline image")
	}
	return false, in.inlineSrcset(ctx, n)
}

func (in *Inliner) inlineSource(ctx context.Context, n *html.Node) (bool, error) {
	return false, in.inlineSrcset(ctx, n)
}

func (in *Inliner) inlineSrcset(ctx context.Context, n *html.Node) error {
	srcset, ok := getAttr(n, "srcset")
	if !ok {
		return nil
	}
	cands := parseSrcset(srcset)
	changed := false
	for i, c := range cands {
		if IsInlineReference(c.URL) {
			continue
		}
		res, _, err := in.resource(ctx, c.URL)
		if err != nil {
			if err := in.tolerate("IMG", c.URL, err); err != nil {
				return err
			}
			continue
		}
		cands[i].URL = ToInlineReference(res.Data, res.ContentType)
		changed = true
	}
	if changed {
		setAttr(n, "srcset", formatSrcset(cands))
	}
	return nil
}

// parseSVG parses fetched SVG markup and returns its top-level elements
// with comments removed. XML declarations and doctypes are dropped.
func parseSVG(data []byte) []*html.Node {
	body := &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
	nodes, err := html.ParseFragment(bytes.NewReader(data), body)
	if err != nil {
		return nil
	}
	var out []*html.Node
	for _, n := range nodes {
		if n.Type != html.ElementNode {
			continue
		}
		stripComments(n)
		out = append(out, n)
	}
	return out
}

func stripComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			stripComments(c)
		}
		c = next
	}
}

func replaceNode(old, repl *html.Node) {
	old.Parent.InsertBefore(repl, old)
	old.Parent.RemoveChild(old)
}

func textContent(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func setText(n *html.Node, s string) {
	for c := n.FirstChild; c != nil; c = n.FirstChild {
		n.RemoveChild(c)
	}
	if s != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: s})
	}
}

func getAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

func removeAttr(n *html.Node, key string) {
	attrs := n.Attr[:0]
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			continue
		}
		attrs = append(attrs, a)
	}
	n.Attr = attrs
}
