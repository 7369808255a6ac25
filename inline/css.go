package inline

import (
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/gorilla/css/scanner"
)

// RuleKind classifies a top-level stylesheet rule.
type RuleKind int

const (
	RuleOther RuleKind = iota
	RuleComment
	RuleImport
	RuleFontFace
)

func (k RuleKind) String() string {
	switch k {
	case RuleComment:
		return "comment"
	case RuleImport:
		return "@import"
	case RuleFontFace:
		return "@font-face"
	default:
		return "other"
	}
}

// Rule is one top-level rule kept as the exact token sequence it was
// parsed from, so serializing it reproduces the source text.
type Rule struct {
	Kind   RuleKind
	Line   int
	Column int
	tokens []*scanner.Token
}

func newRawRule(kind RuleKind, text string) *Rule {
	return &Rule{Kind: kind, tokens: []*scanner.Token{{Type: scanner.TokenChar, Value: text}}}
}

func (r *Rule) String() string {
	var b strings.Builder
	for _, t := range r.tokens {
		b.WriteString(t.Value)
	}
	return b.String()
}

// Keyword returns the lower-cased at-keyword ("@import") or "".
func (r *Rule) Keyword() string {
	if len(r.tokens) == 0 || r.tokens[0].Type != scanner.TokenAtKeyword {
		return ""
	}
	return strings.ToLower(r.tokens[0].Value)
}

// prelude is the text between the at-keyword and the terminating ';' or
// block of an at-rule.
func (r *Rule) prelude() string {
	if r.Keyword() == "" {
		return ""
	}
	var b strings.Builder
	depth := 0
	for _, t := range r.tokens[1:] {
		if t.Type == scanner.TokenFunction {
			depth++
		}
		if t.Type == scanner.TokenChar {
			switch t.Value {
			case "(", "[":
				depth++
			case ")", "]":
				depth--
			case ";", "{":
				if depth <= 0 {
					return strings.TrimSpace(b.String())
				}
			}
		}
		if t.Type == scanner.TokenComment {
			continue
		}
		b.WriteString(t.Value)
	}
	return strings.TrimSpace(b.String())
}

// cssURL is one url(...) reference inside a rule: the tokens it occupies
// and its unquoted target.
type cssURL struct {
	span   []*scanner.Token
	Target string
}

func (u *cssURL) replace(target string) {
	u.span[0].Value = `url("` + target + `")`
	for _, t := range u.span[1:] {
		t.Value = ""
	}
	u.Target = target
}

func (r *Rule) urls() []*cssURL {
	var out []*cssURL
	for i := 0; i < len(r.tokens); i++ {
		t := r.tokens[i]
		switch {
		case t.Type == scanner.TokenURI:
			out = append(out, &cssURL{span: r.tokens[i : i+1], Target: uriTarget(t.Value)})
		case t.Type == scanner.TokenFunction && strings.EqualFold(t.Value, "url("):
			target := ""
			j := i + 1
			for ; j < len(r.tokens); j++ {
				tj := r.tokens[j]
				if tj.Type == scanner.TokenString && target == "" {
					target = unquoteCSS(tj.Value)
				}
				if tj.Type == scanner.TokenChar && tj.Value == ")" {
					break
				}
			}
			if j == len(r.tokens) {
				continue
			}
			out = append(out, &cssURL{span: r.tokens[i : j+1], Target: target})
			i = j
		}
	}
	return out
}

// Stylesheet is an ordered rule sequence.
type Stylesheet []*Rule

// Serialize joins the rules, one per line when pretty is set.
func (s Stylesheet) Serialize(pretty bool) string {
	sep := ""
	if pretty {
		sep = "\n"
	}
	parts := make([]string, 0, len(s))
	for _, r := range s {
		parts = append(parts, r.String())
	}
	return strings.Join(parts, sep)
}

func (s Stylesheet) String() string { return s.Serialize(false) }

// Count returns the number of rules of the given kind.
func (s Stylesheet) Count(kind RuleKind) int {
	n := 0
	for _, r := range s {
		if r.Kind == kind {
			n++
		}
	}
	return n
}

// ParseStylesheet splits css into top-level rules. Parse errors are
// reported to diag with their position in origin; the rule containing the
// error is dropped and parsing resumes after it.
func ParseStylesheet(css, origin string, diag *Diagnostics) Stylesheet {
	p := &cssParser{src: css, origin: origin, diag: diag}
	p.tokenize()
	return p.rules()
}

type cssParser struct {
	src    string
	origin string
	diag   *Diagnostics
	toks   []*scanner.Token
	offs   []int
	pos    int
}

// tokenize runs the scanner over src. The scanner stops for good on its
// first error, so after an unclosed string it is restarted on the next line;
// an error marker token is left in the stream for the rule splitter.
func (p *cssParser) tokenize() {
	off := 0
	for off < len(p.src) {
		s := scanner.New(p.src[off:])
		consumed := 0
		restart := -1
		for {
			t := s.Next()
			if t.Type == scanner.TokenEOF {
				break
			}
			if t.Type == scanner.TokenError {
				at := off + consumed
				p.reportAt(at, t.Value)
				p.toks = append(p.toks, &scanner.Token{Type: scanner.TokenError})
				p.offs = append(p.offs, at)
				restart = p.resync(at)
				break
			}
			p.toks = append(p.toks, t)
			p.offs = append(p.offs, off+consumed)
			consumed += len(t.Value)
		}
		if restart < 0 {
			return
		}
		off = restart
	}
}

func (p *cssParser) resync(at int) int {
	rest := p.src[at:]
	if strings.HasPrefix(rest, "/*") {
		// an unclosed comment runs to the end of input
		return -1
	}
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		return at + i + 1
	}
	return -1
}

func (p *cssParser) rules() Stylesheet {
	var sheet Stylesheet
	for p.pos < len(p.toks) {
		t := p.toks[p.pos]
		switch t.Type {
		case scanner.TokenS, scanner.TokenCDO, scanner.TokenCDC, scanner.TokenBOM, scanner.TokenError:
			p.pos++
		case scanner.TokenComment:
			sheet = append(sheet, p.rule(RuleComment, p.pos, p.pos+1))
			p.pos++
		case scanner.TokenAtKeyword:
			if r := p.atRule(); r != nil {
				sheet = append(sheet, r)
			}
		default:
			if r := p.qualifiedRule(); r != nil {
				sheet = append(sheet, r)
			}
		}
	}
	return sheet
}

func (p *cssParser) atRule() *Rule {
	start := p.pos
	kind := RuleOther
	switch strings.ToLower(p.toks[start].Value) {
	case "@import":
		kind = RuleImport
	case "@font-face":
		kind = RuleFontFace
	}
	sp := p.consume(true)
	switch {
	case sp.broken:
		return nil
	case sp.stray:
		p.reportTok(sp.end, "unexpected } in at-rule")
		return nil
	}
	r := p.rule(kind, start, sp.end)
	r.close(sp.missing, !sp.block)
	return r
}

func (p *cssParser) qualifiedRule() *Rule {
	start := p.pos
	sp := p.consume(false)
	switch {
	case sp.broken:
		return nil
	case sp.stray:
		p.reportTok(sp.end, "unexpected }")
		return nil
	case !sp.block:
		p.reportTok(start, "EOF reached before {} block for a qualified rule")
		return nil
	}
	r := p.rule(RuleOther, start, sp.end)
	r.close(sp.missing, false)
	return r
}

type ruleSpan struct {
	end     int
	block   bool
	broken  bool
	stray   bool
	missing []string
}

// consume advances past one rule starting at p.pos. A rule ends after the
// '}' closing its first top-level block, or at a top-level ';' when
// semicolonEnds is set.
func (p *cssParser) consume(semicolonEnds bool) ruleSpan {
	var sp ruleSpan
	var stack []string
	for i := p.pos; i < len(p.toks); i++ {
		t := p.toks[i]
		switch t.Type {
		case scanner.TokenError:
			sp.broken = true
		case scanner.TokenFunction:
			stack = append(stack, ")")
		case scanner.TokenChar:
			switch t.Value {
			case "(":
				stack = append(stack, ")")
			case "[":
				stack = append(stack, "]")
			case "{":
				if len(stack) == 0 {
					sp.block = true
				}
				stack = append(stack, "}")
			case ")", "]", "}":
				n := len(stack)
				if n > 0 && stack[n-1] == t.Value {
					stack = stack[:n-1]
					if n == 1 && t.Value == "}" {
						p.pos = i + 1
						sp.end = i + 1
						return sp
					}
				} else if n == 0 && t.Value == "}" {
					p.pos = i + 1
					sp.end = i
					sp.stray = true
					return sp
				}
			case ";":
				if semicolonEnds && len(stack) == 0 {
					p.pos = i + 1
					sp.end = i + 1
					return sp
				}
			}
		}
	}
	p.pos = len(p.toks)
	sp.end = len(p.toks)
	for i := len(stack) - 1; i >= 0; i-- {
		sp.missing = append(sp.missing, stack[i])
	}
	return sp
}

func (p *cssParser) rule(kind RuleKind, start, end int) *Rule {
	line, col := position(p.src, p.offs[start])
	toks := make([]*scanner.Token, end-start)
	copy(toks, p.toks[start:end])
	return &Rule{Kind: kind, Line: line, Column: col, tokens: toks}
}

// close appends the closers a truncated rule is missing, so that rules of
// a following stylesheet are not swallowed once sheets are concatenated.
func (r *Rule) close(missing []string, statement bool) {
	for _, c := range missing {
		r.tokens = append(r.tokens, &scanner.Token{Type: scanner.TokenChar, Value: c})
	}
	if statement {
		last := r.tokens[len(r.tokens)-1]
		if last.Type != scanner.TokenChar || last.Value != ";" {
			r.tokens = append(r.tokens, &scanner.Token{Type: scanner.TokenChar, Value: ";"})
		}
	}
}

func (p *cssParser) reportTok(i int, msg string) {
	off := len(p.src)
	if i < len(p.offs) {
		off = p.offs[i]
	}
	p.reportAt(off, msg)
}

func (p *cssParser) reportAt(off int, msg string) {
	line, col := position(p.src, off)
	p.diag.CSSError(p.origin, line, col, msg)
}

// position converts a byte offset into 1-based line and column.
func position(src string, off int) (int, int) {
	if off > len(src) {
		off = len(src)
	}
	head := src[:off]
	line := 1 + strings.Count(head, "\n")
	col := off - (strings.LastIndexByte(head, '\n') + 1) + 1
	return line, col
}

// importTarget extracts the stylesheet name and the condition following it
// from an @import prelude: url(x), url("x") or "x".
func importTarget(prelude string) (string, string) {
	s := strings.TrimSpace(prelude)
	if s == "" {
		return "", ""
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "url(") {
		end := closingParen(s)
		if end == -1 {
			return "", ""
		}
		return uriTarget(s[:end+1]), strings.TrimSpace(s[end+1:])
	}
	if (s[0] == '"' || s[0] == '\'') && len(s) > 1 {
		if idx := strings.IndexByte(s[1:], s[0]); idx != -1 {
			return unquoteCSS(s[:idx+2]), strings.TrimSpace(s[idx+2:])
		}
	}
	return "", ""
}

// importCondition is the optional layer, supports() and media list that
// may follow an @import target, in that order.
type importCondition struct {
	layered  bool
	layer    string // empty for an anonymous layer
	supports string
	media    string
}

func parseImportCondition(s string) importCondition {
	var c importCondition
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "layer("):
		if end := matchParen(s, len("layer")); end != -1 {
			c.layered, c.layer = true, strings.TrimSpace(s[len("layer("):end])
			s = strings.TrimSpace(s[end+1:])
		}
	case lower == "layer" || (strings.HasPrefix(lower, "layer") && isSpace(s[len("layer")])):
		c.layered = true
		s = strings.TrimSpace(s[len("layer"):])
	}
	if strings.HasPrefix(strings.ToLower(s), "supports(") {
		if end := matchParen(s, len("supports")); end != -1 {
			c.supports = strings.TrimSpace(s[len("supports("):end])
			s = strings.TrimSpace(s[end+1:])
		}
	}
	c.media = s
	return c
}

func (c importCondition) empty() bool {
	return !c.layered && c.supports == "" && c.media == ""
}

// wrap encloses css in the block rules equivalent to the condition.
func (c importCondition) wrap(css string) string {
	if c.media != "" {
		css = "@media " + c.media + "{" + css + "}"
	}
	if c.supports != "" {
		css = "@supports (" + c.supports + "){" + css + "}"
	}
	if c.layered {
		if c.layer != "" {
			css = "@layer " + c.layer + "{" + css + "}"
		} else {
			css = "@layer{" + css + "}"
		}
	}
	return css
}

// matchParen returns the index of the ')' closing the '(' at s[open],
// honouring nesting and quoted text, or -1.
func matchParen(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// closingParen finds the ')' ending a url( token, skipping quoted text.
func closingParen(s string) int {
	var quote byte
	for i := 4; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == ')':
			return i
		}
	}
	return -1
}

func uriTarget(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 4 && strings.EqualFold(v[:4], "url(") {
		v = v[4:]
	}
	v = strings.TrimSuffix(v, ")")
	return unquoteCSS(strings.TrimSpace(v))
}

func unquoteCSS(v string) string {
	v = strings.TrimSpace(v)
	if len(v) >= 2 && (v[0] == '"' || v[0] == '\'') && v[len(v)-1] == v[0] {
		v = v[1 : len(v)-1]
	}
	if strings.IndexByte(v, '\\') >= 0 {
		v = unescapeCSS(v)
	}
	return v
}

// unescapeCSS resolves backslash escapes: up to six hex digits with one
// optional trailing space, an escaped newline (removed), or a literal char.
func unescapeCSS(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		j := i
		for j < len(s) && j-i < 6 && isHex(s[j]) {
			j++
		}
		if j > i {
			code, _ := strconv.ParseUint(s[i:j], 16, 32)
			r := rune(code)
			if r == 0 || !utf8.ValidRune(r) {
				r = utf8.RuneError
			}
			b.WriteRune(r)
			if j < len(s) && (s[j] == ' ' || s[j] == '\t' || s[j] == '\n') {
				j++
			}
			i = j - 1
			continue
		}
		if s[i] == '\n' {
			continue
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func isHex(c byte) bool {
	return c >= '0' && c <= '9' || c >= 'a' && c <= 'f' || c >= 'A' && c <= 'F'
}
