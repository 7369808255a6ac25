package inline

import "strings"

// srcsetCandidate is one "url [descriptor]" entry of a srcset attribute.
type srcsetCandidate struct {
	URL        string
	Descriptor string
}

// parseSrcset splits a srcset value into candidates. A URL runs until
// whitespace, so data: URLs containing commas survive intact.
func parseSrcset(s string) []srcsetCandidate {
	var out []srcsetCandidate
	i := 0
	for i < len(s) {
		for i < len(s) && (isSpace(s[i]) || s[i] == ',') {
			i++
		}
		if i >= len(s) {
			break
		}
		start := i
		for i < len(s) && !isSpace(s[i]) {
			i++
		}
		u := s[start:i]
		trailing := strings.HasSuffix(u, ",")
		u = strings.TrimRight(u, ",")
		desc := ""
		if !trailing {
			dstart := i
			depth := 0
			for i < len(s) {
				c := s[i]
				if c == '(' {
					depth++
				} else if c == ')' && depth > 0 {
					depth--
				} else if c == ',' && depth == 0 {
					break
				}
				i++
			}
			desc = strings.Join(strings.Fields(s[dstart:i]), " ")
		}
		if u != "" {
			out = append(out, srcsetCandidate{URL: u, Descriptor: desc})
		}
	}
	return out
}

func formatSrcset(cands []srcsetCandidate) string {
	parts := make([]string, 0, len(cands))
	for _, c := range cands {
		if c.Descriptor == "" {
			parts = append(parts, c.URL)
			continue
		}
		parts = append(parts, c.URL+" "+c.Descriptor)
	}
	return strings.Join(parts, ", ")
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}
