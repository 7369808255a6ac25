package inline

import (
	"context"
	"fmt"
	"slices"
)

const maxImportDepth = 16

// Flatten parses cssText and returns it with comments removed, every
// @import replaced in place by the flattened rules of the imported sheet
// and every @font-face url() embedded as a data: URI. origin labels parse
// diagnostics.
func (in *Inliner) Flatten(ctx context.Context, cssText, origin string) (Stylesheet, error) {
	return in.flatten(ctx, cssText, origin, nil)
}

// FlattenResource fetches the stylesheet called name and flattens it.
func (in *Inliner) FlattenResource(ctx context.Context, name string) (Stylesheet, error) {
	res, ref, err := in.resource(ctx, name)
	if err != nil {
		return nil, err
	}
	in.diag.Tracef("CSS", "inlining %s", ref)
	return in.flatten(ctx, decodeText(res.Data), ref, []string{ref})
}

// flatten does the work of Flatten. chain holds the references of the
// stylesheets currently being expanded, outermost first.
func (in *Inliner) flatten(ctx context.Context, cssText, origin string, chain []string) (Stylesheet, error) {
	sheet := ParseStylesheet(cssText, origin, in.diag)
	out := make(Stylesheet, 0, len(sheet))
	for _, rule := range sheet {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		switch rule.Kind {
		case RuleComment:
			continue
		case RuleImport:
			spliced, err := in.expandImport(ctx, rule, origin, chain)
			if err != nil {
				return nil, err
			}
			out = append(out, spliced...)
		case RuleFontFace:
			if err := in.embedFonts(ctx, rule, origin); err != nil {
				return nil, err
			}
			out = append(out, rule)
		default:
			out = append(out, rule)
		}
	}
	return out, nil
}

func (in *Inliner) expandImport(ctx context.Context, rule *Rule, origin string, chain []string) (Stylesheet, error) {
	target, rest := importTarget(rule.prelude())
	if target == "" {
		in.diag.CSSError(origin, rule.Line, rule.Column, "@import without a target")
		return nil, nil
	}
	ref, err := in.base.Resolve(target)
	if err != nil {
		if err := in.tolerate("CSS", origin, err); err != nil {
			return nil, err
		}
		return Stylesheet{rule}, nil
	}
	if slices.Contains(chain, ref) {
		in.diag.CSSFailure(origin, rule.Line, rule.Column, fmt.Errorf("%w: %s", ErrImportCycle, ref))
		return nil, nil
	}
	if len(chain) >= maxImportDepth {
		in.diag.CSSError(origin, rule.Line, rule.Column, fmt.Sprintf("imports nested deeper than %d: %s", maxImportDepth, ref))
		return nil, nil
	}

	in.diag.Tracef("CSS", "inlining import %s from %s", ref, origin)
	res, err := in.fetch.Fetch(ctx, ref)
	if err != nil {
		if err := in.tolerate("CSS", origin, err); err != nil {
			return nil, err
		}
		return Stylesheet{rule}, nil
	}
	next := append(chain[:len(chain):len(chain)], ref)
	sub, err := in.flatten(ctx, decodeText(res.Data), ref, next)
	if err != nil {
		return nil, err
	}
	cond := parseImportCondition(rest)
	if cond.empty() {
		return sub, nil
	}
	wrapped := newRawRule(RuleOther, cond.wrap(sub.Serialize(in.opts.Pretty)))
	wrapped.Line, wrapped.Column = rule.Line, rule.Column
	return Stylesheet{wrapped}, nil
}

func (in *Inliner) embedFonts(ctx context.Context, rule *Rule, origin string) error {
	for _, u := range rule.urls() {
		if u.Target == "" {
			in.diag.CSSError(origin, rule.Line, rule.Column, "empty url() in @font-face")
			continue
		}
		if IsInlineReference(u.Target) {
			in.diag.Tracef("CSS", "found already-inline font in %s", origin)
			continue
		}
		in.diag.Tracef("CSS", "inlining font %s", u.Target)
		res, _, err := in.resource(ctx, u.Target)
		if err != nil {
			if err := in.tolerate("CSS", origin, err); err != nil {
				return err
			}
			continue
		}
		u.replace(ToInlineReference(res.Data, res.ContentType))
	}
	return nil
}
