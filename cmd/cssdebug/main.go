// Command cssdebug flattens one stylesheet and dumps its top-level rules.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"

	cssast "github.com/aymerick/douceur/css"
	"github.com/aymerick/douceur/parser"

	"inliner/inline"
	"inliner/internal/fetch"
)

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "Usage: cssdebug <stylesheet url or path>")
		os.Exit(2)
	}
	logger := log.New(os.Stderr, "", 0)
	if err := dump(context.Background(), os.Stdout, logger, fetch.New(fetch.Options{Logger: logger, AllowFile: true}), os.Args[1]); err != nil {
		logger.Fatal(err)
	}
}

func dump(ctx context.Context, w io.Writer, logger *log.Logger, f inline.Fetcher, source string) error {
	base, ref, err := inline.NewBaseContext(source)
	if err != nil {
		return err
	}
	logger.Printf("fetch %s", ref)
	in := inline.New(f, base, inline.Options{Logger: logger, Policy: inline.PolicyDegrade})
	sheet, err := in.FlattenResource(ctx, ref)
	if err != nil {
		return err
	}
	for i, r := range sheet {
		fmt.Fprintf(w, "%3d %-10s %s\n", i, r.Kind, abbrev(r.String(), 72))
	}
	for _, d := range in.Diagnostics().List() {
		fmt.Fprintf(w, "diag %s\n", d)
	}

	summary, err := summarize(sheet.String())
	if err != nil {
		fmt.Fprintf(w, "reparse error: %v\n", err)
		return nil
	}
	fmt.Fprintf(w, "reparse: %d qualified rules, %d at-rules %v\n", summary.qualified, len(summary.atRules), summary.atRules)
	return nil
}

type reparse struct {
	qualified int
	atRules   []string
}

// summarize re-parses flattened css with douceur and counts what it sees at
// the top level.
func summarize(css string) (reparse, error) {
	sheet, err := parser.Parse(css)
	if err != nil {
		return reparse{}, err
	}
	var s reparse
	for _, r := range sheet.Rules {
		if r.Kind == cssast.AtRule {
			s.atRules = append(s.atRules, r.Name)
			continue
		}
		s.qualified++
	}
	return s, nil
}

func abbrev(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
