package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"
)

// ErrUsage marks invalid command-line input.
var ErrUsage = errors.New("usage error")

// errHelp is returned when -h/--help was requested.
var errHelp = flag.ErrHelp

type cliFlags struct {
	source    string
	output    string
	config    string
	policy    string
	cacheDir  string
	userAgent string
	timeout   time.Duration
	workers   int
	retries   int
	pretty    bool
	verify    bool
	watch     bool
	verbose   bool
	quiet     bool
	version   bool

	set *flag.FlagSet
}

// changed reports whether the named flag was given explicitly, so file
// configuration is only overridden on purpose.
func (f *cliFlags) changed(name string) bool {
	return f.set.Changed(name)
}

func parseFlags(args []string, stderr io.Writer) (*cliFlags, error) {
	f := &cliFlags{}
	fs := flag.NewFlagSet("inliner", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.SortFlags = false
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: inliner [flags] SOURCE")
		fmt.Fprintln(stderr, "\nInline the stylesheets, scripts, fonts and images of SOURCE (URL or file) into one document.")
		fmt.Fprintln(stderr, "\nFlags:")
		fs.PrintDefaults()
	}

	fs.StringVarP(&f.output, "output", "o", "index.html", "output file")
	fs.BoolVar(&f.pretty, "pretty", false, "indent the output document")
	fs.StringVarP(&f.config, "config", "c", "", "YAML config file")
	fs.IntVarP(&f.workers, "workers", "w", 0, "concurrent prefetch workers (0 = auto)")
	fs.DurationVar(&f.timeout, "timeout", 0, "per-request timeout (default 30s)")
	fs.IntVar(&f.retries, "retries", 0, "extra attempts for transient HTTP failures")
	fs.StringVar(&f.policy, "policy", "", "on unavailable resources: abort or degrade (default abort)")
	fs.StringVar(&f.cacheDir, "cache-dir", "", "on-disk cache for fetched resources")
	fs.StringVar(&f.userAgent, "user-agent", "", "User-Agent for HTTP requests")
	fs.BoolVar(&f.verify, "verify", false, "load the output in headless Chrome and fail if it requests external resources")
	fs.BoolVar(&f.watch, "watch", false, "re-inline a local SOURCE whenever its directory changes")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log every inlined resource")
	fs.BoolVarP(&f.quiet, "quiet", "q", false, "only report errors")
	fs.BoolVar(&f.version, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil, errHelp
		}
		return nil, fmt.Errorf("%w: %v", ErrUsage, err)
	}
	f.set = fs
	if f.version {
		return f, nil
	}
	if f.verbose && f.quiet {
		return nil, fmt.Errorf("%w: --verbose and --quiet are mutually exclusive", ErrUsage)
	}
	switch fs.NArg() {
	case 1:
		f.source = fs.Arg(0)
	case 0:
		fs.Usage()
		return nil, fmt.Errorf("%w: missing SOURCE", ErrUsage)
	default:
		return nil, fmt.Errorf("%w: expected one SOURCE, got %d", ErrUsage, fs.NArg())
	}
	if f.output == "" {
		return nil, fmt.Errorf("%w: --output must not be empty", ErrUsage)
	}
	return f, nil
}
