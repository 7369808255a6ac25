package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/automaxprocs/maxprocs"

	"inliner/inline"
	"inliner/internal/config"
	"inliner/internal/fetch"
	"inliner/internal/verify"
)

var (
	// ErrWriteOutput wraps failures to write the output document.
	ErrWriteOutput = errors.New("cannot write output")
	// ErrNotSelfContained is returned by --verify when the output still
	// loads external resources.
	ErrNotSelfContained = errors.New("output is not self-contained")
)

// app carries the process surroundings so tests can replace them.
type app struct {
	stdout io.Writer
	stderr io.Writer
	verify func(ctx context.Context, path string) ([]string, error)
}

func newApp(stdout, stderr io.Writer) *app {
	return &app{stdout: stdout, stderr: stderr, verify: verify.Check}
}

func (a *app) run(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, a.stderr)
	if err != nil {
		return err
	}
	if flags.version {
		fmt.Fprintf(a.stdout, "inliner %s\n", Version)
		return nil
	}

	logger := log.New(a.stderr, "", 0)
	if flags.quiet {
		logger.SetOutput(io.Discard)
	}
	undo, _ := maxprocs.Set(maxprocs.Logger(func(format string, args ...any) {
		if flags.verbose {
			logger.Printf(format, args...)
		}
	}))
	defer undo()

	cfg, err := loadConfig(flags)
	if err != nil {
		return err
	}
	timeout, _ := cfg.TimeoutDuration()
	fetcher := fetch.New(fetch.Options{
		UserAgent: cfg.UserAgent,
		Timeout:   timeout,
		Retries:   cfg.Retries,
		MaxBytes:  cfg.MaxBytes,
		CacheDir:  cfg.CacheDir,
		Headers:   cfg.HeadersFor,
		Logger:    logger,
		AllowFile: true,
	})
	opts := inline.Options{
		Pretty:  cfg.Pretty,
		Policy:  cfg.PolicyValue(),
		Workers: cfg.ResolveWorkers(),
		Logger:  logger,
		Verbose: flags.verbose,
	}
	if flags.verbose {
		logger.Printf("workers: %d, policy: %s", opts.Workers, opts.Policy)
	}

	job := func(ctx context.Context) error {
		return a.inlineOnce(ctx, fetcher, opts, flags, logger)
	}
	if !flags.watch {
		return job(ctx)
	}
	return a.watch(ctx, flags, logger, job)
}

func loadConfig(flags *cliFlags) (*config.Config, error) {
	cfg := config.Default()
	if flags.config != "" {
		var err error
		if cfg, err = config.Load(flags.config); err != nil {
			return nil, err
		}
	}
	if flags.changed("pretty") {
		cfg.Pretty = flags.pretty
	}
	if flags.changed("workers") {
		cfg.Workers = flags.workers
	}
	if flags.changed("timeout") {
		cfg.Timeout = flags.timeout.String()
	}
	if flags.changed("retries") {
		cfg.Retries = flags.retries
	}
	if flags.changed("policy") {
		cfg.Policy = flags.policy
	}
	if flags.changed("cache-dir") {
		cfg.CacheDir = flags.cacheDir
	}
	if flags.changed("user-agent") {
		cfg.UserAgent = flags.userAgent
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (a *app) inlineOnce(ctx context.Context, fetcher inline.Fetcher, opts inline.Options, flags *cliFlags, logger *log.Logger) error {
	start := time.Now()
	base, ref, err := inline.NewBaseContext(flags.source)
	if err != nil {
		return err
	}
	res, err := fetcher.Fetch(ctx, ref)
	if err != nil {
		return &inline.FetchError{Ref: ref, Err: err}
	}
	in := inline.New(fetcher, base, opts)
	doc, err := in.InlineResource(ctx, res)
	if err != nil {
		return err
	}
	if err := writeAtomic(flags.output, []byte(doc)); err != nil {
		return err
	}
	logger.Printf("wrote %s (%d bytes, %d fetches, %d diagnostics) in %s",
		flags.output, len(doc), in.FetchCalls(), in.Diagnostics().Len(), time.Since(start).Round(time.Millisecond))

	if flags.verify {
		urls, err := a.verify(ctx, flags.output)
		if err != nil {
			return err
		}
		if len(urls) > 0 {
			return fmt.Errorf("%w: %s", ErrNotSelfContained, strings.Join(urls, ", "))
		}
		logger.Printf("verified %s: no external requests", flags.output)
	}
	return nil
}

// writeAtomic writes data next to path and renames it into place, so a
// failed run never leaves a partial document behind.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".inliner-*")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	name := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	if err := os.Chmod(name, 0o644); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	if err := os.Rename(name, path); err != nil {
		os.Remove(name)
		return fmt.Errorf("%w: %w", ErrWriteOutput, err)
	}
	return nil
}
