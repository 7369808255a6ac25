package main

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const watchDebounce = 200 * time.Millisecond

// watch runs job once and again after every burst of changes in the
// directory of a local source, until ctx is done. Failed runs are logged
// and do not stop watching.
func (a *app) watch(ctx context.Context, flags *cliFlags, logger *log.Logger, job func(context.Context) error) error {
	if strings.Contains(flags.source, "://") {
		return fmt.Errorf("%w: --watch needs a local SOURCE", ErrUsage)
	}
	dir, err := filepath.Abs(filepath.Dir(flags.source))
	if err != nil {
		return err
	}
	output, _ := filepath.Abs(flags.output)

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return err
	}

	if err := job(ctx); err != nil {
		logger.Printf("ERROR %v", err)
	}
	logger.Printf("watching %s", dir)

	var timer <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !relevant(ev, output) {
				continue
			}
			timer = time.After(watchDebounce)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Printf("WATCH %v", err)
		case <-timer:
			timer = nil
			if err := job(ctx); err != nil {
				logger.Printf("ERROR %v", err)
			}
		}
	}
}

// relevant filters out events caused by writing the output itself.
func relevant(ev fsnotify.Event, output string) bool {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) && !ev.Has(fsnotify.Remove) {
		return false
	}
	name, _ := filepath.Abs(ev.Name)
	if name == output {
		return false
	}
	return !strings.HasPrefix(filepath.Base(name), ".inliner-")
}
