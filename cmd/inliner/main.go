// Command inliner turns a web page or local HTML file into a single
// self-contained document.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Version is set at build time via ldflags.
var Version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newApp(os.Stdout, os.Stderr).run(ctx, os.Args[1:])
	stop()
	code := exitCodeFor(err)
	if err != nil && code != ExitSuccess {
		fmt.Fprintln(os.Stderr, "inliner:", err)
	}
	os.Exit(code)
}
