// Command inlined serves the inliner over HTTP.
package main

import (
	"log"
	"net"
	"net/http"
	"os"
	"time"

	flag "github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"

	"inliner/inline"
	"inliner/internal/config"
	"inliner/internal/fetch"
	"inliner/internal/server"
)

func main() {
	addrFlag := flag.String("addr", ":8081", "listen address, e.g. :81 or 0.0.0.0:8081")
	configFlag := flag.StringP("config", "c", "", "YAML config file")
	ttlFlag := flag.Duration("cache-ttl", 10*time.Minute, "how long inlined documents are cached (negative disables)")
	verbose := flag.BoolP("verbose", "v", false, "log every inlined resource")
	flag.Parse()

	addr := *addrFlag
	if env := os.Getenv("PORT"); env != "" {
		addr = ":" + env
	}

	log.SetFlags(log.LstdFlags | log.Lmicroseconds)
	log.SetOutput(os.Stdout)
	logger := log.Default()
	if _, err := maxprocs.Set(maxprocs.Logger(logger.Printf)); err != nil {
		logger.Printf("maxprocs: %v", err)
	}

	cfg := config.Default()
	if *configFlag != "" {
		var err error
		if cfg, err = config.Load(*configFlag); err != nil {
			log.Fatalf("config: %v", err)
		}
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
	})

	handler := server.New(server.Config{
		Logger:  logger,
		Fetcher: fetcher,
		Options: inline.Options{
			Policy:  cfg.PolicyValue(),
			Workers: cfg.ResolveWorkers(),
			Verbose: *verbose,
		},
		CacheTTL: *ttlFlag,
	})
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      3 * time.Minute,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          log.New(os.Stdout, "HTTPERR ", log.LstdFlags|log.Lmicroseconds),
		ConnState: func(c net.Conn, s http.ConnState) {
			if *verbose {
				log.Printf("CONN %s %s", s.String(), c.RemoteAddr())
			}
		},
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("Listen error on %s: %v", addr, err)
	}

	log.Println("Listening on", addr)
	log.Fatal(srv.Serve(ln))
}
