package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/okian/pulse/internal/simulate"
)

// Default configuration constants.
const (
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		baseURL    = flag.String("url", simulate.DefaultBaseURL, "Base URL of the service")
		endpoint   = flag.String("endpoint", simulate.DefaultAPIEndpoint, "Ingestion and query path")
		sessions   = flag.Int("sessions", simulate.DefaultSessions, "Number of collector sessions to run")
		apps       = flag.Int("apps", simulate.DefaultApps, "Number of app names sessions spread over")
		maxErrors  = flag.Int("errors", simulate.DefaultMaxErrors, "Maximum errors tracked per session")
		workers    = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent sessions")
		timeout    = flag.Duration("timeout", simulate.DefaultTimeout, "HTTP request timeout")
		maxRetries = flag.Int("retries", 0, "Collector retry budget")
		runID      = flag.String("run", "", "Run id tagging app names (default: random)")
		logFile    = flag.String("log", "", "Also write logs to this file")
		logFormat  = flag.String("log-format", "text", "Log format: text or json")
	)
	flag.Parse()

	closeLog, err := simulate.SetupLogging(*logFile, *logFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to setup logging:", err)
		return 1
	}
	defer func() { _ = closeLog() }()

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	_, err = simulate.Run(ctx, &simulate.Config{
		BaseURL:     *baseURL,
		APIEndpoint: *endpoint,
		Sessions:    *sessions,
		Apps:        *apps,
		MaxErrors:   *maxErrors,
		Workers:     *workers,
		Timeout:     *timeout,
		MaxRetries:  *maxRetries,
		RunID:       *runID,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "simulation failed:", err)
		return 1
	}
	return 0
}
