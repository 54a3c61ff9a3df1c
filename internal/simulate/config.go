// Package simulate drives synthetic collector sessions against a running
// pulse server and verifies what the server reports back.
package simulate

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Defaults used when a Config field is zero.
const (
	DefaultBaseURL     = "http://localhost:9080"
	DefaultAPIEndpoint = "/api/metrics"
	DefaultSessions    = 200
	DefaultApps        = 3
	DefaultMaxErrors   = 3
	DefaultTimeout     = 10 * time.Second
	// DefaultDebounce keeps sessions short enough that Destroy makes the
	// only delivery.
	DefaultDebounce = time.Minute
)

// queryLimit matches the store's retention cap so verification sees every
// retained row.
const queryLimit = 10_000

// ErrInvalidConfig marks a Config that cannot run.
var ErrInvalidConfig = errors.New("invalid simulation config")

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL     string        // Base URL of the service
	APIEndpoint string        // Ingestion and query path
	Sessions    int           // Number of collector sessions
	Apps        int           // Distinct app names sessions spread over
	MaxErrors   int           // Upper bound of errors tracked per session
	Workers     int           // Sessions run concurrently
	Timeout     time.Duration // HTTP request timeout
	Debounce    time.Duration // Collector debounce
	MaxRetries  int           // Collector retry budget
	RunID       string        // Tag in every app name; random when empty
}

func (c *Config) withDefaults() Config {
	out := *c
	if out.BaseURL == "" {
		out.BaseURL = DefaultBaseURL
	}
	out.BaseURL = strings.TrimRight(out.BaseURL, "/")
	if out.APIEndpoint == "" {
		out.APIEndpoint = DefaultAPIEndpoint
	}
	if out.Sessions == 0 {
		out.Sessions = DefaultSessions
	}
	if out.Apps == 0 {
		out.Apps = DefaultApps
	}
	if out.Workers == 0 {
		out.Workers = 1
	}
	if out.Timeout == 0 {
		out.Timeout = DefaultTimeout
	}
	if out.Debounce == 0 {
		out.Debounce = DefaultDebounce
	}
	return out
}

// Validate reports settings that cannot run.
func (c *Config) Validate() error {
	switch {
	case c.Sessions < 1:
		return fmt.Errorf("%w: sessions %d", ErrInvalidConfig, c.Sessions)
	case c.Sessions > queryLimit:
		return fmt.Errorf("%w: sessions %d exceed %d", ErrInvalidConfig, c.Sessions, queryLimit)
	case c.Apps < 1:
		return fmt.Errorf("%w: apps %d", ErrInvalidConfig, c.Apps)
	case c.MaxErrors < 0:
		return fmt.Errorf("%w: max errors %d", ErrInvalidConfig, c.MaxErrors)
	case c.Workers < 1:
		return fmt.Errorf("%w: workers %d", ErrInvalidConfig, c.Workers)
	case !strings.HasPrefix(c.APIEndpoint, "/"):
		return fmt.Errorf("%w: api endpoint %q", ErrInvalidConfig, c.APIEndpoint)
	}
	return nil
}

// Stats holds run statistics.
type Stats struct {
	RunID            string
	SessionsPlanned  int
	SessionsFailed   int
	ErrorsTracked    int
	RowsStored       int
	SessionsReported int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
