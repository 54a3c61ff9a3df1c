package collector

import (
	"fmt"
	"sync"
	"time"

	"github.com/okian/pulse/pkg/model"
)

// Page carries the context fields captured once per session.
type Page struct {
	URL       string
	UserAgent string
}

// UncaughtError is what a host reports for an error nobody handled.
type UncaughtError struct {
	Message string
	Stack   string
}

// Platform isolates the collector from the host runtime.
type Platform interface {
	Now() time.Time
	Page() Page
	// Interactive reports whether the host can deliver error signals.
	Interactive() bool
	OnError(func(UncaughtError)) (unsubscribe func())
	OnUnhandledRejection(func(reason any)) (unsubscribe func())
	NavigationTiming() (model.NavigationTiming, bool)
}

// Headless is a platform without error signals or navigation timing.
type Headless struct {
	PageInfo Page
}

func (Headless) Now() time.Time    { return time.Now() }
func (h Headless) Page() Page      { return h.PageInfo }
func (Headless) Interactive() bool { return false }
func (Headless) OnError(func(UncaughtError)) func() {
	return func() {}
}
func (Headless) OnUnhandledRejection(func(any)) func() {
	return func() {}
}
func (Headless) NavigationTiming() (model.NavigationTiming, bool) {
	return model.NavigationTiming{}, false
}

// ManualPlatform lets a host push error signals and timing explicitly.
type ManualPlatform struct {
	PageInfo Page
	// Clock overrides time.Now when set.
	Clock func() time.Time

	mu        sync.Mutex
	nextID    int
	onError   map[int]func(UncaughtError)
	onReject  map[int]func(any)
	timing    model.NavigationTiming
	hasTiming bool
}

// NewManualPlatform creates an interactive platform for page.
func NewManualPlatform(page Page) *ManualPlatform {
	return &ManualPlatform{
		PageInfo: page,
		onError:  make(map[int]func(UncaughtError)),
		onReject: make(map[int]func(any)),
	}
}

func (p *ManualPlatform) Now() time.Time {
	if p.Clock != nil {
		return p.Clock()
	}
	return time.Now()
}

func (p *ManualPlatform) Page() Page        { return p.PageInfo }
func (p *ManualPlatform) Interactive() bool { return true }

func (p *ManualPlatform) OnError(cb func(UncaughtError)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.onError[id] = cb
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.onError, id)
	}
}

func (p *ManualPlatform) OnUnhandledRejection(cb func(any)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.onReject[id] = cb
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.onReject, id)
	}
}

// SetNavigationTiming records the navigation entry returned from now on.
func (p *ManualPlatform) SetNavigationTiming(t model.NavigationTiming) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timing = t
	p.hasTiming = true
}

func (p *ManualPlatform) NavigationTiming() (model.NavigationTiming, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timing, p.hasTiming
}

// EmitError delivers an uncaught error to every subscriber.
func (p *ManualPlatform) EmitError(e UncaughtError) {
	p.mu.Lock()
	cbs := make([]func(UncaughtError), 0, len(p.onError))
	for _, cb := range p.onError {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(e)
	}
}

// EmitRejection delivers an unhandled rejection to every subscriber.
func (p *ManualPlatform) EmitRejection(reason any) {
	p.mu.Lock()
	cbs := make([]func(any), 0, len(p.onReject))
	for _, cb := range p.onReject {
		cbs = append(cbs, cb)
	}
	p.mu.Unlock()
	for _, cb := range cbs {
		cb(reason)
	}
}

// Subscribers returns the number of live subscriptions.
func (p *ManualPlatform) Subscribers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.onError) + len(p.onReject)
}

func rejectionMessage(reason any) string {
	switch r := reason.(type) {
	case error:
		return "Unhandled Promise Rejection: " + r.Error()
	case string:
		return "Unhandled Promise Rejection: " + r
	default:
		return fmt.Sprintf("Unhandled Promise Rejection: %v", r)
	}
}
