// Package model contains domain models passed between layers.
package model

import (
	"encoding/json"
	"math"
	"strings"
)

// VitalName identifies one of the Web Vitals a collector can report.
type VitalName string

// Web Vitals recognised by the pipeline.
const (
	VitalCLS  VitalName = "CLS"
	VitalFID  VitalName = "FID"
	VitalFCP  VitalName = "FCP"
	VitalLCP  VitalName = "LCP"
	VitalTTFB VitalName = "TTFB"
	VitalINP  VitalName = "INP"
)

// Vitals lists every known vital in a stable order.
var Vitals = []VitalName{VitalLCP, VitalFID, VitalCLS, VitalTTFB, VitalFCP, VitalINP}

// ParseVitalName normalises a reported name. ok is false for unknown names.
func ParseVitalName(name string) (VitalName, bool) {
	v := VitalName(strings.ToUpper(strings.TrimSpace(name)))
	switch v {
	case VitalCLS, VitalFID, VitalFCP, VitalLCP, VitalTTFB, VitalINP:
		return v, true
	}
	return "", false
}

// ErrorRecord is one captured runtime error.
type ErrorRecord struct {
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
	Timestamp int64  `json:"timestamp"`
	URL       string `json:"url"`
	AppName   string `json:"appName,omitempty"`
}

// MetricEvent is the accumulated state of one session. Every delivery and
// every stored row carries a full snapshot of it.
type MetricEvent struct {
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"` // epoch ms of the last send or receipt
	URL       string `json:"url"`
	UserAgent string `json:"userAgent"`
	SessionID string `json:"sessionId"`
	UserID    string `json:"userId,omitempty"`
	AppName   string `json:"appName"`

	LCP  *float64 `json:"lcp,omitempty"`
	FID  *float64 `json:"fid,omitempty"`
	CLS  *float64 `json:"cls,omitempty"`
	TTFB *float64 `json:"ttfb,omitempty"`
	FCP  *float64 `json:"fcp,omitempty"`
	INP  *float64 `json:"inp,omitempty"`

	CustomMetrics map[string]float64 `json:"customMetrics"`
	Errors        []ErrorRecord      `json:"errors"`

	DOMContentLoaded float64 `json:"domContentLoaded"`
	LoadComplete     float64 `json:"loadComplete"`
}

// vitalField returns the address of the field holding v.
func (e *MetricEvent) vitalField(v VitalName) **float64 {
	switch v {
	case VitalLCP:
		return &e.LCP
	case VitalFID:
		return &e.FID
	case VitalCLS:
		return &e.CLS
	case VitalTTFB:
		return &e.TTFB
	case VitalFCP:
		return &e.FCP
	case VitalINP:
		return &e.INP
	}
	return nil
}

// SetVital stores value for v. Returns false for unknown vitals.
func (e *MetricEvent) SetVital(v VitalName, value float64) bool {
	f := e.vitalField(v)
	if f == nil {
		return false
	}
	*f = &value
	return true
}

// Vital returns the value of v when it is set to a usable number.
func (e *MetricEvent) Vital(v VitalName) (float64, bool) {
	f := e.vitalField(v)
	if f == nil || *f == nil || !finite(**f) {
		return 0, false
	}
	return **f, true
}

// HasAnyVital reports whether at least one vital carries a usable value.
func (e *MetricEvent) HasAnyVital() bool {
	for _, v := range Vitals {
		if _, ok := e.Vital(v); ok {
			return true
		}
	}
	return false
}

// MarshalJSON leaves out non-finite vitals and custom metrics and zeroes
// non-finite load timings. JSON cannot carry NaN or Inf.
func (e MetricEvent) MarshalJSON() ([]byte, error) { //nolint:gocritic // hugeParam: value receiver for json
	type wire MetricEvent
	out := wire(e)
	for _, f := range []**float64{&out.LCP, &out.FID, &out.CLS, &out.TTFB, &out.FCP, &out.INP} {
		if *f != nil && !finite(**f) {
			*f = nil
		}
	}
	for _, v := range e.CustomMetrics {
		if finite(v) {
			continue
		}
		out.CustomMetrics = make(map[string]float64, len(e.CustomMetrics))
		for name, value := range e.CustomMetrics {
			if finite(value) {
				out.CustomMetrics[name] = value
			}
		}
		break
	}
	if !finite(out.DOMContentLoaded) {
		out.DOMContentLoaded = 0
	}
	if !finite(out.LoadComplete) {
		out.LoadComplete = 0
	}
	return json.Marshal(out)
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Clone returns a deep copy; the result shares no memory with e.
func (e *MetricEvent) Clone() MetricEvent {
	out := *e
	out.LCP = cloneFloat(e.LCP)
	out.FID = cloneFloat(e.FID)
	out.CLS = cloneFloat(e.CLS)
	out.TTFB = cloneFloat(e.TTFB)
	out.FCP = cloneFloat(e.FCP)
	out.INP = cloneFloat(e.INP)

	out.CustomMetrics = make(map[string]float64, len(e.CustomMetrics))
	for k, v := range e.CustomMetrics {
		out.CustomMetrics[k] = v
	}
	out.Errors = make([]ErrorRecord, len(e.Errors))
	copy(out.Errors, e.Errors)
	return out
}

func cloneFloat(p *float64) *float64 {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// NavigationTiming holds the navigation-timing entry fields used to derive
// page load timings.
type NavigationTiming struct {
	DOMContentLoadedEventStart float64
	DOMContentLoadedEventEnd   float64
	LoadEventStart             float64
	LoadEventEnd               float64
}

// DOMContentLoaded is the duration of the DOMContentLoaded handlers.
func (n NavigationTiming) DOMContentLoaded() float64 {
	return n.DOMContentLoadedEventEnd - n.DOMContentLoadedEventStart
}

// LoadComplete is the duration of the load event handlers.
func (n NavigationTiming) LoadComplete() float64 {
	return n.LoadEventEnd - n.LoadEventStart
}
