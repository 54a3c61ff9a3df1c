package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/okian/pulse/internal/adapters/repository"
	pmetrics "github.com/okian/pulse/pkg/metrics"
	"github.com/okian/pulse/pkg/model"
)

// MetricsHandler serves ingestion, listing and summary of metric records.
type MetricsHandler struct {
	deps         Dependencies
	maxBodyBytes int64
}

// NewMetricsHandler creates a new metrics handler.
func NewMetricsHandler(deps Dependencies, maxBodyBytes int64) *MetricsHandler {
	return &MetricsHandler{deps: deps, maxBodyBytes: maxBodyBytes}
}

// HandleMetrics dispatches POST (ingest) and GET (list) on the endpoint.
func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.HandlePostMetrics(w, r)
	case http.MethodGet:
		h.HandleGetMetrics(w, r)
	default:
		http.NotFound(w, r)
	}
}

// validateRecord rejects payloads without a session id or client timestamp.
func validateRecord(rec *model.MetricEvent) error {
	switch {
	case strings.TrimSpace(rec.SessionID) == "":
		return errors.New("missing sessionId")
	case rec.Timestamp == 0:
		return errors.New("missing timestamp")
	}
	return nil
}

// HandlePostMetrics handles POST {endpoint}. The stored timestamp is the
// server's receipt time.
func (h *MetricsHandler) HandlePostMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.post_metrics"

	body := http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
	var rec model.MetricEvent
	if err := json.NewDecoder(body).Decode(&rec); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			pmetrics.RecordIngestRejected("too_large")
			writeError(w, http.StatusRequestEntityTooLarge, "payload_too_large", WrapKind(op, ErrTooLarge, err))
			return
		}
		pmetrics.RecordIngestRejected("decode")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	if err := validateRecord(&rec); err != nil {
		pmetrics.RecordIngestRejected("validation")
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}

	if _, err := h.deps.Ingest(r.Context(), rec); err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
		return
	}
	writeJSON(w, http.StatusOK, ackResponse{Success: true})
}

// HandleGetMetrics handles GET {endpoint}?startDate&endDate&appName&limit.
func (h *MetricsHandler) HandleGetMetrics(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_metrics"

	f, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	records, err := h.deps.Query(r.Context(), f)
	if err != nil {
		h.writeReadError(w, op, err)
		return
	}
	if records == nil {
		records = []model.MetricEvent{}
	}
	writeJSON(w, http.StatusOK, records)
}

// HandleSummary handles GET {endpoint}/summary with the list filters and an
// optional dedupe=latest.
func (h *MetricsHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	const op = "api.get_summary"
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}

	f, err := h.parseFilter(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	var latestOnly bool
	switch d := r.URL.Query().Get("dedupe"); d {
	case "", "none":
	case "latest":
		latestOnly = true
	default:
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, fmt.Errorf("unknown dedupe %q", d)))
		return
	}

	report, err := h.deps.Summary(r.Context(), f, latestOnly)
	if err != nil {
		h.writeReadError(w, op, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *MetricsHandler) writeReadError(w http.ResponseWriter, op string, err error) {
	if errors.Is(err, repository.ErrInvalidFilter) {
		writeError(w, http.StatusBadRequest, "bad_request", WrapKind(op, ErrBadRequest, err))
		return
	}
	writeError(w, http.StatusInternalServerError, "internal_error", WrapKind(op, ErrInternal, err))
}

func (h *MetricsHandler) parseFilter(r *http.Request) (repository.Filter, error) {
	q := r.URL.Query()
	loc := h.deps.Location()
	var f repository.Filter

	if s := q.Get("startDate"); s != "" {
		t, err := repository.ParseDate(s, loc)
		if err != nil {
			return f, err
		}
		f.StartDate = &t
	}
	if s := q.Get("endDate"); s != "" {
		t, err := repository.ParseDate(s, loc)
		if err != nil {
			return f, err
		}
		f.EndDate = &t
	}
	f.AppName = q.Get("appName")

	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit %q", s)
		}
		f.Limit = n
	}
	return f, f.Validate(loc)
}
