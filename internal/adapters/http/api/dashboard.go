package api

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
)

//go:embed static/dashboard.html
var dashboardFS embed.FS

// dashboardHandler serves the embedded summary dashboard.
type dashboardHandler struct {
	page []byte
	err  error
}

// newDashboardHandler renders the dashboard once for the given API path.
func newDashboardHandler(apiEndpoint string) *dashboardHandler {
	h := &dashboardHandler{}
	tmpl, err := template.ParseFS(dashboardFS, "static/dashboard.html")
	if err != nil {
		h.err = err
		return h
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, struct{ SummaryURL string }{SummaryURL: apiEndpoint + "/summary"}); err != nil {
		h.err = err
		return h
	}
	h.page = buf.Bytes()
	return h
}

// HandleDashboard handles GET /dashboard requests.
// Returns an HTML page that polls the summary endpoint.
func (h *dashboardHandler) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.NotFound(w, r)
		return
	}
	if h.err != nil {
		writeError(w, http.StatusInternalServerError, "internal_error", h.err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(h.page)
}
