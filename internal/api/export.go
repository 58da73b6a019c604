package api

import (
	"bytes"
	"net/http"

	"github.com/ashureev/taskmarket/internal/report"
)

// ExportMetrics serves the dashboard counters as CSV.
func (h *AdminHandler) ExportMetrics(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	stats, err := h.repo.Stats(r.Context(), now)
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	daily, err := h.repo.DailyDecisions(r.Context(), now.Add(-statsWindow))
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteMetrics(&buf, stats, daily); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeCSV(w, "metrics.csv", buf.Bytes())
}

// ExportUsers serves all users as CSV.
func (h *AdminHandler) ExportUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.repo.ListUsers(r.Context(), "")
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	var buf bytes.Buffer
	if err := report.WriteUsers(&buf, users); err != nil {
		h.internalError(w, r, err)
		return
	}
	writeCSV(w, "users.csv", buf.Bytes())
}

func writeCSV(w http.ResponseWriter, name string, body []byte) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
