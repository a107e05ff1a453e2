package api

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"MailDispatch/internal/worker"
)

// ReportSource exposes the outcome of the most recent dispatch cycle.
type ReportSource interface {
	LastReport() (worker.CycleReport, bool)
}

type Handler struct {
	Reports ReportSource
	Log     *zap.Logger
}

func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	report, ok := h.Reports.LastReport()

	w.Header().Set("Content-Type", "application/json")
	if !ok {
		w.WriteHeader(http.StatusServiceUnavailable)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"task_name": worker.TaskName,
			"message":   "no cycle has completed yet",
		})
		return
	}

	if err := json.NewEncoder(w).Encode(report); err != nil && h.Log != nil {
		h.Log.Warn("failed to write status response", zap.Error(err))
	}
}
