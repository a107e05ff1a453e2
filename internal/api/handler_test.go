package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"MailDispatch/internal/worker"
)

type fixedReports struct {
	report worker.CycleReport
	ok     bool
}

func (f fixedReports) LastReport() (worker.CycleReport, bool) {
	return f.report, f.ok
}

func TestStatusBeforeFirstCycle(t *testing.T) {
	h := &Handler{Reports: fixedReports{}, Log: zap.NewNop()}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, worker.TaskName, body["task_name"])
}

func TestStatusReportsLastCycle(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	h := &Handler{Reports: fixedReports{ok: true, report: worker.CycleReport{
		TaskName:  worker.TaskName,
		LastRunAt: at,
		Success:   false,
		Message:   "fetch pending mail: database gone away",
		Processed: 3,
		Sent:      2,
		Failed:    1,
	}}}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var got worker.CycleReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "mail-sender", got.TaskName)
	assert.True(t, at.Equal(got.LastRunAt))
	assert.False(t, got.Success)
	assert.Equal(t, "fetch pending mail: database gone away", got.Message)
	assert.Equal(t, 2, got.Sent)
	assert.Equal(t, 1, got.Failed)
}

func TestStatusRejectsWrites(t *testing.T) {
	h := &Handler{Reports: fixedReports{ok: true}}

	rec := httptest.NewRecorder()
	h.Status(rec, httptest.NewRequest(http.MethodPost, "/status", nil))

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.Equal(t, "GET, HEAD", rec.Header().Get("Allow"))
}
