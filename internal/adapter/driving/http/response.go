package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ericfisherdev/archiverestore/internal/application"
	"github.com/ericfisherdev/archiverestore/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// StatusResponse reports credential readiness and job state.
type StatusResponse struct {
	CredentialReady bool            `json:"credential_ready"`
	CapturedAt      string          `json:"captured_at,omitempty"`
	Job             *JobResponse    `json:"job"`
	LastResult      *ResultResponse `json:"last_result"`
}

// JobResponse is the JSON representation of a batch job snapshot.
type JobResponse struct {
	ID        string `json:"id"`
	Status    string `json:"status"`
	Total     int    `json:"total"`
	Completed int    `json:"completed"`
	Success   int    `json:"success"`
	Failed    int    `json:"failed"`
	CurrentID string `json:"current_id,omitempty"`
	StartedAt string `json:"started_at"`
}

// ResultResponse is the terminal report of a run. Error is set instead of
// an outcome when the run failed.
type ResultResponse struct {
	JobID      string `json:"job_id"`
	Operation  string `json:"operation"`
	Outcome    string `json:"outcome,omitempty"`
	Success    int    `json:"success"`
	Total      int    `json:"total"`
	Error      string `json:"error,omitempty"`
	FinishedAt string `json:"finished_at,omitempty"`
}

// ProgressResponse is the JSON payload of a progress event.
type ProgressResponse struct {
	JobID     string `json:"job_id"`
	Operation string `json:"operation"`
	Phase     string `json:"phase"`
	Found     int    `json:"found,omitempty"`
	Completed int    `json:"completed"`
	Total     int    `json:"total"`
	Success   int    `json:"success"`
	CurrentID string `json:"current_id,omitempty"`
	Status    string `json:"status"`
}

// AcceptedResponse is returned when a restore job has been started.
type AcceptedResponse struct {
	JobID string `json:"job_id"`
}

// RestoreAllRequest is the JSON body for the restore-all endpoint.
type RestoreAllRequest struct {
	Confirm bool `json:"confirm"`
}

// RestoreListRequest is the JSON body for the restore-list endpoint. Text
// may be a JSON array, comma- or newline-separated ids, or any mix.
type RestoreListRequest struct {
	Text    string `json:"text"`
	Confirm bool   `json:"confirm"`
}

// toJobResponse converts a domain BatchJob to its JSON representation.
func toJobResponse(job model.BatchJob) JobResponse {
	return JobResponse{
		ID:        job.ID,
		Status:    string(job.Status),
		Total:     job.Total,
		Completed: job.Completed,
		Success:   job.Success,
		Failed:    job.Failed(),
		CurrentID: job.CurrentID,
		StartedAt: job.StartedAt.UTC().Format(time.RFC3339),
	}
}

// toResultResponse converts a result and optional error to JSON form.
func toResultResponse(result model.RestoreResult, err error) ResultResponse {
	resp := ResultResponse{
		JobID:     result.JobID,
		Operation: string(result.Operation),
		Outcome:   string(result.Outcome),
		Success:   result.Success,
		Total:     result.Total,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

// toRunReportResponse converts the last run report to JSON form.
func toRunReportResponse(report application.RunReport) ResultResponse {
	resp := toResultResponse(report.Result, report.Err)
	resp.FinishedAt = report.FinishedAt.UTC().Format(time.RFC3339)
	return resp
}

// toProgressResponse converts a domain Progress to its JSON representation.
func toProgressResponse(p model.Progress) ProgressResponse {
	return ProgressResponse{
		JobID:     p.JobID,
		Operation: string(p.Operation),
		Phase:     string(p.Phase),
		Found:     p.Found,
		Completed: p.Completed,
		Total:     p.Total,
		Success:   p.Success,
		CurrentID: p.CurrentID,
		Status:    string(p.Status),
	}
}
