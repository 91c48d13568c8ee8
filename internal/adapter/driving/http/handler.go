package httphandler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ericfisherdev/archiverestore/internal/application"
	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

// maxRequestBodyBytes bounds restore request bodies. Pasted id lists can be
// long, so this is generous.
const maxRequestBodyBytes = 1 << 20

// Handler is the HTTP driving adapter that serves the control API.
type Handler struct {
	restoreSvc *application.RestoreService
	creds      driven.CredentialSource
	hub        *EventHub
	upstream   http.Handler
	jobCtx     context.Context
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. Restore jobs
// outlive the request that started them and run under jobCtx instead, so
// cancelling jobCtx aborts them on shutdown. upstream, if non-nil, is
// mounted under /upstream/.
func NewHandler(
	jobCtx context.Context,
	restoreSvc *application.RestoreService,
	creds driven.CredentialSource,
	hub *EventHub,
	upstream http.Handler,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		restoreSvc: restoreSvc,
		creds:      creds,
		hub:        hub,
		upstream:   upstream,
		jobCtx:     jobCtx,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", h.Health)
	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("POST /api/v1/restore/all", requireCSRF(h.RestoreAll))
	mux.HandleFunc("POST /api/v1/restore/list", requireCSRF(h.RestoreList))
	mux.HandleFunc("GET /api/v1/jobs/current", h.CurrentJob)
	mux.HandleFunc("POST /api/v1/jobs/current/cancel", requireCSRF(h.CancelJob))
	mux.HandleFunc("GET /api/v1/events", h.Events)

	if h.upstream != nil {
		mux.Handle("/upstream/", http.StripPrefix("/upstream", h.upstream))
	}

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// Health returns a simple health check response.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// Status reports credential readiness, the active job and the last result.
// It also issues the CSRF cookie required by the POST routes.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	csrfToken(w, r)

	var resp StatusResponse
	if cred, ok := h.creds.Credential(); ok {
		resp.CredentialReady = true
		resp.CapturedAt = cred.CapturedAt.UTC().Format(time.RFC3339)
	}
	if job, ok := h.restoreSvc.Current(); ok {
		jr := toJobResponse(job)
		resp.Job = &jr
	}
	if report, ok := h.restoreSvc.LastRun(); ok {
		rr := toRunReportResponse(report)
		resp.LastResult = &rr
	}

	writeJSON(w, http.StatusOK, resp)
}

// RestoreAll starts a background job restoring the whole archive.
func (h *Handler) RestoreAll(w http.ResponseWriter, r *http.Request) {
	var req RestoreAllRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	h.startJob(w, model.OperationRestoreAll, req.Confirm, func(res *application.Reservation, confirm application.Confirmer) (model.RestoreResult, error) {
		return res.RestoreAll(h.jobCtx, confirm)
	})
}

// RestoreList starts a background job restoring the identifiers found in
// the submitted text.
func (h *Handler) RestoreList(w http.ResponseWriter, r *http.Request) {
	var req RestoreListRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(application.ExtractIdentifiers(req.Text)) == 0 {
		writeJSON(w, http.StatusUnprocessableEntity, ResultResponse{
			Operation: string(model.OperationRestoreList),
			Outcome:   string(model.OutcomeNoValidIdentifiers),
		})
		return
	}

	h.startJob(w, model.OperationRestoreList, req.Confirm, func(res *application.Reservation, confirm application.Confirmer) (model.RestoreResult, error) {
		return res.RestoreList(h.jobCtx, req.Text, confirm)
	})
}

// startJob rejects the request synchronously when no credential is held or
// a job is already running, and otherwise runs the job in the background.
// The outcome reaches clients through the event stream and /status.
func (h *Handler) startJob(
	w http.ResponseWriter,
	op model.Operation,
	confirmed bool,
	run func(*application.Reservation, application.Confirmer) (model.RestoreResult, error),
) {
	if !h.restoreSvc.Ready() {
		writeJSON(w, http.StatusConflict, ResultResponse{
			Operation: string(op),
			Outcome:   string(model.OutcomeNotReady),
		})
		return
	}

	res, err := h.restoreSvc.Reserve()
	if err != nil {
		if errors.Is(err, application.ErrJobRunning) {
			writeError(w, http.StatusConflict, "a restore job is already running")
			return
		}
		h.logger.Error("failed to reserve restore job", "operation", string(op), "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	confirm := h.requestConfirmer(confirmed)
	go func() {
		if _, err := run(res, confirm); err != nil {
			h.logger.Error("restore job returned error", "job", res.ID(), "operation", string(op), "error", err)
		}
	}()

	writeJSON(w, http.StatusAccepted, AcceptedResponse{JobID: res.ID()})
}

// requestConfirmer answers the confirmation gate with the confirm flag the
// client submitted.
func (h *Handler) requestConfirmer(confirmed bool) application.Confirmer {
	return application.ConfirmFunc(func(_ context.Context, req application.ConfirmRequest) (bool, error) {
		h.logger.Info("restore confirmation",
			"job", req.JobID,
			"operation", string(req.Operation),
			"count", req.Count,
			"confirmed", confirmed,
		)
		return confirmed, nil
	})
}

// CurrentJob returns the active batch job snapshot.
func (h *Handler) CurrentJob(w http.ResponseWriter, _ *http.Request) {
	job, ok := h.restoreSvc.Current()
	if !ok {
		writeError(w, http.StatusNotFound, "no restore job is running")
		return
	}
	writeJSON(w, http.StatusOK, toJobResponse(job))
}

// CancelJob aborts the job holding the slot, including one that was accepted
// but has not started yet.
func (h *Handler) CancelJob(w http.ResponseWriter, _ *http.Request) {
	jobID, ok := h.restoreSvc.Cancel()
	if !ok {
		writeError(w, http.StatusNotFound, "no restore job is running")
		return
	}
	writeJSON(w, http.StatusAccepted, AcceptedResponse{JobID: jobID})
}

// Events upgrades to a websocket streaming job and credential events. The
// first message always reports the current credential state.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	cred, ok := h.creds.Credential()
	h.hub.Serve(w, r, credentialEvent(cred, ok))
}

// decodeBody decodes a JSON request body. An empty body leaves v unchanged.
func decodeBody(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
