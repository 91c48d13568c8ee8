package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

var (
	// ErrJobRunning is returned when a restore is requested while another
	// restore job still holds the single job slot.
	ErrJobRunning = errors.New("a restore job is already running")

	// ErrReservationUsed is returned when a Reservation is run twice or
	// after it was released.
	ErrReservationUsed = errors.New("job reservation already used")
)

// ConfirmRequest describes the bulk mutation awaiting confirmation.
// Count is -1 when the number of affected items is not yet known.
type ConfirmRequest struct {
	JobID     string
	Operation model.Operation
	Count     int
	Message   string
}

// Confirmer is the safety gate consulted before any bulk mutation.
type Confirmer interface {
	Confirm(ctx context.Context, req ConfirmRequest) (bool, error)
}

// ConfirmFunc adapts a function to the Confirmer interface.
type ConfirmFunc func(ctx context.Context, req ConfirmRequest) (bool, error)

// Confirm calls f.
func (f ConfirmFunc) Confirm(ctx context.Context, req ConfirmRequest) (bool, error) {
	return f(ctx, req)
}

// RestoreObservers receives job notifications. Both fields are optional.
// OnResult is called exactly once per run with either a result or an error.
type RestoreObservers struct {
	OnProgress func(model.Progress)
	OnResult   func(model.RestoreResult, error)
}

// RunReport is the terminal report of the most recent run.
type RunReport struct {
	Result     model.RestoreResult
	Err        error
	FinishedAt time.Time
}

// activeJob tracks the job currently holding the slot, from Reserve until the
// run finishes or the reservation is released. cancel is nil until the run
// starts; a cancel requested before then is remembered in cancelled.
type activeJob struct {
	id        string
	cancel    context.CancelFunc
	cancelled bool
	started   bool
	job       model.BatchJob
}

// RestoreService orchestrates the two restore operations: restoring the whole
// archive and restoring an explicit list of identifiers. At most one job runs
// at a time.
type RestoreService struct {
	creds     driven.CredentialSource
	discovery *DiscoveryService
	mutator   *BatchMutator
	observers RestoreObservers
	slot      *semaphore.Weighted
	newID     func() string

	mu     sync.Mutex
	active *activeJob
	last   *RunReport
}

// NewRestoreService creates a RestoreService with all required dependencies.
func NewRestoreService(
	creds driven.CredentialSource,
	discovery *DiscoveryService,
	mutator *BatchMutator,
	observers RestoreObservers,
) *RestoreService {
	return &RestoreService{
		creds:     creds,
		discovery: discovery,
		mutator:   mutator,
		observers: observers,
		slot:      semaphore.NewWeighted(1),
		newID:     uuid.NewString,
	}
}

// Reservation holds the single job slot until one of its restore methods
// completes or Release is called.
type Reservation struct {
	svc  *RestoreService
	id   string
	used atomic.Bool
}

// Reserve claims the job slot without blocking. It returns ErrJobRunning if
// another job holds it. Callers use this to reject a concurrent start
// synchronously and then run the job in the background.
func (s *RestoreService) Reserve() (*Reservation, error) {
	if !s.slot.TryAcquire(1) {
		return nil, ErrJobRunning
	}
	id := s.newID()

	s.mu.Lock()
	s.active = &activeJob{id: id}
	s.mu.Unlock()

	return &Reservation{svc: s, id: id}, nil
}

// ID returns the job id the reservation will run under.
func (r *Reservation) ID() string {
	return r.id
}

// Release frees the slot without running a job. It is a no-op once the
// reservation has been used.
func (r *Reservation) Release() {
	if r.used.CompareAndSwap(false, true) {
		r.svc.clearActive(r.id)
		r.svc.slot.Release(1)
	}
}

// RestoreAll runs the restore-all operation under this reservation.
func (r *Reservation) RestoreAll(ctx context.Context, confirm Confirmer) (model.RestoreResult, error) {
	if !r.used.CompareAndSwap(false, true) {
		return model.RestoreResult{}, ErrReservationUsed
	}
	defer r.svc.slot.Release(1)

	ctx, cancel := r.svc.bindCancel(ctx, r.id)
	defer cancel()
	return r.svc.restoreAll(ctx, r.id, confirm)
}

// RestoreList runs the restore-list operation under this reservation.
func (r *Reservation) RestoreList(ctx context.Context, rawText string, confirm Confirmer) (model.RestoreResult, error) {
	if !r.used.CompareAndSwap(false, true) {
		return model.RestoreResult{}, ErrReservationUsed
	}
	defer r.svc.slot.Release(1)

	ctx, cancel := r.svc.bindCancel(ctx, r.id)
	defer cancel()
	return r.svc.restoreList(ctx, r.id, rawText, confirm)
}

// RestoreAll discovers every archived item and unarchives them in listing
// order. It blocks until the run ends.
//
// Precondition failures are reported as results, not errors: no credential
// yields OutcomeNotReady without any upstream call, a refused confirmation
// yields OutcomeDeclined, and an empty archive yields OutcomeNothingToRestore
// with a (0, 0) tally. A discovery failure is returned as an error and no
// item is mutated.
func (s *RestoreService) RestoreAll(ctx context.Context, confirm Confirmer) (model.RestoreResult, error) {
	r, err := s.Reserve()
	if err != nil {
		return model.RestoreResult{}, err
	}
	return r.RestoreAll(ctx, confirm)
}

// RestoreList extracts identifiers from rawText and unarchives them in the
// order they appear. It blocks until the run ends. Text without any
// identifier-shaped token yields OutcomeNoValidIdentifiers.
func (s *RestoreService) RestoreList(ctx context.Context, rawText string, confirm Confirmer) (model.RestoreResult, error) {
	r, err := s.Reserve()
	if err != nil {
		return model.RestoreResult{}, err
	}
	return r.RestoreList(ctx, rawText, confirm)
}

// Ready reports whether a credential has been captured.
func (s *RestoreService) Ready() bool {
	_, ok := s.creds.Credential()
	return ok
}

// Cancel aborts the job holding the slot and returns its id. A job that is
// reserved but not yet running is aborted as soon as it starts. It returns
// false when no job holds the slot.
func (s *RestoreService) Cancel() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil {
		return "", false
	}
	slog.Info("restore job cancel requested", "job", s.active.id, "started", s.active.started)
	s.active.cancelled = true
	if s.active.cancel != nil {
		s.active.cancel()
	}
	return s.active.id, true
}

// Current returns a snapshot of the running job.
func (s *RestoreService) Current() (model.BatchJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || !s.active.started {
		return model.BatchJob{}, false
	}
	return s.active.job, true
}

// LastRun returns the terminal report of the most recent run.
func (s *RestoreService) LastRun() (RunReport, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return RunReport{}, false
	}
	return *s.last, true
}

func (s *RestoreService) restoreAll(ctx context.Context, jobID string, confirm Confirmer) (model.RestoreResult, error) {
	result := model.RestoreResult{JobID: jobID, Operation: model.OperationRestoreAll}

	cred, ok := s.creds.Credential()
	if !ok {
		result.Outcome = model.OutcomeNotReady
		return s.finish(result, nil)
	}

	confirmed, err := askConfirmation(ctx, confirm, ConfirmRequest{
		JobID:     jobID,
		Operation: model.OperationRestoreAll,
		Count:     -1,
		Message:   "Start restoring ALL archived conversations?",
	})
	if err != nil {
		return s.finish(result, err)
	}
	if !confirmed {
		result.Outcome = model.OutcomeDeclined
		return s.finish(result, nil)
	}
	if ctx.Err() != nil {
		result.Outcome = model.OutcomeAborted
		return s.finish(result, nil)
	}

	s.activate(jobID)

	items, err := s.discovery.FetchAll(ctx, cred, func(found int) {
		s.emit(model.Progress{
			JobID:     jobID,
			Operation: model.OperationRestoreAll,
			Phase:     model.PhaseDiscovering,
			Found:     found,
			Status:    model.JobStatusRunning,
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			result.Outcome = model.OutcomeAborted
			return s.finish(result, nil)
		}
		return s.finish(result, err)
	}

	ids := model.ItemIDs(items)
	if len(ids) == 0 {
		result.Outcome = model.OutcomeNothingToRestore
		return s.finish(result, nil)
	}

	return s.runBatch(ctx, result, cred, ids)
}

func (s *RestoreService) restoreList(ctx context.Context, jobID string, rawText string, confirm Confirmer) (model.RestoreResult, error) {
	result := model.RestoreResult{JobID: jobID, Operation: model.OperationRestoreList}

	cred, ok := s.creds.Credential()
	if !ok {
		result.Outcome = model.OutcomeNotReady
		return s.finish(result, nil)
	}

	ids := ExtractIdentifiers(rawText)
	if len(ids) == 0 {
		result.Outcome = model.OutcomeNoValidIdentifiers
		return s.finish(result, nil)
	}

	confirmed, err := askConfirmation(ctx, confirm, ConfirmRequest{
		JobID:     jobID,
		Operation: model.OperationRestoreList,
		Count:     len(ids),
		Message:   fmt.Sprintf("Found %d IDs. Restore them?", len(ids)),
	})
	if err != nil {
		return s.finish(result, err)
	}
	if !confirmed {
		result.Outcome = model.OutcomeDeclined
		return s.finish(result, nil)
	}
	if ctx.Err() != nil {
		result.Outcome = model.OutcomeAborted
		return s.finish(result, nil)
	}

	s.activate(jobID)

	return s.runBatch(ctx, result, cred, ids)
}

// runBatch hands ids to the mutator and folds its final state into result.
func (s *RestoreService) runBatch(ctx context.Context, result model.RestoreResult, cred model.Credential, ids []string) (model.RestoreResult, error) {
	s.setTotal(result.JobID, len(ids))

	job := s.mutator.Run(ctx, result.JobID, cred, ids, func(j model.BatchJob) {
		s.track(j)
		s.emit(model.Progress{
			JobID:     j.ID,
			Operation: result.Operation,
			Phase:     model.PhaseRestoring,
			Completed: j.Completed,
			Total:     j.Total,
			Success:   j.Success,
			CurrentID: j.CurrentID,
			Status:    j.Status,
		})
	})

	result.Success = job.Success
	result.Total = job.Total
	result.Outcome = model.OutcomeCompleted
	if job.Status == model.JobStatusAborted {
		result.Outcome = model.OutcomeAborted
	}
	return s.finish(result, nil)
}

// askConfirmation treats a missing confirmer as a refusal.
func askConfirmation(ctx context.Context, confirm Confirmer, req ConfirmRequest) (bool, error) {
	if confirm == nil {
		return false, nil
	}
	ok, err := confirm.Confirm(ctx, req)
	if err != nil {
		return false, fmt.Errorf("confirming %s: %w", req.Operation, err)
	}
	return ok, nil
}

// bindCancel derives the run context and attaches its cancel func to the
// reservation's active entry. A cancel requested earlier takes effect at once.
func (s *RestoreService) bindCancel(ctx context.Context, jobID string) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != jobID {
		s.active = &activeJob{id: jobID}
	}
	s.active.cancel = cancel
	if s.active.cancelled {
		cancel()
	}
	return ctx, cancel
}

func (s *RestoreService) activate(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != jobID {
		return
	}
	s.active.started = true
	s.active.job = model.BatchJob{
		ID:        jobID,
		Status:    model.JobStatusRunning,
		StartedAt: time.Now().UTC(),
	}
}

func (s *RestoreService) clearActive(jobID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil && s.active.id == jobID {
		s.active = nil
	}
}

func (s *RestoreService) setTotal(jobID string, total int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != jobID {
		return
	}
	s.active.job.Total = total
}

func (s *RestoreService) track(job model.BatchJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == nil || s.active.id != job.ID {
		return
	}
	s.active.job = job
}

func (s *RestoreService) emit(p model.Progress) {
	if s.observers.OnProgress != nil {
		s.observers.OnProgress(p)
	}
}

// finish records the terminal report, clears the active job and notifies
// the result observer. It returns its arguments for tail calls.
func (s *RestoreService) finish(result model.RestoreResult, err error) (model.RestoreResult, error) {
	report := RunReport{Result: result, Err: err, FinishedAt: time.Now().UTC()}

	s.mu.Lock()
	if s.active != nil && s.active.id == result.JobID {
		s.active = nil
	}
	s.last = &report
	s.mu.Unlock()

	if err != nil {
		slog.Error("restore job failed", "job", result.JobID, "operation", string(result.Operation), "error", err)
	} else {
		slog.Info("restore job finished",
			"job", result.JobID,
			"operation", string(result.Operation),
			"outcome", string(result.Outcome),
			"success", result.Success,
			"total", result.Total,
		)
	}

	if s.observers.OnResult != nil {
		s.observers.OnResult(result, err)
	}
	return result, err
}
