package application

import (
	"context"
	"log/slog"
	"time"

	"github.com/ericfisherdev/archiverestore/internal/domain/model"
	"github.com/ericfisherdev/archiverestore/internal/domain/port/driven"
)

// BatchMutator unarchives an ordered batch of identifiers strictly one at a
// time. Per-item failures are counted and logged but never stop the batch.
type BatchMutator struct {
	writer driven.ConversationWriter
	pacer  Pacer
	now    func() time.Time
}

// NewBatchMutator creates a BatchMutator. A nil pacer disables the delay
// between items.
func NewBatchMutator(writer driven.ConversationWriter, pacer Pacer) *BatchMutator {
	if pacer == nil {
		pacer = NoDelay{}
	}
	return &BatchMutator{
		writer: writer,
		pacer:  pacer,
		now:    time.Now,
	}
}

// Run attempts every id in input order and returns the final job state.
// After each item the updated state is passed to observe (if non-nil)
// before the inter-item delay; no delay follows the last item.
//
// If ctx is cancelled the remaining items are skipped and the returned job
// has status JobStatusAborted, even when the cancel arrived during the last
// item. Otherwise it ends with JobStatusCompleted and
// Success/Total form the run's tally.
func (m *BatchMutator) Run(ctx context.Context, jobID string, cred model.Credential, ids []string, observe func(model.BatchJob)) model.BatchJob {
	job := model.BatchJob{
		ID:        jobID,
		Total:     len(ids),
		Status:    model.JobStatusRunning,
		StartedAt: m.now().UTC(),
	}

	for i, id := range ids {
		if ctx.Err() != nil {
			job.Status = model.JobStatusAborted
			break
		}

		job.CurrentID = id
		if err := m.writer.Unarchive(ctx, cred, id); err != nil {
			slog.Warn("unarchive failed", "job", jobID, "id", id, "position", i+1, "total", job.Total, "error", err)
		} else {
			job.Success++
		}
		job.Completed++

		if observe != nil {
			observe(job)
		}

		if i == len(ids)-1 {
			break
		}
		if err := m.pacer.Wait(ctx); err != nil {
			job.Status = model.JobStatusAborted
			break
		}
	}

	// A cancel that lands while the last item is in flight still aborts.
	if job.Status == model.JobStatusRunning && ctx.Err() != nil {
		job.Status = model.JobStatusAborted
	}
	if job.Status == model.JobStatusRunning {
		job.Status = model.JobStatusCompleted
	}
	job.CurrentID = ""
	job.FinishedAt = m.now().UTC()

	slog.Info("batch finished",
		"job", jobID,
		"status", string(job.Status),
		"success", job.Success,
		"failed", job.Failed(),
		"total", job.Total,
		"duration", job.FinishedAt.Sub(job.StartedAt).Round(time.Millisecond),
	)

	return job
}
