package model

import "time"

// BatchJob is the in-memory state of one sequential restore run. It is owned
// by the batch mutator while the run is active and handed out as a copy.
type BatchJob struct {
	ID         string
	Total      int
	Completed  int
	Success    int
	CurrentID  string
	Status     JobStatus
	StartedAt  time.Time
	FinishedAt time.Time
}

// Failed returns the number of attempted items that did not succeed.
func (j BatchJob) Failed() int {
	return j.Completed - j.Success
}

// Remaining returns the number of items not yet attempted.
func (j BatchJob) Remaining() int {
	return j.Total - j.Completed
}

// Progress is emitted to observers while a job runs. During discovery only
// Found is meaningful; during restoration the counters mirror BatchJob.
type Progress struct {
	JobID     string
	Operation Operation
	Phase     JobPhase
	Found     int
	Completed int
	Total     int
	Success   int
	CurrentID string
	Status    JobStatus
}

// RestoreResult is the single terminal report of a restore run.
type RestoreResult struct {
	JobID     string
	Operation Operation
	Outcome   Outcome
	Success   int
	Total     int
}
