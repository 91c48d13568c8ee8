package model

// JobStatus represents the lifecycle state of a batch restore job.
type JobStatus string

const (
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusAborted   JobStatus = "aborted"
)

// JobPhase distinguishes the listing phase of a restore-all run from the
// mutation phase shared by both operations.
type JobPhase string

const (
	PhaseDiscovering JobPhase = "discovering"
	PhaseRestoring   JobPhase = "restoring"
)

// Operation names the two supported restore operations.
type Operation string

const (
	OperationRestoreAll  Operation = "restore_all"
	OperationRestoreList Operation = "restore_list"
)

// Outcome is the terminal classification of a restore run.
type Outcome string

const (
	OutcomeCompleted          Outcome = "completed"
	OutcomeNothingToRestore   Outcome = "nothing_to_restore"   // Archive listing came back empty.
	OutcomeNoValidIdentifiers Outcome = "no_valid_identifiers" // Pasted text held no id-shaped tokens.
	OutcomeNotReady           Outcome = "not_ready"            // No credential captured yet.
	OutcomeDeclined           Outcome = "declined"             // Confirmation was refused.
	OutcomeAborted            Outcome = "aborted"
)
