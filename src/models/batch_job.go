package models

// -----------------------------------------------------------------------------
// Historical batch job state, as exposed by the orchestrator's Status call.
// All fields are snapshot copies; readers never alias live job state.
// -----------------------------------------------------------------------------

type JobState string

const (
	JobRunning  JobState = "running"
	JobComplete JobState = "complete"
)

// -----------------------------------------------------------------------------

// MSymbolError records one per-symbol failure inside a batch.
type MSymbolError struct {
	Symbol  string `json:"symbol"`
	Message string `json:"message"`
}

// MBatchProgress tracks completion counters for a batch job.
type MBatchProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// -----------------------------------------------------------------------------

// MBatchStatus is the point-in-time view of a batch job.
type MBatchStatus struct {
	JobID       string                  `json:"job_id"`
	State       JobState                `json:"state"`
	Symbols     []string                `json:"symbols"`
	Progress    MBatchProgress          `json:"progress"`
	Results     map[string]MDataSummary `json:"results"`
	Errors      []MSymbolError          `json:"errors"`
	SubmittedAt int64                   `json:"submitted_at"`
}
